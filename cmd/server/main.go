package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mood-backend/internal/aggregator"
	"mood-backend/internal/api"
	"mood-backend/internal/database"
	"mood-backend/internal/history"
	"mood-backend/internal/ml"
	"mood-backend/internal/mqtt"
	"mood-backend/internal/recommend"
	"mood-backend/internal/stream"
	"mood-backend/pkg/config"
)

func main() {
	log.Println("Starting Mood Backend Service...")

	// Load configuration
	cfg := config.Load()

	// Initialize ClickHouse database
	db, err := database.NewClickHouseDB(
		cfg.ClickHouseAddr,
		cfg.ClickHouseDB,
		cfg.ClickHouseUser,
		cfg.ClickHousePass,
	)
	if err != nil {
		log.Fatalf("Failed to initialize ClickHouse: %v", err)
	}
	defer db.Close()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Inference adapter ===
	model, err := ml.LoadModel(cfg.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	inferrer := ml.NewAdapter(model, nil)
	if inferrer.HasModel() {
		log.Println("Inference: trained model loaded")
	} else {
		log.Println("Inference: running in mock mode")
	}

	// === Session pipeline ===
	historyStore := history.NewStore()
	engine := recommend.NewEngine(historyStore, nil)
	sessionAggregator := aggregator.New(db)

	registry := stream.NewRegistry(func(sessionID string, emitter stream.Emitter) *stream.Driver {
		return stream.NewDriver(sessionID, stream.DriverConfig{
			Store:          db,
			Inferrer:       inferrer,
			Recommender:    engine,
			History:        historyStore,
			Emitter:        emitter,
			StoreRawFrames: cfg.StoreRawFrames,
		})
	})

	// === MQTT ingest bridge (optional) ===
	if cfg.MQTTBroker != "" {
		log.Println("Connecting to MQTT broker...")
		mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			log.Fatalf("Failed to initialize MQTT client: %v", err)
		}
		defer mqttClient.Close()

		bridge := mqtt.NewBridge(mqttClient.GetNativeClient(), mqtt.BridgeConfig{
			FeaturesTopic:   cfg.MQTTTopicFeatures,
			PredictionTopic: cfg.MQTTTopicPrediction,
		}, registry)

		if err := bridge.Start(ctx); err != nil {
			log.Fatalf("Failed to start MQTT bridge: %v", err)
		}
	} else {
		log.Println("MQTT bridge disabled (MQTT_BROKER not set)")
	}

	// === HTTP API ===
	server := api.NewServer(db, sessionAggregator, registry, cfg.CORSOrigins)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("HTTP API listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Println("=== Mood Backend Service is running ===")
	log.Printf("Streaming endpoint: ws://%s/ws/{session_id}", cfg.HTTPAddr)
	log.Println("Press Ctrl+C to exit...")

	// === Wait for interrupt signal ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// === Graceful shutdown ===
	log.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	// Stop per-session workers and drain their persistence queues
	registry.CloseAll()
	cancel()

	log.Println("Shutdown complete. Goodbye!")
}
