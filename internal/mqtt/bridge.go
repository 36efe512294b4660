package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mood-backend/internal/models"
	"mood-backend/internal/stream"
)

// Bridge routes feature frames published by headless capture devices
// into the same per-session stream drivers the WebSocket endpoint uses,
// and publishes each prediction back out on the session's topic.
type Bridge struct {
	client   mqtt.Client
	registry *stream.Registry

	featuresTopic   string // e.g. "session/+/features"
	predictionTopic string // e.g. "session/{session_id}/prediction"

	ctx context.Context

	// Sessions already rejected (malformed/unknown): rejection is
	// terminal, so later frames are dropped without re-validating.
	mu       sync.Mutex
	rejected map[string]bool
}

// BridgeConfig holds configuration for the MQTT ingest bridge
type BridgeConfig struct {
	FeaturesTopic   string // e.g. "session/+/features"
	PredictionTopic string // e.g. "session/{session_id}/prediction"
}

// NewBridge creates a new ingest bridge over an existing client.
func NewBridge(client mqtt.Client, config BridgeConfig, registry *stream.Registry) *Bridge {
	return &Bridge{
		client:          client,
		registry:        registry,
		featuresTopic:   config.FeaturesTopic,
		predictionTopic: config.PredictionTopic,
		rejected:        make(map[string]bool),
	}
}

// Start subscribes to the features topic. Drivers created for MQTT
// sessions live until ctx is cancelled or the session is ended.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx = ctx

	token := b.client.Subscribe(b.featuresTopic, 1, b.handleFeatures)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to features topic: %w", token.Error())
	}

	log.Printf("MQTT Bridge: Subscribed to features topic: %s", b.featuresTopic)
	return nil
}

// handleFeatures routes one published frame to its session's driver,
// creating the driver on first contact.
func (b *Bridge) handleFeatures(client mqtt.Client, msg mqtt.Message) {
	sessionID := extractSessionID(msg.Topic())
	if sessionID == "" {
		log.Printf("MQTT Bridge: Could not extract session ID from topic: %s", msg.Topic())
		return
	}

	b.mu.Lock()
	rejectedBefore := b.rejected[sessionID]
	b.mu.Unlock()
	if rejectedBefore {
		return
	}

	driver, ok := b.registry.Get(sessionID)
	if !ok {
		emitter := &mqttEmitter{
			client: b.client,
			topic:  formatTopic(b.predictionTopic, sessionID),
		}

		var err error
		driver, err = b.registry.Start(b.ctx, sessionID, emitter)
		if err != nil {
			log.Printf("MQTT Bridge: Rejecting session %s: %v", sessionID, err)
			b.mu.Lock()
			b.rejected[sessionID] = true
			b.mu.Unlock()
			return
		}
		log.Printf("MQTT Bridge: Session %s active", sessionID)
	}

	// Payload is the same wire message WebSocket clients send; the
	// driver validates and skips unknown types itself.
	driver.Submit(msg.Payload())
}

// mqttEmitter publishes prediction messages to a session's topic.
type mqttEmitter struct {
	client mqtt.Client
	topic  string
}

func (e *mqttEmitter) EmitPrediction(msg *models.PredictionMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}

	token := e.client.Publish(e.topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish prediction: %w", token.Error())
	}
	return nil
}

// extractSessionID extracts the session ID from an MQTT topic
// Example: "session/3f2b.../features" -> "3f2b..."
func extractSessionID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

// formatTopic replaces {session_id} placeholder with the actual session ID
func formatTopic(topicPattern, sessionID string) string {
	return strings.ReplaceAll(topicPattern, "{session_id}", sessionID)
}
