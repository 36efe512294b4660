package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"mood-backend/internal/aggregator"
	"mood-backend/internal/database"
	"mood-backend/internal/models"
	"mood-backend/internal/stream"
)

const apiVersion = "1.0.0"

const (
	defaultSessionLimit = 20
	insightListLimit    = 100
)

// Store is the persistence surface the HTTP handlers need.
type Store interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	EndSession(ctx context.Context, session *models.Session) error
	ListSessions(ctx context.Context, userID string, limit int) ([]*models.Session, error)
	ListInsights(ctx context.Context, sessionID string, limit int) ([]*models.Insight, error)
	SaveFeedback(ctx context.Context, fb *models.Feedback) error
}

// Server exposes the REST surface plus the streaming WebSocket endpoint.
type Server struct {
	store       Store
	aggregator  *aggregator.SessionAggregator
	registry    *stream.Registry
	corsOrigins []string
}

func NewServer(store Store, agg *aggregator.SessionAggregator, registry *stream.Registry, corsOrigins []string) *Server {
	return &Server{
		store:       store,
		aggregator:  agg,
		registry:    registry,
		corsOrigins: corsOrigins,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/sessions/{session_id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/sessions/{session_id}/end", s.handleEndSession).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/insights", s.handleListInsights).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/feedback", s.handleSubmitFeedback).Methods(http.MethodPost)
	r.HandleFunc("/ws/{session_id}", s.handleWebSocket)

	return s.corsMiddleware(r)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range s.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   apiVersion,
		"timestamp": time.Now().UTC(),
	})
}

type createSessionRequest struct {
	UserID string            `json:"user_id"`
	Meta   map[string]string `json:"meta"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload createSessionRequest
	if r.Body != nil {
		// An empty body is fine: user_id and meta are both optional.
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	if payload.Meta == nil {
		payload.Meta = make(map[string]string)
	}

	session := &models.Session{
		SessionID: uuid.NewString(),
		UserID:    payload.UserID,
		StartedAt: time.Now().UTC(),
		Meta:      payload.Meta,
	}

	if err := s.store.CreateSession(r.Context(), session); err != nil {
		log.Printf("API: error creating session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": session.SessionID})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionIDFromRequest(w, r)
	if !ok {
		return
	}

	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Printf("API: error loading session %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	limit := defaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	sessions, err := s.store.ListSessions(r.Context(), userID, limit)
	if err != nil {
		log.Printf("API: error listing sessions: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleEndSession closes the session: stops any active driver (draining
// its queued writes), computes the aggregate over everything persisted,
// and stores the closed session. Re-invocation recomputes from scratch.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionIDFromRequest(w, r)
	if !ok {
		return
	}

	session, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Printf("API: error loading session %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	// Stop the streaming worker first so queued predictions land before
	// the aggregate is computed.
	s.registry.Close(sessionID)

	endedAt := time.Now().UTC()
	durationS := int64(endedAt.Sub(session.StartedAt).Seconds())

	aggregates, err := s.aggregator.Finalize(r.Context(), sessionID)
	if err != nil {
		log.Printf("API: error finalizing session %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to compute aggregates")
		return
	}

	session.EndedAt = &endedAt
	session.DurationS = &durationS
	session.Aggregates = aggregates

	if err := s.store.EndSession(r.Context(), session); err != nil {
		log.Printf("API: error ending session %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to end session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"duration_s": durationS,
		"aggregates": aggregates,
	})
}

func (s *Server) handleListInsights(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if _, err := uuid.Parse(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session_id")
		return
	}

	insights, err := s.store.ListInsights(r.Context(), sessionID, insightListLimit)
	if err != nil {
		log.Printf("API: error listing insights for %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to list insights")
		return
	}
	if insights == nil {
		insights = []*models.Insight{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"insights": insights,
		"count":    len(insights),
	})
}

type feedbackRequest struct {
	SessionID string `json:"session_id"`
	InsightID string `json:"insight_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var payload feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if _, err := uuid.Parse(payload.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session_id")
		return
	}
	if payload.Rating < 1 || payload.Rating > 5 {
		writeError(w, http.StatusBadRequest, "Rating must be between 1 and 5")
		return
	}

	fb := &models.Feedback{
		FeedbackID:  uuid.NewString(),
		SessionID:   payload.SessionID,
		InsightID:   payload.InsightID,
		Rating:      payload.Rating,
		Comment:     payload.Comment,
		SubmittedAt: time.Now().UTC(),
	}

	if err := s.store.SaveFeedback(r.Context(), fb); err != nil {
		log.Printf("API: error saving feedback: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save feedback")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"feedback_id": fb.FeedbackID,
		"status":      "received",
	})
}

// sessionIDFromRequest pulls and validates the session_id path variable.
func (s *Server) sessionIDFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := mux.Vars(r)["session_id"]
	if _, err := uuid.Parse(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session_id")
		return "", false
	}
	return sessionID, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("API: error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
