package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"mood-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients come through the CORS-approved frontend; origin
	// enforcement happens in the CORS layer for the REST surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEmitter delivers prediction messages over one WebSocket connection.
// gorilla/websocket allows a single concurrent writer, hence the mutex.
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *wsEmitter) EmitPrediction(msg *models.PredictionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteJSON(msg)
}

// handleWebSocket runs the real-time streaming loop for one session.
//
// Client sends: {"type": "features", "timestamp": 1234567890, "features": {...}}
// Server responds: {"type": "prediction", "timestamp": 1234567890, "emotion": "neutral", ...}
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS[%s]: upgrade failed: %v", sessionID, err)
		return
	}
	defer conn.Close()

	emitter := &wsEmitter{conn: conn}

	driver, err := s.registry.Start(r.Context(), sessionID, emitter)
	if err != nil {
		// Terminal rejection: malformed/unknown session, or one already
		// streaming. Mirror the close code the frontend expects.
		log.Printf("WS[%s]: rejected: %v", sessionID, err)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "Invalid session"),
			writeControlDeadline(),
		)
		return
	}

	// Read loop: frames go to the driver in arrival order. The driver's
	// own goroutine does all processing and emission.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WS[%s]: client disconnected", sessionID)
				driver.Close()
			} else {
				driver.CloseWithError(err)
			}
			return
		}

		if !driver.Submit(raw) {
			// Driver closed underneath us (end-session call or transport
			// error on the write side).
			return
		}
	}
}

func writeControlDeadline() time.Time {
	return time.Now().Add(time.Second)
}
