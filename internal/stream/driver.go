package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"mood-backend/internal/models"
)

// State of a session driver. Transitions run one way:
// Connecting -> Active -> Closed.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Store is the persistence collaborator the driver needs: session
// validation plus best-effort prediction/insight writes.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	SavePrediction(ctx context.Context, record *models.PredictionRecord) error
	SaveInsight(ctx context.Context, insight *models.Insight) error
}

// Inferrer wraps the classifier. Mock is the recovery path when Infer
// rejects a frame.
type Inferrer interface {
	Infer(frame models.FeatureFrame) (*models.Prediction, error)
	Mock() *models.Prediction
}

// Recommender produces an advisory from the current frame plus history.
type Recommender interface {
	Recommend(sessionID, emotion string, stressScore float64) *models.Advisory
}

// HistoryReleaser frees a session's rolling window on close.
type HistoryReleaser interface {
	Remove(sessionID string)
}

// Emitter delivers prediction messages to the client. An emit error is a
// transport error and terminates the session.
type Emitter interface {
	EmitPrediction(msg *models.PredictionMessage) error
}

// insightGate is the minimum (exclusive) advisory confidence for
// persisting an insight.
const insightGate = 0.7

// persistJob is one queued best-effort write.
type persistJob struct {
	record  *models.PredictionRecord
	insight *models.Insight
}

// Driver runs one session's message loop: receive frame, infer,
// recommend, emit, queue persistence. Frames are processed strictly in
// arrival order; persistence runs on a side worker so emission never
// waits on the database.
type Driver struct {
	sessionID string

	store       Store
	inferrer    Inferrer
	recommender Recommender
	history     HistoryReleaser
	emitter     Emitter

	storeRawFrames bool

	inbound chan []byte
	queue   chan persistJob

	mu        sync.Mutex
	state     State
	closeErr  error
	closeOnce sync.Once
	done      chan struct{}
	finished  chan struct{}
}

// DriverConfig bundles the driver's collaborators.
type DriverConfig struct {
	Store          Store
	Inferrer       Inferrer
	Recommender    Recommender
	History        HistoryReleaser
	Emitter        Emitter
	StoreRawFrames bool
	InboundSize    int
	QueueSize      int
}

func NewDriver(sessionID string, cfg DriverConfig) *Driver {
	if cfg.InboundSize <= 0 {
		cfg.InboundSize = 32
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Driver{
		sessionID:      sessionID,
		store:          cfg.Store,
		inferrer:       cfg.Inferrer,
		recommender:    cfg.Recommender,
		history:        cfg.History,
		emitter:        cfg.Emitter,
		storeRawFrames: cfg.StoreRawFrames,
		inbound:        make(chan []byte, cfg.InboundSize),
		queue:          make(chan persistJob, cfg.QueueSize),
		done:           make(chan struct{}),
		finished:       make(chan struct{}),
	}
}

// SessionID returns the session this driver serves.
func (d *Driver) SessionID() string {
	return d.sessionID
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// CloseReason returns why the driver closed, nil for a graceful close.
func (d *Driver) CloseReason() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeErr
}

// Validate moves Connecting -> Active after checking the session exists.
// A malformed or unknown session ID is terminal: the driver goes
// straight to Closed with the rejection reason and is never retried.
func (d *Driver) Validate(ctx context.Context) error {
	if _, err := uuid.Parse(d.sessionID); err != nil {
		reason := fmt.Errorf("invalid session_id %q", d.sessionID)
		d.reject(reason)
		return reason
	}

	if _, err := d.store.GetSession(ctx, d.sessionID); err != nil {
		reason := fmt.Errorf("session %s: %w", d.sessionID, err)
		d.reject(reason)
		return reason
	}

	d.mu.Lock()
	d.state = StateActive
	d.mu.Unlock()
	return nil
}

func (d *Driver) reject(reason error) {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.state = StateClosed
		d.closeErr = reason
		d.mu.Unlock()
		close(d.done)
		close(d.finished)
	})
}

// Submit hands one raw inbound message to the driver, preserving arrival
// order. Returns false once the driver is closed.
func (d *Driver) Submit(raw []byte) bool {
	select {
	case <-d.done:
		return false
	default:
	}

	select {
	case d.inbound <- raw:
		return true
	case <-d.done:
		return false
	}
}

// Run processes inbound messages until the driver closes or ctx is
// cancelled. Must be called after a successful Validate; it owns the
// persistence worker and releases the history window on exit.
func (d *Driver) Run(ctx context.Context) {
	var persistDone sync.WaitGroup
	persistDone.Add(1)
	go func() {
		defer persistDone.Done()
		d.persistLoop()
	}()

	log.Printf("StreamDriver[%s]: session active", d.sessionID)

loop:
	for {
		select {
		case <-ctx.Done():
			d.closeAsync(ctx.Err())
			break loop
		case <-d.done:
			break loop
		case raw := <-d.inbound:
			d.processMessage(raw)
		}
	}

	// Drain queued writes so best-effort persistence is observable: by
	// the time Run returns, every queued record hit the store (or was
	// logged as failed).
	close(d.queue)
	persistDone.Wait()

	d.history.Remove(d.sessionID)

	d.mu.Lock()
	d.state = StateClosed
	err := d.closeErr
	d.mu.Unlock()

	if err != nil {
		log.Printf("StreamDriver[%s]: session closed: %v", d.sessionID, err)
	} else {
		log.Printf("StreamDriver[%s]: session closed", d.sessionID)
	}
	close(d.finished)
}

// Close ends the session gracefully (client disconnect or explicit
// end-session call) and waits for the driver to finish.
func (d *Driver) Close() {
	d.CloseWithError(nil)
}

// CloseWithError ends the session recording a terminal reason, then
// waits for in-flight work to drain.
func (d *Driver) CloseWithError(err error) {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		if d.closeErr == nil {
			d.closeErr = err
		}
		d.mu.Unlock()
		close(d.done)
	})
	<-d.finished
}

// processMessage handles one raw inbound message. Unrecognized message
// types are skipped silently; the driver keeps waiting for the next
// frame.
func (d *Driver) processMessage(raw []byte) {
	var msg models.FeaturesMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("StreamDriver[%s]: dropping unparseable message: %v", d.sessionID, err)
		return
	}

	if msg.Type != models.MessageTypeFeatures {
		return
	}

	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	prediction, err := d.inferrer.Infer(msg.Features)
	if err != nil {
		// Recoverable: serve the mock fallback rather than dropping the
		// frame or killing the stream.
		log.Printf("StreamDriver[%s]: inference failed, using fallback: %v", d.sessionID, err)
		prediction = d.inferrer.Mock()
	}

	advisory := d.recommender.Recommend(d.sessionID, prediction.Emotion, prediction.StressScore)

	out := &models.PredictionMessage{
		Type:        models.MessageTypePrediction,
		Timestamp:   msg.Timestamp,
		Emotion:     prediction.Emotion,
		EmotionProb: prediction.EmotionProb,
		StressScore: prediction.StressScore,
		AdviceID:    &advisory.AdviceID,
		Advice:      &advisory.Advice,
	}

	if err := d.emitter.EmitPrediction(out); err != nil {
		// Transport error: terminal for the session.
		d.closeAsync(fmt.Errorf("emit prediction: %w", err))
		return
	}

	job := persistJob{
		record: &models.PredictionRecord{
			SessionID:   d.sessionID,
			Timestamp:   time.Now(),
			Emotion:     prediction.Emotion,
			EmotionProb: prediction.EmotionProb,
			StressScore: prediction.StressScore,
		},
	}

	if d.storeRawFrames {
		if rawFeatures, err := json.Marshal(msg.Features); err == nil {
			job.record.Features = string(rawFeatures)
		}
	}

	// Strictly greater than the gate; 0.7 exactly does not persist.
	if advisory.Confidence > insightGate {
		job.insight = &models.Insight{
			InsightID:   uuid.NewString(),
			SessionID:   d.sessionID,
			GeneratedAt: time.Now(),
			Type:        models.InsightTypeRecommendation,
			Content:     advisory.Advice,
			Confidence:  advisory.Confidence,
		}
	}

	// Queued before the next frame is taken, so persisted order matches
	// emission order.
	d.queue <- job
}

// closeAsync flags the driver closed without waiting for Run to finish.
// Used from inside the processing loop itself.
func (d *Driver) closeAsync(err error) {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		if d.closeErr == nil {
			d.closeErr = err
		}
		d.mu.Unlock()
		close(d.done)
	})
}

// persistLoop drains the write queue. Failures are logged and swallowed:
// the stream's correctness never depends on persistence succeeding.
func (d *Driver) persistLoop() {
	ctx := context.Background()
	for job := range d.queue {
		if job.record != nil {
			if err := d.store.SavePrediction(ctx, job.record); err != nil {
				log.Printf("StreamDriver[%s]: error saving prediction: %v", d.sessionID, err)
			}
		}
		if job.insight != nil {
			if err := d.store.SaveInsight(ctx, job.insight); err != nil {
				log.Printf("StreamDriver[%s]: error saving insight: %v", d.sessionID, err)
			}
		}
	}
}
