package history

import "sync"

const (
	// Capacity bounds each session's rolling window.
	Capacity = 10
	// DefaultWindow is the lookback used for temporal smoothing reads.
	DefaultWindow = 5
)

// window holds the two parallel rolling buffers for one session. Both
// always have equal length. Single-writer: only that session's driver
// appends, so no per-window lock is needed.
type window struct {
	stress   []float64
	emotions []string
}

// Store keeps the per-session rolling prediction history. The map itself
// is guarded so new sessions can be created concurrently; entries are
// removed explicitly when a session closes.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*window
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*window)}
}

// AppendPrediction records one frame's outcome, evicting the oldest
// entry past capacity. The window is created lazily on first use.
func (s *Store) AppendPrediction(sessionID, emotion string, stressScore float64) {
	w := s.getOrCreate(sessionID)

	w.stress = append(w.stress, stressScore)
	w.emotions = append(w.emotions, emotion)

	if len(w.stress) > Capacity {
		w.stress = w.stress[len(w.stress)-Capacity:]
		w.emotions = w.emotions[len(w.emotions)-Capacity:]
	}
}

// MeanStress returns the arithmetic mean of the last n stress scores
// (fewer if the history is shorter). Unknown or empty sessions yield 0.
func (s *Store) MeanStress(sessionID string, n int) float64 {
	s.mu.RLock()
	w := s.sessions[sessionID]
	s.mu.RUnlock()

	if w == nil || len(w.stress) == 0 {
		return 0.0
	}

	recent := w.stress
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}

	var sum float64
	for _, v := range recent {
		sum += v
	}
	return sum / float64(len(recent))
}

// DominantEmotion returns the most frequent label among the last n
// entries. Ties go to the label seen first in an oldest-to-newest scan.
// Unknown or empty sessions yield "".
func (s *Store) DominantEmotion(sessionID string, n int) string {
	s.mu.RLock()
	w := s.sessions[sessionID]
	s.mu.RUnlock()

	if w == nil || len(w.emotions) == 0 {
		return ""
	}

	recent := w.emotions
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}

	counts := make(map[string]int, len(recent))
	maxCount := 0
	for _, label := range recent {
		counts[label]++
		if counts[label] > maxCount {
			maxCount = counts[label]
		}
	}

	for _, label := range recent {
		if counts[label] == maxCount {
			return label
		}
	}
	return "" // unreachable
}

// Len returns the current window length for a session.
func (s *Store) Len(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if w := s.sessions[sessionID]; w != nil {
		return len(w.stress)
	}
	return 0
}

// Remove drops a session's window. Called by the driver on close so
// history never outlives the session.
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *Store) getOrCreate(sessionID string) *window {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.sessions[sessionID]; ok {
		return w
	}

	w := &window{
		stress:   make([]float64, 0, Capacity),
		emotions: make([]string, 0, Capacity),
	}
	s.sessions[sessionID] = w
	return w
}
