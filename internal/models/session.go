package models

import "time"

// Emotion labels form a closed set shared by the classifier, the
// recommendation rules and the aggregates. Order matters only for
// deterministic iteration.
const (
	EmotionHappy     = "happy"
	EmotionSad       = "sad"
	EmotionNeutral   = "neutral"
	EmotionAngry     = "angry"
	EmotionSurprised = "surprised"
	EmotionFearful   = "fearful"
	EmotionDisgusted = "disgusted"
)

// EmotionLabels lists every emotion label in canonical order.
var EmotionLabels = []string{
	EmotionHappy,
	EmotionSad,
	EmotionNeutral,
	EmotionAngry,
	EmotionSurprised,
	EmotionFearful,
	EmotionDisgusted,
}

// ValidEmotion reports whether label belongs to the closed emotion set.
func ValidEmotion(label string) bool {
	for _, l := range EmotionLabels {
		if l == label {
			return true
		}
	}
	return false
}

// Session represents one continuous user-monitoring interval.
// Immutable after creation except for the end-of-session fields.
type Session struct {
	SessionID  string            `json:"session_id"`
	UserID     string            `json:"user_id,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    *time.Time        `json:"ended_at"`
	DurationS  *int64            `json:"duration_s"`
	Meta       map[string]string `json:"meta"`
	Aggregates *SessionAggregate `json:"aggregates"`
}

// SessionAggregate summarizes a whole session at close time.
type SessionAggregate struct {
	DominantMood    string  `json:"dominant_mood"`
	StressScore     float64 `json:"stress_score"` // mean, rounded to 2 decimals
	PredictionCount int     `json:"prediction_count"`
}

// Prediction is the per-frame classifier output.
type Prediction struct {
	Emotion     string             `json:"emotion"`      // dominant label
	EmotionProb map[string]float64 `json:"emotion_prob"` // sums to 1
	StressScore float64            `json:"stress_score"` // in [0,1]
}

// PredictionRecord is a persisted prediction tied to a session.
type PredictionRecord struct {
	SessionID   string             `json:"session_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Emotion     string             `json:"emotion"`
	EmotionProb map[string]float64 `json:"emotion_prob"`
	StressScore float64            `json:"stress_score"`
	Features    string             `json:"features,omitempty"` // raw frame JSON, optional
}

// Advisory categories produced by the recommendation rules.
const (
	CategoryHighStress     = "high_stress"
	CategoryModerateStress = "moderate_stress"
	CategorySadness        = "sadness"
	CategoryFatigue        = "fatigue"
	CategoryNeutral        = "neutral"
	CategoryPositive       = "positive"
)

// Advisory is the per-frame recommendation output. Ephemeral; only
// persisted (as an Insight) when confidence clears the emission gate.
type Advisory struct {
	AdviceID   string  `json:"advice_id"`
	Category   string  `json:"category"`
	Advice     string  `json:"advice"`
	Confidence float64 `json:"confidence"`
}

// Insight is a persisted high-confidence advisory.
type Insight struct {
	InsightID   string    `json:"insight_id"`
	SessionID   string    `json:"session_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Type        string    `json:"type"` // "recommendation"
	Content     string    `json:"content"`
	Confidence  float64   `json:"confidence"`
}

// InsightTypeRecommendation is the only insight type the stream path emits.
const InsightTypeRecommendation = "recommendation"

// Feedback is a user rating of an insight.
type Feedback struct {
	FeedbackID  string    `json:"feedback_id"`
	SessionID   string    `json:"session_id"`
	InsightID   string    `json:"insight_id"`
	Rating      int       `json:"rating"` // 1..5
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}
