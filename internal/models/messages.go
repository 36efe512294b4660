package models

// Wire messages exchanged with streaming clients (WebSocket and the MQTT
// bridge share the same payloads).

// Message type discriminators.
const (
	MessageTypeFeatures   = "features"
	MessageTypePrediction = "prediction"
)

// FeatureFrame maps a keypoint-group name ("face_kp", "pose_kp", ...) to
// its ordered float values. Ephemeral: lives for one inference call.
type FeatureFrame map[string][]float64

// FeaturesMessage is the inbound per-frame payload.
type FeaturesMessage struct {
	Type      string       `json:"type"`
	Timestamp int64        `json:"timestamp"` // client clock, unix ms
	Features  FeatureFrame `json:"features"`
}

// PredictionMessage is the outbound per-frame payload. AdviceID and
// Advice are set whenever a recommendation was computed, independent of
// whether an insight was persisted.
type PredictionMessage struct {
	Type        string             `json:"type"`
	Timestamp   int64              `json:"timestamp"` // echoed from inbound
	Emotion     string             `json:"emotion"`
	EmotionProb map[string]float64 `json:"emotion_prob"`
	StressScore float64            `json:"stress_score"`
	AdviceID    *string            `json:"advice_id"`
	Advice      *string            `json:"advice"`
}
