package ml

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"sort"
	"time"

	"mood-backend/internal/models"
)

// InferenceError reports a malformed feature frame. It is recoverable:
// callers fall back to mock inference instead of terminating the stream.
type InferenceError struct {
	Reason string
}

func (e *InferenceError) Error() string {
	return "inference: " + e.Reason
}

// Model is a linear classifier over a flattened feature vector. Emotion
// logits go through softmax, the stress score through a sigmoid.
type Model struct {
	InputDim      int                  `json:"input_dim"`
	Weights       map[string][]float64 `json:"weights"` // emotion label -> coefficients
	Bias          map[string]float64   `json:"bias"`
	StressWeights []float64            `json:"stress_weights"`
	StressBias    float64              `json:"stress_bias"`
}

// Baseline mock emotion weights (neutral excluded). The remaining
// probability mass after the neutral draw is split proportionally to
// these.
var mockBaseWeights = map[string]float64{
	models.EmotionHappy:     0.05,
	models.EmotionSad:       0.10,
	models.EmotionAngry:     0.05,
	models.EmotionSurprised: 0.10,
	models.EmotionFearful:   0.05,
	models.EmotionDisgusted: 0.05,
}

// Adapter wraps the classifier behind a synchronous Infer call so the
// pipeline never depends on how predictions are produced. When no model
// is loaded it serves randomized mock predictions.
type Adapter struct {
	model *Model
	rng   *rand.Rand
}

// NewAdapter creates an adapter around an optional model. A nil rng gets
// a time-seeded source; tests inject a fixed seed.
func NewAdapter(model *Model, rng *rand.Rand) *Adapter {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Adapter{model: model, rng: rng}
}

// LoadModel reads a model file from disk. A missing file is not an
// error: it returns (nil, nil) and the adapter runs in mock mode.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("ML: no model file at %s, using mock inference", path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	log.Printf("ML: loaded model from %s (input_dim=%d, %d emotion heads)",
		path, model.InputDim, len(model.Weights))
	return &model, nil
}

// HasModel reports whether a trained model is loaded.
func (a *Adapter) HasModel() bool {
	return a.model != nil
}

// Infer produces a prediction for one feature frame. Non-finite values
// always fail; a wrong feature arity fails when a trained model defines
// one. With no model loaded, valid frames get a mock prediction.
func (a *Adapter) Infer(frame models.FeatureFrame) (*models.Prediction, error) {
	vector, err := flatten(frame)
	if err != nil {
		return nil, err
	}

	if a.model == nil {
		return a.Mock(), nil
	}

	if len(vector) != a.model.InputDim {
		return nil, &InferenceError{
			Reason: fmt.Sprintf("feature vector has %d values, model expects %d", len(vector), a.model.InputDim),
		}
	}

	return a.model.predict(vector), nil
}

// Mock returns a randomized neutral-dominant prediction. Used both when
// no model is loaded and as the recovery path after an InferenceError,
// so the stream keeps serving advisories over aborting.
func (a *Adapter) Mock() *models.Prediction {
	neutral := 0.4 + a.rng.Float64()*0.3 // uniform [0.4, 0.7]

	var baseTotal float64
	for _, w := range mockBaseWeights {
		baseTotal += w
	}

	probs := make(map[string]float64, len(models.EmotionLabels))
	probs[models.EmotionNeutral] = neutral
	for label, w := range mockBaseWeights {
		probs[label] = (1 - neutral) * w / baseTotal
	}

	return &models.Prediction{
		Emotion:     models.EmotionNeutral,
		EmotionProb: probs,
		StressScore: 0.1 + a.rng.Float64()*0.4, // uniform [0.1, 0.5]
	}
}

// flatten concatenates all keypoint groups in sorted group order so the
// vector layout is stable across frames.
func flatten(frame models.FeatureFrame) ([]float64, error) {
	groups := make([]string, 0, len(frame))
	for g := range frame {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var vector []float64
	for _, g := range groups {
		for i, v := range frame[g] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &InferenceError{
					Reason: fmt.Sprintf("non-finite value in group %q at index %d", g, i),
				}
			}
			vector = append(vector, v)
		}
	}
	return vector, nil
}

// predict runs the linear model on a validated vector.
func (m *Model) predict(vector []float64) *models.Prediction {
	logits := make(map[string]float64, len(models.EmotionLabels))
	for _, label := range models.EmotionLabels {
		score := m.Bias[label]
		for i, coef := range m.Weights[label] {
			if i < len(vector) {
				score += coef * vector[i]
			}
		}
		logits[label] = score
	}

	probs := softmax(logits)

	dominant := models.EmotionNeutral
	best := math.Inf(-1)
	for _, label := range models.EmotionLabels {
		if probs[label] > best {
			best = probs[label]
			dominant = label
		}
	}

	stress := m.StressBias
	for i, coef := range m.StressWeights {
		if i < len(vector) {
			stress += coef * vector[i]
		}
	}

	return &models.Prediction{
		Emotion:     dominant,
		EmotionProb: probs,
		StressScore: sigmoid(stress),
	}
}

func softmax(logits map[string]float64) map[string]float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}

	var total float64
	exps := make(map[string]float64, len(logits))
	for label, v := range logits {
		e := math.Exp(v - maxLogit)
		exps[label] = e
		total += e
	}

	probs := make(map[string]float64, len(logits))
	for label, e := range exps {
		probs[label] = e / total
	}
	return probs
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
