package recommend

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"mood-backend/internal/history"
	"mood-backend/internal/models"
)

// Engine turns the current frame plus recent history into an advisory.
// Classification is rule-based over the smoothed signal, not the
// instantaneous sample.
type Engine struct {
	store *history.Store
	rng   *rand.Rand
}

// NewEngine creates an engine over a history store. A nil rng gets a
// time-seeded source; tests inject a fixed seed to pin template choice.
func NewEngine(store *history.Store, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{store: store, rng: rng}
}

// Recommend records the current sample and classifies the session state.
// The append happens before the temporal reads so the window always
// includes the frame being answered; that ordering is part of the
// contract.
//
// Rules apply in priority order, first match wins:
//  1. avg stress > 0.65            -> high_stress
//  2. avg stress > 0.45            -> moderate_stress
//  3. dominant in sad/angry/fearful -> sadness
//  4. dominant in happy/surprised   -> positive
//  5. otherwise                     -> neutral
func (e *Engine) Recommend(sessionID, emotion string, stressScore float64) *models.Advisory {
	e.store.AppendPrediction(sessionID, emotion, stressScore)

	avgStress := e.store.MeanStress(sessionID, history.DefaultWindow)
	dominant := e.store.DominantEmotion(sessionID, history.DefaultWindow)

	category, confidence := classify(avgStress, dominant)

	choices := Templates(category)
	advice := choices[e.rng.Intn(len(choices))]

	return &models.Advisory{
		AdviceID:   uuid.NewString()[:8],
		Category:   category,
		Advice:     advice,
		Confidence: confidence,
	}
}

func classify(avgStress float64, dominant string) (string, float64) {
	switch {
	case avgStress > 0.65:
		return models.CategoryHighStress, math.Min(0.95, 0.6+avgStress*0.3)
	case avgStress > 0.45:
		return models.CategoryModerateStress, 0.6 + avgStress*0.2
	case dominant == models.EmotionSad || dominant == models.EmotionAngry || dominant == models.EmotionFearful:
		return models.CategorySadness, 0.7
	case dominant == models.EmotionHappy || dominant == models.EmotionSurprised:
		return models.CategoryPositive, 0.75
	default:
		return models.CategoryNeutral, 0.5
	}
}
