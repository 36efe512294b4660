package aggregator

import (
	"context"
	"fmt"
	"math"

	"mood-backend/internal/models"
)

// fetchLimit caps how many persisted predictions feed the aggregate.
// Records beyond the cap are silently excluded.
const fetchLimit = 1000

// PredictionReader supplies persisted predictions, newest relevant
// records first up to limit.
type PredictionReader interface {
	ListPredictions(ctx context.Context, sessionID string, limit int) ([]*models.PredictionRecord, error)
}

// SessionAggregator folds a session's stored predictions into its
// closing summary.
type SessionAggregator struct {
	reader PredictionReader
}

func New(reader PredictionReader) *SessionAggregator {
	return &SessionAggregator{reader: reader}
}

// Finalize computes the session aggregate from scratch. Calling it again
// over the same stored data yields the same result.
//
// Dominant mood is the arg-max over per-emotion mean probabilities, not
// a majority vote of per-frame dominant labels: a session of mildly
// happy frames with one intense sad spike can still come out sad.
func (a *SessionAggregator) Finalize(ctx context.Context, sessionID string) (*models.SessionAggregate, error) {
	predictions, err := a.reader.ListPredictions(ctx, sessionID, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions for %s: %w", sessionID, err)
	}

	if len(predictions) == 0 {
		return &models.SessionAggregate{
			DominantMood:    models.EmotionNeutral,
			StressScore:     0,
			PredictionCount: 0,
		}, nil
	}

	sums := make(map[string]float64, len(models.EmotionLabels))
	var stressSum float64
	for _, p := range predictions {
		for label, prob := range p.EmotionProb {
			sums[label] += prob
		}
		stressSum += p.StressScore
	}

	dominant := models.EmotionNeutral
	best := math.Inf(-1)
	for _, label := range models.EmotionLabels {
		if mean := sums[label] / float64(len(predictions)); mean > best {
			best = mean
			dominant = label
		}
	}

	meanStress := stressSum / float64(len(predictions))

	return &models.SessionAggregate{
		DominantMood:    dominant,
		StressScore:     math.Round(meanStress*100) / 100,
		PredictionCount: len(predictions),
	}, nil
}
