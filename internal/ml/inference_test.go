package ml

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"mood-backend/internal/models"
)

func TestMock_Shape(t *testing.T) {
	a := NewAdapter(nil, rand.New(rand.NewSource(7)))

	for i := 0; i < 50; i++ {
		p := a.Mock()

		if p.Emotion != models.EmotionNeutral {
			t.Fatalf("mock dominant = %q, want neutral", p.Emotion)
		}
		if len(p.EmotionProb) != len(models.EmotionLabels) {
			t.Fatalf("mock distribution has %d labels, want %d", len(p.EmotionProb), len(models.EmotionLabels))
		}

		neutral := p.EmotionProb[models.EmotionNeutral]
		if neutral < 0.4 || neutral > 0.7 {
			t.Fatalf("neutral probability %v outside [0.4, 0.7]", neutral)
		}

		var total float64
		for label, prob := range p.EmotionProb {
			if prob < 0 || prob > 1 {
				t.Fatalf("probability for %q = %v outside [0,1]", label, prob)
			}
			if prob > neutral {
				t.Fatalf("label %q (%v) outranks neutral (%v)", label, prob, neutral)
			}
			total += prob
		}
		if math.Abs(total-1.0) > 1e-9 {
			t.Fatalf("distribution sums to %v, want 1", total)
		}

		if p.StressScore < 0.1 || p.StressScore > 0.5 {
			t.Fatalf("stress %v outside [0.1, 0.5]", p.StressScore)
		}
	}
}

func TestMock_RemainingMassProportional(t *testing.T) {
	a := NewAdapter(nil, rand.New(rand.NewSource(3)))
	p := a.Mock()

	// sad and surprised carry twice the base weight of happy.
	if math.Abs(p.EmotionProb[models.EmotionSad]-2*p.EmotionProb[models.EmotionHappy]) > 1e-9 {
		t.Fatalf("sad/happy ratio broken: %v vs %v",
			p.EmotionProb[models.EmotionSad], p.EmotionProb[models.EmotionHappy])
	}
	if math.Abs(p.EmotionProb[models.EmotionSurprised]-p.EmotionProb[models.EmotionSad]) > 1e-9 {
		t.Fatalf("surprised should match sad: %v vs %v",
			p.EmotionProb[models.EmotionSurprised], p.EmotionProb[models.EmotionSad])
	}
}

func TestInfer_NoModelServesMock(t *testing.T) {
	a := NewAdapter(nil, rand.New(rand.NewSource(11)))

	p, err := a.Infer(models.FeatureFrame{"face_kp": {0.1, 0.2, 0.3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Emotion != models.EmotionNeutral {
		t.Fatalf("mock-mode dominant = %q, want neutral", p.Emotion)
	}
}

func TestInfer_NonFiniteValuesRejected(t *testing.T) {
	a := NewAdapter(nil, rand.New(rand.NewSource(5)))

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := a.Infer(models.FeatureFrame{"face_kp": {0.1, bad}})

		var infErr *InferenceError
		if !errors.As(err, &infErr) {
			t.Fatalf("value %v: got %v, want InferenceError", bad, err)
		}
	}
}

func TestInfer_WrongArityRejected(t *testing.T) {
	model := &Model{
		InputDim: 4,
		Weights:  map[string][]float64{models.EmotionHappy: {1, 1, 1, 1}},
		Bias:     map[string]float64{},
	}
	a := NewAdapter(model, rand.New(rand.NewSource(5)))

	_, err := a.Infer(models.FeatureFrame{"face_kp": {0.1, 0.2}})

	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("got %v, want InferenceError for wrong arity", err)
	}
}

func TestInfer_LinearModel(t *testing.T) {
	// Heavily weighted toward happy on the first input.
	model := &Model{
		InputDim: 2,
		Weights: map[string][]float64{
			models.EmotionHappy: {5, 0},
			models.EmotionSad:   {-5, 0},
		},
		Bias:          map[string]float64{},
		StressWeights: []float64{0, 10},
		StressBias:    -5,
	}
	a := NewAdapter(model, rand.New(rand.NewSource(5)))

	p, err := a.Infer(models.FeatureFrame{"face_kp": {1.0, 1.0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Emotion != models.EmotionHappy {
		t.Fatalf("dominant = %q, want happy", p.Emotion)
	}

	var total float64
	for _, prob := range p.EmotionProb {
		total += prob
	}
	if math.Abs(total-1.0) > 1e-9 {
		t.Fatalf("distribution sums to %v, want 1", total)
	}

	// sigmoid(0*1 + 10*1 - 5) = sigmoid(5)
	want := 1.0 / (1.0 + math.Exp(-5))
	if math.Abs(p.StressScore-want) > 1e-9 {
		t.Fatalf("stress = %v, want %v", p.StressScore, want)
	}
}

func TestInfer_FlattenOrderIsStable(t *testing.T) {
	// Groups concatenate in sorted name order: face_kp before pose_kp.
	model := &Model{
		InputDim: 3,
		Weights: map[string][]float64{
			models.EmotionAngry: {10, 0, 0}, // keyed to face_kp[0]
		},
		Bias: map[string]float64{},
	}
	a := NewAdapter(model, rand.New(rand.NewSource(5)))

	p, err := a.Infer(models.FeatureFrame{
		"pose_kp": {0.0, 0.0},
		"face_kp": {1.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Emotion != models.EmotionAngry {
		t.Fatalf("dominant = %q, want angry", p.Emotion)
	}
}

func TestLoadModel_MissingFileMeansMockMode(t *testing.T) {
	model, err := LoadModel(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing model file should not error, got %v", err)
	}
	if model != nil {
		t.Fatalf("expected nil model for missing file")
	}
}
