package recommend

import (
	"math"
	"math/rand"
	"testing"

	"mood-backend/internal/history"
	"mood-backend/internal/models"
)

func newTestEngine() (*Engine, *history.Store) {
	store := history.NewStore()
	return NewEngine(store, rand.New(rand.NewSource(1))), store
}

func TestRecommend_FreshSessionPositive(t *testing.T) {
	e, _ := newTestEngine()

	// Single happy low-stress frame: both stress rules miss (0.1), the
	// dominant emotion is the frame itself because the append happens
	// before the temporal reads.
	adv := e.Recommend("s1", models.EmotionHappy, 0.1)

	if adv.Category != models.CategoryPositive {
		t.Fatalf("category = %q, want positive", adv.Category)
	}
	if adv.Confidence != 0.75 {
		t.Fatalf("confidence = %v, want 0.75", adv.Confidence)
	}
}

func TestRecommend_HighStressWinsOverSadness(t *testing.T) {
	e, store := newTestEngine()

	// History that makes avg stress 0.7 AND dominant emotion sad: the
	// stress rule is checked first, so high_stress must win.
	for i := 0; i < 4; i++ {
		store.AppendPrediction("s1", models.EmotionSad, 0.7)
	}

	adv := e.Recommend("s1", models.EmotionSad, 0.7)

	if adv.Category != models.CategoryHighStress {
		t.Fatalf("category = %q, want high_stress", adv.Category)
	}
}

func TestRecommend_SustainedHighStress(t *testing.T) {
	e, _ := newTestEngine()

	for _, v := range []float64{0.9, 0.8, 0.85, 0.7, 0.75} {
		e.Recommend("s1", models.EmotionAngry, v)
	}

	adv := e.Recommend("s1", models.EmotionAngry, 0.8)

	if adv.Category != models.CategoryHighStress {
		t.Fatalf("category = %q, want high_stress", adv.Category)
	}
	if adv.Confidence < 0.6 || adv.Confidence > 0.95 {
		t.Fatalf("confidence = %v, want within [0.6, 0.95]", adv.Confidence)
	}
}

func TestRecommend_SadnessFromDominantEmotion(t *testing.T) {
	e, _ := newTestEngine()

	for i := 0; i < 4; i++ {
		e.Recommend("s1", models.EmotionFearful, 0.2)
	}
	adv := e.Recommend("s1", models.EmotionFearful, 0.2)

	if adv.Category != models.CategorySadness {
		t.Fatalf("category = %q, want sadness", adv.Category)
	}
	if adv.Confidence != 0.7 {
		t.Fatalf("confidence = %v, want 0.7", adv.Confidence)
	}
}

func TestRecommend_NeutralDefault(t *testing.T) {
	e, _ := newTestEngine()

	adv := e.Recommend("s1", models.EmotionNeutral, 0.2)

	if adv.Category != models.CategoryNeutral {
		t.Fatalf("category = %q, want neutral", adv.Category)
	}
	if adv.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5", adv.Confidence)
	}
}

func TestClassify_BoundaryIsStrictlyGreater(t *testing.T) {
	// Exactly 0.65 misses the high_stress rule and lands in moderate.
	category, confidence := classify(0.65, "")

	if category != models.CategoryModerateStress {
		t.Fatalf("category at 0.65 = %q, want moderate_stress", category)
	}
	if math.Abs(confidence-0.73) > 1e-9 {
		t.Fatalf("confidence at 0.65 = %v, want 0.73", confidence)
	}
}

func TestClassify_ConfidenceCap(t *testing.T) {
	_, confidence := classify(1.0, "")
	if confidence != 0.95 {
		t.Fatalf("confidence at avg 1.0 = %v, want capped 0.95", confidence)
	}
}

func TestRecommend_AdviceComesFromCategoryCatalog(t *testing.T) {
	e, _ := newTestEngine()

	adv := e.Recommend("s1", models.EmotionHappy, 0.9)

	found := false
	for _, tmpl := range Templates(adv.Category) {
		if tmpl == adv.Advice {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("advice %q not in catalog for %q", adv.Advice, adv.Category)
	}
}

func TestRecommend_AdviceIDShape(t *testing.T) {
	e, _ := newTestEngine()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		adv := e.Recommend("s1", models.EmotionNeutral, 0.3)
		if len(adv.AdviceID) != 8 {
			t.Fatalf("advice ID %q has length %d, want 8", adv.AdviceID, len(adv.AdviceID))
		}
		seen[adv.AdviceID] = true
	}
	if len(seen) < 99 {
		t.Fatalf("advice IDs collide too often: %d unique of 100", len(seen))
	}
}

func TestTemplates_FatigueExistsButUnreachable(t *testing.T) {
	if len(Templates(models.CategoryFatigue)) != 2 {
		t.Fatalf("fatigue catalog should keep its 2 templates")
	}

	// No combination of inputs reaches fatigue under the current rules.
	for _, avg := range []float64{0.0, 0.3, 0.5, 0.7, 1.0} {
		for _, dom := range append([]string{""}, models.EmotionLabels...) {
			if category, _ := classify(avg, dom); category == models.CategoryFatigue {
				t.Fatalf("classify(%v, %q) reached fatigue", avg, dom)
			}
		}
	}
}

func TestTemplates_CatalogShape(t *testing.T) {
	counts := map[string]int{
		models.CategoryHighStress:     3,
		models.CategoryModerateStress: 2,
		models.CategorySadness:        3,
		models.CategoryFatigue:        2,
		models.CategoryNeutral:        2,
		models.CategoryPositive:       2,
	}
	for category, want := range counts {
		if got := len(Templates(category)); got != want {
			t.Fatalf("category %q has %d templates, want %d", category, got, want)
		}
	}
}
