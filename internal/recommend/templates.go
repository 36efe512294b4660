package recommend

import "mood-backend/internal/models"

// Advice template catalog, keyed by advisory category. The strings are a
// content contract with the frontend; do not reword them.
//
// The fatigue category has no trigger in the classification rules and is
// currently never selected. Kept until the rule table is revisited.
var templates = map[string][]string{
	models.CategoryHighStress: {
		"You appear stressed. Try a 5-minute breathing exercise: breathe in for 4s, hold for 4s, breathe out for 4s.",
		"High stress detected. Consider taking a short 10-minute break and stepping away from the screen.",
		"Your stress levels are elevated. A quick walk or some light stretching might help.",
	},
	models.CategoryModerateStress: {
		"You seem a bit tense. Take 3 deep breaths and relax your shoulders.",
		"Moderate stress detected. Stay hydrated and maintain good posture.",
	},
	models.CategorySadness: {
		"Feeling down? Consider reaching out to a friend or doing an activity you enjoy.",
		"You appear tired or sad. Make sure you're getting enough rest and sunlight.",
		"Take a moment for self-care. A short break with uplifting music might help.",
	},
	models.CategoryFatigue: {
		"You look tired. Consider taking a 15-minute power nap or a caffeine break.",
		"Low energy detected. Ensure you're staying hydrated and getting regular breaks.",
	},
	models.CategoryNeutral: {
		"You're doing well! Remember to take regular breaks every 50 minutes.",
		"Maintaining focus is great, but don't forget to stretch periodically.",
	},
	models.CategoryPositive: {
		"Great energy! Keep up the momentum but remember to stay hydrated.",
		"You seem focused and positive. Maintain this balance with regular breaks.",
	},
}

// Templates returns the advice texts for a category.
func Templates(category string) []string {
	return templates[category]
}
