package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/2beens/fittracker/internal/fitness"
)

const workoutPromptTemplate = `You are an expert fitness coach AI.

You MUST return ONLY valid JSON.
NO explanations.
NO markdown.
NO text outside JSON.

The JSON MUST strictly follow this schema:

{
  "week": number,
  "days": [
    {
      "day": string,
      "focus": string,
      "exercises": [
        {
          "name": string,
          "sets": number,
          "reps": string,
          "rest_seconds": number,
          "notes": string,
          "completed": false
        }
      ]
    }
  ],
  "total_days_in_week": number
}

User profile:
%s

Previous workout:
%s

User feedback:
%s

CRITICAL RULES:
1. You MUST generate EXACTLY %d workout days.
2. Do NOT generate more or fewer days under any circumstance.
3. Each day MUST be explicitly numbered from Day 1 to Day %d.
4. If you cannot comply, regenerate internally until you can.
- Use realistic exercises
- Match user's fitness level and goal
- Respect available days per week
- Make workouts varied and progressive`

// BuildWorkoutPrompt renders the model prompt for the given profile.
// A previous workout and free-form feedback are optional, they steer
// regeneration. The profile's available days drive the strict day
// count demanded from the model.
func BuildWorkoutPrompt(
	profile *fitness.UserProfile,
	previousWorkout *fitness.WorkoutPlan,
	feedback string,
) (string, error) {
	days := profile.AvailableDaysPerWeek
	if days <= 0 {
		return "", ErrAvailableDaysMissing
	}

	profileJson, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}

	previousWorkoutJson := []byte("none")
	if previousWorkout != nil {
		previousWorkoutJson, err = json.Marshal(previousWorkout)
		if err != nil {
			return "", fmt.Errorf("marshal previous workout: %w", err)
		}
	}

	if feedback == "" {
		feedback = "none"
	}

	return fmt.Sprintf(
		workoutPromptTemplate,
		profileJson,
		previousWorkoutJson,
		feedback,
		days,
		days,
	), nil
}
