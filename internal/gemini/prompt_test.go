package gemini

import (
	"testing"

	"github.com/2beens/fittracker/internal/fitness"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWorkoutPrompt(t *testing.T) {
	profile := &fitness.UserProfile{
		UserID:               "user1",
		Age:                  30,
		FitnessGoal:          "muscle_gain",
		AvailableDaysPerWeek: 4,
		Equipment:            []string{"barbell"},
	}

	prompt, err := BuildWorkoutPrompt(profile, nil, "")
	require.NoError(t, err)

	assert.Contains(t, prompt, "ONLY valid JSON")
	assert.Contains(t, prompt, `"total_days_in_week": number`)
	assert.Contains(t, prompt, "EXACTLY 4 workout days")
	assert.Contains(t, prompt, "from Day 1 to Day 4")
	assert.Contains(t, prompt, `"fitness_goal":"muscle_gain"`)
	assert.Contains(t, prompt, "Previous workout:\nnone")
	assert.Contains(t, prompt, "User feedback:\nnone")
}

func TestBuildWorkoutPrompt_WithPreviousAndFeedback(t *testing.T) {
	profile := &fitness.UserProfile{UserID: "user1", AvailableDaysPerWeek: 2}
	previous := &fitness.WorkoutPlan{
		UserID:          "user1",
		Week:            3,
		TotalDaysInWeek: 2,
	}

	prompt, err := BuildWorkoutPrompt(profile, previous, "shorter sessions please")
	require.NoError(t, err)

	assert.Contains(t, prompt, `"week":3`)
	assert.Contains(t, prompt, "shorter sessions please")
	assert.NotContains(t, prompt, "Previous workout:\nnone")
}

func TestBuildWorkoutPrompt_AvailableDaysRequired(t *testing.T) {
	_, err := BuildWorkoutPrompt(&fitness.UserProfile{UserID: "user1"}, nil, "")
	assert.ErrorIs(t, err, ErrAvailableDaysMissing)

	_, err = BuildWorkoutPrompt(&fitness.UserProfile{UserID: "user1", AvailableDaysPerWeek: -1}, nil, "")
	assert.ErrorIs(t, err, ErrAvailableDaysMissing)
}
