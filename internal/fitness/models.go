package fitness

import (
	"fmt"
	"time"
)

// UserProfile holds the fitness attributes driving workout generation.
// AvailableDaysPerWeek is the only hard-required field, it dictates
// the number of days in every generated plan.
type UserProfile struct {
	UserID               string   `json:"user_id,omitempty"`
	Age                  int      `json:"age,omitempty"`
	Gender               string   `json:"gender,omitempty"`
	HeightCm             int      `json:"height_cm,omitempty"`
	WeightKg             float64  `json:"weight_kg,omitempty"`
	FitnessGoal          string   `json:"fitness_goal,omitempty"`
	ExperienceLevel      string   `json:"experience_level,omitempty"`
	AvailableDaysPerWeek int      `json:"available_days_per_week"`
	Equipment            []string `json:"equipment,omitempty"`
}

type Exercise struct {
	Name        string `json:"name"`
	Sets        int    `json:"sets"`
	Reps        string `json:"reps"` // may encode ranges, e.g. "8-12"
	RestSeconds int    `json:"rest_seconds"`
	Notes       string `json:"notes"`
	Completed   bool   `json:"completed"`
}

type DayWorkout struct {
	Day       string     `json:"day"` // label, e.g. "Day 1"
	Focus     string     `json:"focus"`
	Exercises []Exercise `json:"exercises"`
}

type WorkoutPlan struct {
	UserID          string       `json:"user_id"`
	Week            int          `json:"week"`
	Days            []DayWorkout `json:"days"`
	TotalDaysInWeek int          `json:"total_days_in_week"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

// Validate checks the plan against the workout schema. The day count has to
// match both the plan's own total_days_in_week and the profile's available
// days; a mismatch is rejected, never truncated or padded.
func (wp *WorkoutPlan) Validate(expectedDays int) error {
	if wp.Week < 1 {
		return fmt.Errorf("week must be a positive number, got %d", wp.Week)
	}
	if wp.TotalDaysInWeek != expectedDays {
		return fmt.Errorf("total_days_in_week is %d, expected %d", wp.TotalDaysInWeek, expectedDays)
	}
	if len(wp.Days) != wp.TotalDaysInWeek {
		return fmt.Errorf("plan has %d days, total_days_in_week says %d", len(wp.Days), wp.TotalDaysInWeek)
	}
	for i, day := range wp.Days {
		if day.Day == "" {
			return fmt.Errorf("day %d: empty day label", i+1)
		}
		if day.Focus == "" {
			return fmt.Errorf("day %d: empty focus", i+1)
		}
		if len(day.Exercises) == 0 {
			return fmt.Errorf("day %d: no exercises", i+1)
		}
		for j, exercise := range day.Exercises {
			if exercise.Name == "" {
				return fmt.Errorf("day %d, exercise %d: empty name", i+1, j+1)
			}
			if exercise.Sets < 1 {
				return fmt.Errorf("day %d, exercise %d: sets must be positive, got %d", i+1, j+1, exercise.Sets)
			}
			if exercise.Reps == "" {
				return fmt.Errorf("day %d, exercise %d: empty reps", i+1, j+1)
			}
			if exercise.RestSeconds < 0 {
				return fmt.Errorf("day %d, exercise %d: negative rest_seconds", i+1, j+1)
			}
		}
	}
	return nil
}

type UserProgressDay struct {
	Day                string `json:"day"`
	TotalExercises     int    `json:"total_exercises"`
	ExercisesCompleted int    `json:"exercises_completed"`
}

type UserProgress struct {
	UserID        string            `json:"user_id"`
	Days          []UserProgressDay `json:"days"`
	CurrentStreak int               `json:"current_streak"`
}

// request payloads

type GenerateWorkoutRequest struct {
	UserProfile     UserProfile  `json:"user_profile"`
	PreviousWorkout *WorkoutPlan `json:"previous_workout,omitempty"`
	Feedback        string       `json:"feedback,omitempty"`
}

type RegenerateWorkoutRequest struct {
	UserID         string       `json:"user_id"`
	CurrentWorkout *WorkoutPlan `json:"current_workout"`
	FeedbackType   string       `json:"feedback_type"`
}

type UpdateExerciseRequest struct {
	UserID        string `json:"user_id"`
	Day           string `json:"day"`
	ExerciseIndex int    `json:"exercise_index"`
	Completed     bool   `json:"completed"`
}

type UpdateStreakRequest struct {
	UserID string `json:"user_id"`
	Streak int    `json:"streak"`
}

// response envelopes

type WorkoutResponse struct {
	Success bool         `json:"success"`
	Workout *WorkoutPlan `json:"workout"`
	Message string       `json:"message"`
}

type ProgressResponse struct {
	Success           bool          `json:"success"`
	Progress          *UserProgress `json:"progress"`
	OverallCompletion float64       `json:"overall_completion"`
	CurrentStreak     int           `json:"current_streak"`
}

type StatsResponse struct {
	Success          bool          `json:"success"`
	Profile          *UserProfile  `json:"profile"`
	Progress         *UserProgress `json:"progress"`
	CurrentWorkout   *WorkoutPlan  `json:"current_workout"`
	WorkoutsCount    int           `json:"workouts_count"`
	WeeklyCompletion float64       `json:"weekly_completion"`
	CurrentStreak    int           `json:"current_streak"`
}
