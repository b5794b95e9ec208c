package fitness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/2beens/fittracker/internal/telemetry/tracing"
	"github.com/2beens/fittracker/pkg"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// workoutStore is implemented by *Storage
type workoutStore interface {
	SaveProfile(ctx context.Context, profile *UserProfile) error
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	GetCurrentWorkout(ctx context.Context, userID string) (*WorkoutPlan, error)
	GetAllWorkouts(ctx context.Context, userID string) []*WorkoutPlan
	UpdateExerciseCompletion(ctx context.Context, userID, day string, exerciseIndex int, completed bool) (bool, error)
	GetProgress(ctx context.Context, userID string) (*UserProgress, error)
	UpdateProgress(ctx context.Context, userID string, progress *UserProgress) error
	CalculateCompletionPercentage(ctx context.Context, userID string) float64
	UpdateStreak(ctx context.Context, userID string, newStreak int) error
}

type Handler struct {
	store workoutStore
}

func NewHandler(store workoutStore) *Handler {
	return &Handler{
		store: store,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/profile", handler.handleSaveProfile).Methods("POST", "OPTIONS").Name("save-profile")
	router.HandleFunc("/profile/{userId}", handler.handleGetProfile).Methods("GET", "OPTIONS").Name("get-profile")

	router.HandleFunc("/workout/history/{userId}", handler.handleGetWorkoutHistory).Methods("GET", "OPTIONS").Name("workout-history")
	router.HandleFunc("/workout/{userId}", handler.handleGetCurrentWorkout).Methods("GET", "OPTIONS").Name("current-workout")

	router.HandleFunc("/progress/exercise", handler.handleUpdateExercise).Methods("POST", "OPTIONS").Name("update-exercise")
	router.HandleFunc("/progress/streak", handler.handleUpdateStreak).Methods("POST", "OPTIONS").Name("update-streak")
	router.HandleFunc("/progress/{userId}", handler.handleGetProgress).Methods("GET", "OPTIONS").Name("get-progress")

	router.HandleFunc("/user/id", handler.handleNewUserID).Methods("POST", "OPTIONS").Name("new-user-id")
	router.HandleFunc("/user/{userId}", handler.handleDeleteUser).Methods("DELETE", "OPTIONS").Name("delete-user")

	router.HandleFunc("/stats/{userId}", handler.handleGetStats).Methods("GET", "OPTIONS").Name("get-stats")
}

// WriteAPIError writes the error envelope used across all endpoints:
//
//	{"success": false, "error": "..."}
func WriteAPIError(w http.ResponseWriter, statusCode int, message string) {
	respJson, err := json.Marshal(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{
		Success: false,
		Error:   message,
	})
	if err != nil {
		log.Errorf("marshal error response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, statusCode)
}

func writeAPIResponse(w http.ResponseWriter, resp interface{}) {
	respJson, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal response: %s", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "fitnessHandler.saveProfile")
	defer span.End()

	var profile UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		log.Errorf("save profile, decode body: %s", err)
		WriteAPIError(w, http.StatusBadRequest, "invalid profile payload")
		return
	}
	if profile.UserID == "" {
		WriteAPIError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := handler.store.SaveProfile(ctx, &profile); err != nil {
		log.Errorf("save profile for user [%s]: %s", profile.UserID, err)
		WriteAPIError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}

	writeAPIResponse(w, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{
		Success: true,
		Message: "profile saved successfully",
	})
}

func (handler *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "fitnessHandler.getProfile")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	profile, err := handler.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			WriteAPIError(w, http.StatusNotFound, "profile not found")
			return
		}
		log.Errorf("get profile for user [%s]: %s", userID, err)
		WriteAPIError(w, http.StatusInternalServerError, "failed to get profile")
		return
	}

	writeAPIResponse(w, struct {
		Success bool         `json:"success"`
		Profile *UserProfile `json:"profile"`
	}{
		Success: true,
		Profile: profile,
	})
}

func (handler *Handler) handleGetCurrentWorkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "fitnessHandler.getCurrentWorkout")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	workout, err := handler.store.GetCurrentWorkout(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrWorkoutNotFound) {
			WriteAPIError(w, http.StatusNotFound, "no workout found, generate one first")
			return
		}
		log.Errorf("get current workout for user [%s]: %s", userID, err)
		WriteAPIError(w, http.StatusInternalServerError, "failed to get workout")
		return
	}

	writeAPIResponse(w, WorkoutResponse{
		Success: true,
		Workout: workout,
	})
}

func (handler *Handler) handleGetWorkoutHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "fitnessHandler.getWorkoutHistory")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	workouts := handler.store.GetAllWorkouts(ctx, userID)
	if workouts == nil {
		workouts = []*WorkoutPlan{}
	}

	writeAPIResponse(w, struct {
		Success  bool           `json:"success"`
		Workouts []*WorkoutPlan `json:"workouts"`
		Count    int            `json:"count"`
	}{
		Success:  true,
		Workouts: workouts,
		Count:    len(workouts),
	})
}

// handleUpdateExercise toggles the completed flag of one exercise and then
// recounts the affected day's totals in the user's progress record, so the
// progress table always mirrors the current workout
func (handler *Handler) handleUpdateExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "fitnessHandler.updateExercise")
	defer span.End()

	var req UpdateExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("update exercise, decode body: %s", err)
		WriteAPIError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	updated, err := handler.store.UpdateExerciseCompletion(ctx, req.UserID, req.Day, req.ExerciseIndex, req.Completed)
	if err != nil {
		log.Errorf("update exercise for user [%s]: %s", req.UserID, err)
		WriteAPIError(w, http.StatusInternalServerError, "failed to update exercise")
		return
	}
	if !updated {
		WriteAPIError(w, http.StatusNotFound, "exercise not found")
		return
	}

	if err := handler.recountDayProgress(ctx, req.UserID, req.Day); err != nil {
		log.Errorf("recount day progress for user [%s]: %s", req.UserID, err)
		WriteAPIError(w, http.StatusInternalServerError, "failed to update progress")
		return
	}

	completion := handler.store.CalculateCompletionPercentage(ctx, req.UserID)
	progress, err := handler.store.GetProgress(ctx, req.UserID)
	if err != nil && !errors.Is(err, ErrProgressNotFound) {
		log.Errorf("get progress for user [%s]: %s", req.UserID, err)
		WriteAPIError(w, http.StatusInternalServerError, "failed to get progress")
		return
	}

	writeAPIResponse(w, ProgressResponse{
		Success:           true,
		Progress:          progress,
		OverallCompletion: completion,
		CurrentStreak:     currentStreak(progress),
	})
}

// recountDayProgress syncs the progress record of a single day with the
// exercise completion state in the current workout. Day labels are matched
// exactly here, unlike the case-insensitive toggle. A user without a
// progress record is skipped.
func (handler *Handler) recountDayProgress(ctx context.Context, userID, day string) error {
	progress, err := handler.store.GetProgress(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProgressNotFound) {
			return nil
		}
		return fmt.Errorf("get progress: %w", err)
	}

	workout, err := handler.store.GetCurrentWorkout(ctx, userID)
	if err != nil {
		return fmt.Errorf("get current workout: %w", err)
	}

	for _, dayWorkout := range workout.Days {
		if dayWorkout.Day != day {
			continue
		}
		completedCount := 0
		for _, exercise := range dayWorkout.Exercises {
			if exercise.Completed {
				completedCount++
			}
		}
		for i := range progress.Days {
			if progress.Days[i].Day == day {
				progress.Days[i].TotalExercises = len(dayWorkout.Exercises)
				progress.Days[i].ExercisesCompleted = completedCount
				break
			}
		}
		break
	}

	return handler.store.UpdateProgress(ctx, userID, progress)
}

func (handler *Handler) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "fitnessHandler.getProgress")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	progress, err := handler.store.GetProgress(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProgressNotFound) {
			WriteAPIError(w, http.StatusNotFound, "no progress found")
			return
		}
		log.Errorf("get progress for user [%s]: %s", userID, err)
		WriteAPIError(w, http.StatusInternalServerError, "failed to get progress")
		return
	}

	writeAPIResponse(w, ProgressResponse{
		Success:           true,
		Progress:          progress,
		OverallCompletion: handler.store.CalculateCompletionPercentage(ctx, userID),
		CurrentStreak:     progress.CurrentStreak,
	})
}

func (handler *Handler) handleUpdateStreak(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "fitnessHandler.updateStreak")
	defer span.End()

	var req UpdateStreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("update streak, decode body: %s", err)
		WriteAPIError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := handler.store.UpdateStreak(ctx, req.UserID, req.Streak); err != nil {
		log.Errorf("update streak for user [%s]: %s", req.UserID, err)
		WriteAPIError(w, http.StatusInternalServerError, "failed to update streak")
		return
	}

	writeAPIResponse(w, struct {
		Success       bool `json:"success"`
		CurrentStreak int  `json:"current_streak"`
	}{
		Success:       true,
		CurrentStreak: req.Streak,
	})
}

func (handler *Handler) handleNewUserID(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "fitnessHandler.newUserID")
	defer span.End()

	writeAPIResponse(w, struct {
		Success bool   `json:"success"`
		UserID  string `json:"user_id"`
	}{
		Success: true,
		UserID:  uuid.NewString(),
	})
}

// handleDeleteUser acknowledges the deletion request without touching
// stored data. Actual removal is done through a separate offline process.
// TODO: wire real deletion once the data retention policy is settled
func (handler *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "fitnessHandler.deleteUser")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	log.Warnf("user data deletion requested for [%s]", userID)

	writeAPIResponse(w, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{
		Success: true,
		Message: "user data deletion request received",
	})
}

func (handler *Handler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "fitnessHandler.getStats")
	defer span.End()

	userID := mux.Vars(r)["userId"]

	profile, err := handler.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			WriteAPIError(w, http.StatusNotFound, "profile not found")
			return
		}
		log.Errorf("get stats, get profile for user [%s]: %s", userID, err)
		WriteAPIError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	// progress and workout are optional, a fresh user has neither
	progress, err := handler.store.GetProgress(ctx, userID)
	if err != nil && !errors.Is(err, ErrProgressNotFound) {
		log.Errorf("get stats, get progress for user [%s]: %s", userID, err)
		WriteAPIError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	currentWorkout, err := handler.store.GetCurrentWorkout(ctx, userID)
	if err != nil && !errors.Is(err, ErrWorkoutNotFound) {
		log.Errorf("get stats, get current workout for user [%s]: %s", userID, err)
		WriteAPIError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	writeAPIResponse(w, StatsResponse{
		Success:          true,
		Profile:          profile,
		Progress:         progress,
		CurrentWorkout:   currentWorkout,
		WorkoutsCount:    len(handler.store.GetAllWorkouts(ctx, userID)),
		WeeklyCompletion: handler.store.CalculateCompletionPercentage(ctx, userID),
		CurrentStreak:    currentStreak(progress),
	})
}

func currentStreak(progress *UserProgress) int {
	if progress == nil {
		return 0
	}
	return progress.CurrentStreak
}
