package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2beens/fittracker/internal/fitness"
	"github.com/2beens/fittracker/internal/middleware"
	"github.com/2beens/fittracker/internal/telemetry/metrics"
	"github.com/2beens/fittracker/internal/telemetry/tracing"
	"github.com/2beens/fittracker/pkg"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type workoutGenerator interface {
	GenerateWorkout(
		ctx context.Context,
		profile *fitness.UserProfile,
		userID string,
		previousWorkout *fitness.WorkoutPlan,
		feedback string,
	) (*fitness.WorkoutPlan, error)
}

// generationStore is implemented by *fitness.Storage
type generationStore interface {
	SaveProfile(ctx context.Context, profile *fitness.UserProfile) error
	GetProfile(ctx context.Context, userID string) (*fitness.UserProfile, error)
	SaveWorkout(ctx context.Context, workout *fitness.WorkoutPlan) error
	GetProgress(ctx context.Context, userID string) (*fitness.UserProgress, error)
	InitializeProgress(ctx context.Context, userID string, totalDays int) (*fitness.UserProgress, error)
}

// Handler serves the workout generation endpoints. The generator may be
// nil when no API key was configured at startup, generation requests are
// then rejected with 503 while the rest of the API keeps working.
type Handler struct {
	generator      workoutGenerator
	store          generationStore
	metricsManager *metrics.Manager
}

func NewHandler(
	generator workoutGenerator,
	store generationStore,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		generator:      generator,
		store:          store,
		metricsManager: metricsManager,
	}
}

func (handler *Handler) SetupRoutes(
	router *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	generateAllowedPerMin int,
) {
	workoutRouter := router.PathPrefix("/workout").Subrouter()
	workoutRouter.HandleFunc("/generate", handler.handleGenerate).Methods("POST", "OPTIONS").Name("generate-workout")
	workoutRouter.HandleFunc("/regenerate", handler.handleRegenerate).Methods("POST", "OPTIONS").Name("regenerate-workout")
	workoutRouter.Use(
		middleware.RateLimit(rateLimiter, "workout-generation", generateAllowedPerMin, handler.metricsManager),
	)
}

func (handler *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "geminiHandler.generate")
	defer span.End()

	if handler.generator == nil {
		WriteGenerationUnavailable(w)
		return
	}

	var req fitness.GenerateWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("generate workout, decode body: %s", err)
		fitness.WriteAPIError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	profile := req.UserProfile
	if profile.UserID == "" {
		profile.UserID = uuid.NewString()
	}

	if err := handler.store.SaveProfile(ctx, &profile); err != nil {
		log.Errorf("generate workout, save profile for user [%s]: %s", profile.UserID, err)
		fitness.WriteAPIError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}

	workout, ok := handler.generateWorkout(ctx, w, &profile, req.PreviousWorkout, req.Feedback)
	if !ok {
		return
	}

	if err := handler.store.SaveWorkout(ctx, workout); err != nil {
		log.Errorf("generate workout, save workout for user [%s]: %s", profile.UserID, err)
		fitness.WriteAPIError(w, http.StatusInternalServerError, "failed to save workout")
		return
	}

	// first generation also seeds the progress table
	if _, err := handler.store.GetProgress(ctx, profile.UserID); errors.Is(err, fitness.ErrProgressNotFound) {
		if _, err := handler.store.InitializeProgress(ctx, profile.UserID, workout.TotalDaysInWeek); err != nil {
			log.Errorf("generate workout, initialize progress for user [%s]: %s", profile.UserID, err)
			fitness.WriteAPIError(w, http.StatusInternalServerError, "failed to initialize progress")
			return
		}
	}

	writeWorkoutResponse(w, workout, "workout generated successfully")
}

func (handler *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "geminiHandler.regenerate")
	defer span.End()

	if handler.generator == nil {
		WriteGenerationUnavailable(w)
		return
	}

	var req fitness.RegenerateWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("regenerate workout, decode body: %s", err)
		fitness.WriteAPIError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	profile, err := handler.store.GetProfile(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, fitness.ErrProfileNotFound) {
			fitness.WriteAPIError(w, http.StatusNotFound, "profile not found")
			return
		}
		log.Errorf("regenerate workout, get profile for user [%s]: %s", req.UserID, err)
		fitness.WriteAPIError(w, http.StatusInternalServerError, "failed to get profile")
		return
	}

	workout, ok := handler.generateWorkout(ctx, w, profile, req.CurrentWorkout, req.FeedbackType)
	if !ok {
		return
	}

	if err := handler.store.SaveWorkout(ctx, workout); err != nil {
		log.Errorf("regenerate workout, save workout for user [%s]: %s", req.UserID, err)
		fitness.WriteAPIError(w, http.StatusInternalServerError, "failed to save workout")
		return
	}

	writeWorkoutResponse(w, workout, "workout regenerated with '"+req.FeedbackType+"' adjustments")
}

// generateWorkout runs the generation pipeline, records its metrics and
// maps generation errors to HTTP statuses. On failure, the error response
// has already been written and false is returned.
func (handler *Handler) generateWorkout(
	ctx context.Context,
	w http.ResponseWriter,
	profile *fitness.UserProfile,
	previousWorkout *fitness.WorkoutPlan,
	feedback string,
) (*fitness.WorkoutPlan, bool) {
	startTime := time.Now()
	workout, err := handler.generator.GenerateWorkout(ctx, profile, profile.UserID, previousWorkout, feedback)
	handler.metricsManager.HistModelCallDuration.Observe(time.Since(startTime).Seconds())

	if err != nil {
		handler.metricsManager.CounterGenerationFailures.Inc()
		log.Errorf("generate workout for user [%s]: %s", profile.UserID, err)
		switch {
		case errors.Is(err, ErrAvailableDaysMissing):
			fitness.WriteAPIError(w, http.StatusBadRequest, ErrAvailableDaysMissing.Error())
		case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrSchemaViolation):
			fitness.WriteAPIError(w, http.StatusInternalServerError, "model returned an unusable workout plan")
		default:
			fitness.WriteAPIError(w, http.StatusInternalServerError, "workout generation failed")
		}
		return nil, false
	}

	handler.metricsManager.CounterWorkoutsGenerated.Inc()
	return workout, true
}

// WriteGenerationUnavailable writes the 503 used when no generator is
// configured
func WriteGenerationUnavailable(w http.ResponseWriter) {
	fitness.WriteAPIError(
		w,
		http.StatusServiceUnavailable,
		"workout generation unavailable, check GEMINI_API_KEY",
	)
}

func writeWorkoutResponse(w http.ResponseWriter, workout *fitness.WorkoutPlan, message string) {
	respJson, err := json.Marshal(fitness.WorkoutResponse{
		Success: true,
		Workout: workout,
		Message: message,
	})
	if err != nil {
		log.Errorf("marshal workout response: %s", err)
		fitness.WriteAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
