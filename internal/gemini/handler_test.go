package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/fittracker/internal/fitness"
	"github.com/2beens/fittracker/internal/telemetry/metrics"

	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rateLimiterMock struct {
	allowed int
}

func (rl *rateLimiterMock) Allow(_ context.Context, _ string, _ redis_rate.Limit) (*redis_rate.Result, error) {
	return &redis_rate.Result{Allowed: rl.allowed}, nil
}

type generatorTestSuite struct {
	storage        *fitness.Storage
	client         *completionClientMock
	metricsManager *metrics.Manager
	router         *mux.Router
}

func newGeneratorTestSuite(t *testing.T) *generatorTestSuite {
	t.Helper()

	storage, err := fitness.NewStorage(t.TempDir())
	require.NoError(t, err)

	client := &completionClientMock{}
	metricsManager := metrics.NewTestManager()

	router := mux.NewRouter()
	handler := NewHandler(NewGenerator(client), storage, metricsManager)
	handler.SetupRoutes(router, &rateLimiterMock{allowed: 1}, 5)

	return &generatorTestSuite{
		storage:        storage,
		client:         client,
		metricsManager: metricsManager,
		router:         router,
	}
}

func (suite *generatorTestSuite) post(t *testing.T, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	bodyJson, err := json.Marshal(body)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	suite.router.ServeHTTP(rr, httptest.NewRequest("POST", target, bytes.NewReader(bodyJson)))
	return rr
}

func TestHandler_Generate(t *testing.T) {
	suite := newGeneratorTestSuite(t)
	ctx := context.Background()
	suite.client.completion = validCompletion(t, 3)

	rr := suite.post(t, "/workout/generate", fitness.GenerateWorkoutRequest{
		UserProfile: fitness.UserProfile{UserID: "user1", AvailableDaysPerWeek: 3},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp fitness.WorkoutResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "workout generated successfully", resp.Message)
	assert.Equal(t, "user1", resp.Workout.UserID)

	// the profile, workout and a fresh progress record are all persisted
	_, err := suite.storage.GetProfile(ctx, "user1")
	require.NoError(t, err)
	workout, err := suite.storage.GetCurrentWorkout(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, workout.Days, 3)
	progress, err := suite.storage.GetProgress(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, progress.Days, 3)

	assert.Equal(t, float64(1), testutil.ToFloat64(suite.metricsManager.CounterWorkoutsGenerated))
	assert.Equal(t, float64(0), testutil.ToFloat64(suite.metricsManager.CounterGenerationFailures))
}

func TestHandler_Generate_AssignsUserID(t *testing.T) {
	suite := newGeneratorTestSuite(t)
	suite.client.completion = validCompletion(t, 2)

	rr := suite.post(t, "/workout/generate", fitness.GenerateWorkoutRequest{
		UserProfile: fitness.UserProfile{AvailableDaysPerWeek: 2},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp fitness.WorkoutResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Workout.UserID, 36)
}

func TestHandler_Generate_KeepsExistingProgress(t *testing.T) {
	suite := newGeneratorTestSuite(t)
	ctx := context.Background()
	suite.client.completion = validCompletion(t, 2)

	existing, err := suite.storage.InitializeProgress(ctx, "user1", 2)
	require.NoError(t, err)
	existing.CurrentStreak = 7
	require.NoError(t, suite.storage.UpdateProgress(ctx, "user1", existing))

	rr := suite.post(t, "/workout/generate", fitness.GenerateWorkoutRequest{
		UserProfile: fitness.UserProfile{UserID: "user1", AvailableDaysPerWeek: 2},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	// regenerating for a known user must not wipe their progress
	progress, err := suite.storage.GetProgress(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 7, progress.CurrentStreak)
}

func TestHandler_Generate_ErrorMapping(t *testing.T) {
	t.Run("missing available days", func(t *testing.T) {
		suite := newGeneratorTestSuite(t)
		rr := suite.post(t, "/workout/generate", fitness.GenerateWorkoutRequest{
			UserProfile: fitness.UserProfile{UserID: "user1"},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "available_days_per_week")
	})

	t.Run("malformed model response", func(t *testing.T) {
		suite := newGeneratorTestSuite(t)
		suite.client.completion = "sure, here is your plan:"
		rr := suite.post(t, "/workout/generate", fitness.GenerateWorkoutRequest{
			UserProfile: fitness.UserProfile{UserID: "user1", AvailableDaysPerWeek: 3},
		})
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, float64(1), testutil.ToFloat64(suite.metricsManager.CounterGenerationFailures))

		// nothing half-generated gets persisted
		_, err := suite.storage.GetCurrentWorkout(context.Background(), "user1")
		assert.ErrorIs(t, err, fitness.ErrWorkoutNotFound)
	})

	t.Run("wrong day count from model", func(t *testing.T) {
		suite := newGeneratorTestSuite(t)
		suite.client.completion = validCompletion(t, 2)
		rr := suite.post(t, "/workout/generate", fitness.GenerateWorkoutRequest{
			UserProfile: fitness.UserProfile{UserID: "user1", AvailableDaysPerWeek: 3},
		})
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Contains(t, rr.Body.String(), "unusable workout plan")
	})
}

func TestHandler_Generate_NoGenerator(t *testing.T) {
	storage, err := fitness.NewStorage(t.TempDir())
	require.NoError(t, err)

	router := mux.NewRouter()
	handler := NewHandler(nil, storage, metrics.NewTestManager())
	handler.SetupRoutes(router, &rateLimiterMock{allowed: 1}, 5)

	reqJson, err := json.Marshal(fitness.GenerateWorkoutRequest{
		UserProfile: fitness.UserProfile{UserID: "user1", AvailableDaysPerWeek: 3},
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/workout/generate", bytes.NewReader(reqJson)))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "GEMINI_API_KEY")
}

func TestHandler_Regenerate(t *testing.T) {
	suite := newGeneratorTestSuite(t)
	ctx := context.Background()
	suite.client.completion = validCompletion(t, 3)

	// no profile yet
	rr := suite.post(t, "/workout/regenerate", fitness.RegenerateWorkoutRequest{
		UserID: "user1", FeedbackType: "too_hard",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	require.NoError(t, suite.storage.SaveProfile(ctx, &fitness.UserProfile{
		UserID: "user1", AvailableDaysPerWeek: 3,
	}))
	currentWorkout := &fitness.WorkoutPlan{UserID: "user1", Week: 1, TotalDaysInWeek: 3}
	require.NoError(t, suite.storage.SaveWorkout(ctx, currentWorkout))

	rr = suite.post(t, "/workout/regenerate", fitness.RegenerateWorkoutRequest{
		UserID:         "user1",
		CurrentWorkout: currentWorkout,
		FeedbackType:   "too_hard",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp fitness.WorkoutResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "workout regenerated with 'too_hard' adjustments", resp.Message)

	// the feedback type is forwarded to the model
	assert.Contains(t, suite.client.gotPrompt, "too_hard")

	// regeneration appends to the history
	assert.Len(t, suite.storage.GetAllWorkouts(ctx, "user1"), 2)
}

func TestHandler_Generate_RateLimited(t *testing.T) {
	storage, err := fitness.NewStorage(t.TempDir())
	require.NoError(t, err)

	metricsManager := metrics.NewTestManager()
	router := mux.NewRouter()
	handler := NewHandler(NewGenerator(&completionClientMock{}), storage, metricsManager)
	handler.SetupRoutes(router, &rateLimiterMock{allowed: 0}, 5)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/workout/generate", bytes.NewReader([]byte("{}"))))
	assert.Equal(t, http.StatusTooEarly, rr.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterRateLimitedRequests))
}
