package fitness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/2beens/fittracker/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

const (
	profilesJsonFileName = "users.json"
	workoutsJsonFileName = "workouts.json"
	progressJsonFileName = "progress.json"
)

var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrWorkoutNotFound  = errors.New("workout not found")
	ErrProgressNotFound = errors.New("progress not found")
)

// Storage keeps all entities in memory and mirrors them to three JSON files
// in the data dir. Every mutation rewrites all three files. A single RWMutex
// guards each read-modify-persist cycle, there is no finer-grained locking.
type Storage struct {
	dataDir string
	mutex   sync.RWMutex

	profiles map[string]*UserProfile
	workouts map[string][]*WorkoutPlan // user id -> ordered workout history
	progress map[string]*UserProgress
}

func NewStorage(dataDir string) (*Storage, error) {
	if dataDir == "" {
		return nil, errors.New("data dir cannot be empty")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Storage{
		dataDir:  dataDir,
		profiles: make(map[string]*UserProfile),
		workouts: make(map[string][]*WorkoutPlan),
		progress: make(map[string]*UserProgress),
	}
	s.loadFromDisk()

	return s, nil
}

// loadFromDisk fills the in-memory tables from the JSON files. A missing
// file leaves its table empty; a corrupt file is logged and skipped, so
// startup never fails because of bad persisted data.
func (s *Storage) loadFromDisk() {
	if err := loadJsonFile(path.Join(s.dataDir, profilesJsonFileName), &s.profiles); err != nil {
		log.Errorf("load profiles: %s", err)
		s.profiles = make(map[string]*UserProfile)
	}
	if err := loadJsonFile(path.Join(s.dataDir, workoutsJsonFileName), &s.workouts); err != nil {
		log.Errorf("load workouts: %s", err)
		s.workouts = make(map[string][]*WorkoutPlan)
	}
	if err := loadJsonFile(path.Join(s.dataDir, progressJsonFileName), &s.progress); err != nil {
		log.Errorf("load progress: %s", err)
		s.progress = make(map[string]*UserProgress)
	}

	log.Debugf(
		"storage loaded: %d profiles, %d workout histories, %d progress records",
		len(s.profiles), len(s.workouts), len(s.progress),
	)
}

func loadJsonFile(filePath string, dst interface{}) error {
	fileJson, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filePath, err)
	}
	if err := json.Unmarshal(fileJson, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", filePath, err)
	}
	return nil
}

// persist rewrites all three JSON files. Callers must hold the write lock.
func (s *Storage) persist() error {
	var err error
	err = multierr.Append(err, saveJsonFile(path.Join(s.dataDir, profilesJsonFileName), s.profiles))
	err = multierr.Append(err, saveJsonFile(path.Join(s.dataDir, workoutsJsonFileName), s.workouts))
	err = multierr.Append(err, saveJsonFile(path.Join(s.dataDir, progressJsonFileName), s.progress))
	return err
}

func saveJsonFile(filePath string, src interface{}) error {
	fileJson, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filePath, err)
	}
	if err := os.WriteFile(filePath, fileJson, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filePath, err)
	}
	return nil
}

// SaveProfile upserts the profile, a resubmitted profile fully
// replaces the previous one
func (s *Storage) SaveProfile(ctx context.Context, profile *UserProfile) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "storage.saveProfile")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", profile.UserID))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.profiles[profile.UserID] = profile
	if err := s.persist(); err != nil {
		return fmt.Errorf("profile saved, but persisting failed: %w", err)
	}

	log.Debugf("profile saved for user [%s]", profile.UserID)

	return nil
}

func (s *Storage) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	_, span := tracing.GlobalTracer.Start(ctx, "storage.getProfile")
	defer span.End()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

// SaveWorkout appends the workout to the user's history,
// creating the history first if needed
func (s *Storage) SaveWorkout(ctx context.Context, workout *WorkoutPlan) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "storage.saveWorkout")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", workout.UserID))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.workouts[workout.UserID] = append(s.workouts[workout.UserID], workout)
	if err := s.persist(); err != nil {
		return fmt.Errorf("workout saved, but persisting failed: %w", err)
	}

	log.Debugf("workout saved for user [%s], history size: %d", workout.UserID, len(s.workouts[workout.UserID]))

	return nil
}

// GetCurrentWorkout returns the most recent workout in the user's history
func (s *Storage) GetCurrentWorkout(ctx context.Context, userID string) (*WorkoutPlan, error) {
	_, span := tracing.GlobalTracer.Start(ctx, "storage.getCurrentWorkout")
	defer span.End()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.currentWorkout(userID)
}

// currentWorkout expects the lock to be held by the caller
func (s *Storage) currentWorkout(userID string) (*WorkoutPlan, error) {
	workouts, ok := s.workouts[userID]
	if !ok || len(workouts) == 0 {
		return nil, ErrWorkoutNotFound
	}
	return workouts[len(workouts)-1], nil
}

func (s *Storage) GetAllWorkouts(ctx context.Context, userID string) []*WorkoutPlan {
	_, span := tracing.GlobalTracer.Start(ctx, "storage.getAllWorkouts")
	defer span.End()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.workouts[userID]
}

// UpdateExerciseCompletion flips the completed flag of one exercise in the
// user's current workout. The day is matched case-insensitively, first match
// wins when labels are duplicated. Returns false, and persists nothing, when
// the workout / day / exercise index cannot be found.
func (s *Storage) UpdateExerciseCompletion(
	ctx context.Context,
	userID string,
	day string,
	exerciseIndex int,
	completed bool,
) (updated bool, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "storage.updateExerciseCompletion")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("workout.day", day),
		attribute.Int("exercise.index", exerciseIndex),
	)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	workout, err := s.currentWorkout(userID)
	if err != nil {
		return false, nil
	}

	for i := range workout.Days {
		dayWorkout := &workout.Days[i]
		if !strings.EqualFold(dayWorkout.Day, day) {
			continue
		}
		if exerciseIndex < 0 || exerciseIndex >= len(dayWorkout.Exercises) {
			return false, nil
		}
		dayWorkout.Exercises[exerciseIndex].Completed = completed
		if err := s.persist(); err != nil {
			return true, fmt.Errorf("exercise updated, but persisting failed: %w", err)
		}
		return true, nil
	}

	return false, nil
}

// InitializeProgress creates a fresh, zeroed progress record with totalDays
// day entries, unconditionally replacing any previous record
func (s *Storage) InitializeProgress(ctx context.Context, userID string, totalDays int) (_ *UserProgress, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "storage.initializeProgress")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	progress := &UserProgress{
		UserID:        userID,
		Days:          make([]UserProgressDay, 0, totalDays),
		CurrentStreak: 0,
	}
	for i := 0; i < totalDays; i++ {
		progress.Days = append(progress.Days, UserProgressDay{
			Day:                fmt.Sprintf("Day %d", i+1),
			TotalExercises:     0,
			ExercisesCompleted: 0,
		})
	}

	s.progress[userID] = progress
	if err := s.persist(); err != nil {
		return progress, fmt.Errorf("progress initialized, but persisting failed: %w", err)
	}

	return progress, nil
}

func (s *Storage) GetProgress(ctx context.Context, userID string) (*UserProgress, error) {
	_, span := tracing.GlobalTracer.Start(ctx, "storage.getProgress")
	defer span.End()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	progress, ok := s.progress[userID]
	if !ok {
		return nil, ErrProgressNotFound
	}
	return progress, nil
}

// UpdateProgress fully replaces the user's progress record
func (s *Storage) UpdateProgress(ctx context.Context, userID string, progress *UserProgress) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "storage.updateProgress")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.progress[userID] = progress
	if err := s.persist(); err != nil {
		return fmt.Errorf("progress updated, but persisting failed: %w", err)
	}
	return nil
}

// CalculateCompletionPercentage returns the overall weekly completion in
// [0, 100]. Absent progress or zero total exercises give 0.
func (s *Storage) CalculateCompletionPercentage(ctx context.Context, userID string) float64 {
	_, span := tracing.GlobalTracer.Start(ctx, "storage.calculateCompletionPercentage")
	defer span.End()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	progress, ok := s.progress[userID]
	if !ok || len(progress.Days) == 0 {
		return 0
	}

	totalExercises := 0
	completedExercises := 0
	for _, day := range progress.Days {
		totalExercises += day.TotalExercises
		completedExercises += day.ExercisesCompleted
	}
	if totalExercises == 0 {
		return 0
	}

	return float64(completedExercises) / float64(totalExercises) * 100
}

// UpdateStreak sets the streak counter on an existing progress record.
// A missing record is a silent no-op, callers are expected to have
// initialized progress first.
func (s *Storage) UpdateStreak(ctx context.Context, userID string, newStreak int) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "storage.updateStreak")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	progress, ok := s.progress[userID]
	if !ok {
		return nil
	}

	progress.CurrentStreak = newStreak
	if err := s.persist(); err != nil {
		return fmt.Errorf("streak updated, but persisting failed: %w", err)
	}
	return nil
}
