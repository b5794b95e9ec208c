package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fittracker/internal/fitness"
	"github.com/2beens/fittracker/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrAvailableDaysMissing - the profile has no usable available_days_per_week
	ErrAvailableDaysMissing = errors.New("available_days_per_week is required")
	// ErrModelUnavailable - the model call itself failed (network, auth, quota)
	ErrModelUnavailable = errors.New("workout model unavailable")
	// ErrMalformedResponse - the model returned something that is not JSON
	ErrMalformedResponse = errors.New("invalid JSON from model")
	// ErrSchemaViolation - the model returned JSON that breaks the workout schema
	ErrSchemaViolation = errors.New("model response violates workout schema")
)

type completionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator turns a user profile into a validated workout plan through
// a single model round trip
type Generator struct {
	client completionClient
}

func NewGenerator(client completionClient) *Generator {
	return &Generator{
		client: client,
	}
}

// GenerateWorkout builds the prompt, calls the model once, strictly parses
// the completion as JSON, injects the server-owned fields and validates the
// result. The raw model output is never persisted or returned on failure.
func (g *Generator) GenerateWorkout(
	ctx context.Context,
	profile *fitness.UserProfile,
	userID string,
	previousWorkout *fitness.WorkoutPlan,
	feedback string,
) (_ *fitness.WorkoutPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "generator.generateWorkout")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	prompt, err := BuildWorkoutPrompt(profile, previousWorkout, feedback)
	if err != nil {
		return nil, err
	}

	rawCompletion, err := g.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, err)
	}

	// strict parse, no markdown fence stripping or other repairs
	var plan fitness.WorkoutPlan
	if err := json.Unmarshal([]byte(rawCompletion), &plan); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %s", ErrSchemaViolation, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}

	// server-owned fields, model values for these are ignored
	plan.UserID = userID
	plan.GeneratedAt = time.Now().UTC()

	if err := plan.Validate(profile.AvailableDaysPerWeek); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaViolation, err)
	}

	return &plan, nil
}
