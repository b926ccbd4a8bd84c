// Package reasoning defines the boundary to the reasoning service: typed
// requests per stage, validated responses, and an OpenAI-compatible
// implementation.
package reasoning

import (
	"context"
	"errors"
	"fmt"

	"github.com/masimlabs/masim/internal/domain"
)

// CodeRequest carries everything the code generation stage may draw on.
// Fix attempts add the failing code and its execution output; human-requested
// fixes additionally carry the free-text request.
type CodeRequest struct {
	Messages     []domain.Message
	Goal         string
	Plans        []domain.PlanStep
	Fix          bool
	PrevCode     string
	Stdout       string
	Stderr       string
	HumanRequest string
}

// FixPlanRequest carries the inputs for revising a plan after a human
// rejected the rendered result.
type FixPlanRequest struct {
	Messages []domain.Message
	Goal     string
	Plans    []domain.PlanStep
	Code     string
	Stdout   string
	Stderr   string
	Request  string
}

// Analysis is the analyzer's verdict on an execution.
type Analysis struct {
	NeedsFix bool
	Findings []domain.Finding
}

// Client is the reasoning service boundary. Implementations may be slow and
// may fail; a schema-invalid response surfaces as a GenerationError.
type Client interface {
	// ExtractGoal distills the conversation into a single goal statement.
	ExtractGoal(ctx context.Context, messages []domain.Message) (string, error)

	// Plan produces an ordered animation plan for the goal.
	Plan(ctx context.Context, messages []domain.Message, goal string) ([]domain.PlanStep, error)

	// RevisePlan reworks the plan according to reviewer feedback.
	RevisePlan(ctx context.Context, messages []domain.Message, goal string, plans []domain.PlanStep, feedback string) ([]domain.PlanStep, error)

	// GenerateCode produces a new code artifact, or a fixed one when
	// req.Fix is set.
	GenerateCode(ctx context.Context, req CodeRequest) (string, error)

	// FixPlan revises the plan to incorporate a human fix request.
	FixPlan(ctx context.Context, req FixPlanRequest) ([]domain.PlanStep, error)

	// Analyze inspects code and execution output and decides whether a
	// fix attempt is needed.
	Analyze(ctx context.Context, code, stdout, stderr string) (Analysis, error)
}

// GenerationError marks a reasoning response that failed schema validation
// or could not be obtained at all. It is fatal to the current job run.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("reasoning %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsGenerationError reports whether err is (or wraps) a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
