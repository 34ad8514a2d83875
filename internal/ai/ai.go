package ai

import (
	"context"
)

// EvaluationResult is the structured verdict produced for a profile. All
// three fields are always populated, even when the model response could not
// be parsed cleanly.
type EvaluationResult struct {
	Summary   string `json:"summary"`
	Verdict   string `json:"verdict"`
	Reasoning string `json:"reasoning"`

	// Degraded marks results assembled by field-level recovery instead of a
	// clean parse. Not exposed over the wire.
	Degraded bool `json:"-"`
}

// Generator produces raw text for a prompt. Implementations are stateless
// and do not retry; retrying is the caller's responsibility.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Evaluator runs the full prompt-to-result pipeline, including retries and
// response repair.
type Evaluator interface {
	Evaluate(ctx context.Context, prompt string) (*EvaluationResult, error)
	Generate(ctx context.Context, prompt string) (string, error)
}
