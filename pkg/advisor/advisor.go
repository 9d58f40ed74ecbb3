// Package advisor abstracts the free-text advisory backend used to draft
// risk descriptions, alternatives, recommendations, and mitigation
// strategies. Responses follow a line-marker protocol (RISK:, OPTION:,
// RECOMMENDATION:, ...) with blocks separated by a literal "---" line; the
// decoder in this package parses them tolerantly with explicit defaults for
// missing fields.
//
// Callers must treat every advisory failure as recoverable: the governance
// pipeline substitutes documented heuristics and never fails because the
// advisory backend is unavailable.
package advisor

import "context"

// Request is a single advisory query.
type Request struct {
	// TaskType labels the query for the backend ("risk_identification",
	// "alternative_generation", "mitigation_strategy", ...).
	TaskType string

	// Prompt is the user-level prompt text.
	Prompt string

	// SystemPrompt optionally constrains the backend's role and output
	// protocol.
	SystemPrompt string

	// MaxTokens caps the response length. Zero means backend default.
	MaxTokens int
}

// Advisor is the advisory-service collaborator: one free-text operation.
type Advisor interface {
	// Advise returns the backend's free-text response for the request.
	Advise(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to the Advisor interface.
type Func func(ctx context.Context, req Request) (string, error)

// Advise implements Advisor.
func (f Func) Advise(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
