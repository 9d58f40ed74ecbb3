// Package types defines the shared data model for the governance pipeline:
// decisions, risk evaluations, consultations, promotions, audit records, and
// the error taxonomy used across packages.
package types

// DecisionType classifies the kind of change a decision proposes.
type DecisionType string

const (
	DecisionFeature          DecisionType = "feature"
	DecisionBugFix           DecisionType = "bug_fix"
	DecisionRefactoring      DecisionType = "refactoring"
	DecisionOptimization     DecisionType = "optimization"
	DecisionArchitectural    DecisionType = "architectural"
	DecisionSecurity         DecisionType = "security"
	DecisionSelfModification DecisionType = "self_modification"
)

// Change describes the concrete modification a decision proposes.
type Change struct {
	Type        string   `json:"type" yaml:"type"`
	Files       []string `json:"files" yaml:"files"`
	Description string   `json:"description" yaml:"description"`
}

// Decision is a unit of proposed work produced by upstream analysis.
// It is immutable once created, except for the consultation outcome fields
// attached to Context (ContextKeyApproved, ContextKeyUserFeedback) after a
// human has responded.
type Decision struct {
	ID          string         `json:"id" yaml:"id"`
	Description string         `json:"description" yaml:"description"`
	Type        DecisionType   `json:"type" yaml:"type"`
	Context     map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	Change      Change         `json:"change" yaml:"change"`
}

// Context keys written back onto a decision after consultation.
const (
	ContextKeyApproved     = "approved"
	ContextKeyUserFeedback = "userFeedback"
)

// SetContext writes a key into the decision's context bag, allocating it on
// first use.
func (d *Decision) SetContext(key string, value any) {
	if d.Context == nil {
		d.Context = make(map[string]any)
	}
	d.Context[key] = value
}
