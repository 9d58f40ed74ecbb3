package types

import (
	"fmt"
	"strings"
)

// NotFoundError reports an unknown entity id.
type NotFoundError struct {
	Kind string // "promotion", "rollback request", "consultation"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// InvalidStateError reports an operation attempted from a lifecycle state
// that forbids it, e.g. deploying a pending promotion.
type InvalidStateError struct {
	Kind    string
	ID      string
	Op      string
	Current string
	Wanted  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %q: status is %q, requires %q", e.Op, e.Kind, e.ID, e.Current, e.Wanted)
}

// ValidationError carries every violation found, not just the first, so the
// caller can render a complete remediation message.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// GovernanceViolationError reports an attempted write to the agent's own
// repository or a cross-repository path escape. It is always surfaced and
// fatal to the current operation.
type GovernanceViolationError struct {
	Op     string
	Path   string
	Reason string
}

func (e *GovernanceViolationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("governance violation in %s: %s (path %q)", e.Op, e.Reason, e.Path)
	}
	return fmt.Sprintf("governance violation in %s: %s", e.Op, e.Reason)
}

// ExternalFailureError wraps a collaborator failure (advisory service, test
// run, deployment, persistence).
type ExternalFailureError struct {
	System string
	Err    error
}

func (e *ExternalFailureError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.System, e.Err)
}

func (e *ExternalFailureError) Unwrap() error {
	return e.Err
}

// UnsupportedFormatError reports an export format the audit log cannot
// render.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format %q", e.Format)
}
