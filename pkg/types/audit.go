package types

import "time"

// AuditAction names the lifecycle transition an audit entry records.
type AuditAction string

const (
	AuditCreated          AuditAction = "created"
	AuditApproved         AuditAction = "approved"
	AuditRejected         AuditAction = "rejected"
	AuditDeployed         AuditAction = "deployed"
	AuditDeployFailed     AuditAction = "deployment_failed"
	AuditRollbackRequest  AuditAction = "rollback_requested"
	AuditRollbackApproved AuditAction = "rollback_approved"
	AuditRollbackRejected AuditAction = "rollback_rejected"
	AuditRolledBack       AuditAction = "rolled_back"
	AuditRollbackFailed   AuditAction = "rollback_failed"
)

// PromotionAuditEntry is one immutable record of a lifecycle transition.
// Entries are append-only: they are never mutated or deleted after creation.
type PromotionAuditEntry struct {
	PromotionID string      `json:"promotionId"`
	Action      AuditAction `json:"action"`
	Timestamp   time.Time   `json:"timestamp"`
	User        string      `json:"user"`
	Reason      string      `json:"reason,omitempty"`
}

// RollbackStatus is the lifecycle state of a rollback request.
type RollbackStatus string

const (
	RollbackPending   RollbackStatus = "pending"
	RollbackApproved  RollbackStatus = "approved"
	RollbackRejected  RollbackStatus = "rejected"
	RollbackCompleted RollbackStatus = "completed"
	RollbackFailed    RollbackStatus = "failed"
)

// RollbackRequest is a governed reversal of a deployed promotion. It is a
// distinct object with its own approval lifecycle, not a mutation of the
// promotion it reverses.
type RollbackRequest struct {
	ID          string         `json:"id"`
	PromotionID string         `json:"promotionId"`
	Reason      string         `json:"reason"`
	RequestedBy string         `json:"requestedBy"`
	RequestedAt time.Time      `json:"requestedAt"`
	Status      RollbackStatus `json:"status"`
	ApprovedBy  string         `json:"approvedBy,omitempty"`
	ApprovedAt  time.Time      `json:"approvedAt,omitempty"`
	CompletedAt time.Time      `json:"completedAt,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// RepositoryContext identifies the repository an operation is scoped to.
// Contexts are held on a stack so nested operations can enter another
// repository and restore the caller's context on exit.
type RepositoryContext struct {
	RepoID    string    `json:"repoId"`
	RepoPath  string    `json:"repoPath"`
	Provider  string    `json:"provider,omitempty"`
	URL       string    `json:"url,omitempty"`
	EnteredAt time.Time `json:"enteredAt"`
}
