package types

import "time"

// PromotionStatus is the lifecycle state of a promotion request.
//
// Valid transitions: pending -> approved -> deployed, pending -> rejected.
// Both rejected and deployed are terminal; reversing a deployment is modeled
// as a separate RollbackRequest, never by reopening the promotion.
type PromotionStatus string

const (
	PromotionPending  PromotionStatus = "pending"
	PromotionApproved PromotionStatus = "approved"
	PromotionRejected PromotionStatus = "rejected"
	PromotionDeployed PromotionStatus = "deployed"
)

// ChangeKind is how a file was touched by a promotion.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// ChangeDescription summarizes one file-level change in a promotion.
type ChangeDescription struct {
	File         string     `json:"file"`
	Type         ChangeKind `json:"type"`
	LinesAdded   int        `json:"linesAdded"`
	LinesRemoved int        `json:"linesRemoved"`
	Summary      string     `json:"summary"`
}

// TestFailure records a single failing test.
type TestFailure struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// TestResults is the outcome of the test run backing a promotion.
type TestResults struct {
	Passed      bool          `json:"passed"`
	TotalTests  int           `json:"totalTests"`
	PassedTests int           `json:"passedTests"`
	FailedTests int           `json:"failedTests"`
	Duration    time.Duration `json:"duration"`
	Coverage    float64       `json:"coverage,omitempty"` // 0-100, 0 means unmeasured
	Failures    []TestFailure `json:"failures,omitempty"`
}

// ImpactAssessment estimates the blast radius of deploying a promotion.
type ImpactAssessment struct {
	Risk                     Severity `json:"risk"`
	AffectedComponents       []string `json:"affectedComponents"`
	EstimatedDowntimeMinutes int      `json:"estimatedDowntimeMinutes"`
	RollbackComplexity       string   `json:"rollbackComplexity"`
	Benefits                 []string `json:"benefits"`
	Risks                    []string `json:"risks"`
}

// RollbackPlan describes how a deployed promotion would be reversed.
type RollbackPlan struct {
	Steps                []string `json:"steps"`
	EstimatedTimeMinutes int      `json:"estimatedTimeMinutes"`
	DataBackupRequired   bool     `json:"dataBackupRequired"`
	Automatable          bool     `json:"automatable"`
}

// PromotionRequest is a proposed, tested bundle of changes awaiting approval
// and deployment to a production-equivalent target.
type PromotionRequest struct {
	ID               string              `json:"id"`
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	Status           PromotionStatus     `json:"status"`
	CreatedAt        time.Time           `json:"createdAt"`
	Changes          []ChangeDescription `json:"changes"`
	TestResults      TestResults         `json:"testResults"`
	ImpactAssessment ImpactAssessment    `json:"impactAssessment"`
	RollbackPlan     RollbackPlan        `json:"rollbackPlan"`
	ApprovedBy       string              `json:"approvedBy,omitempty"`
	ApprovedAt       time.Time           `json:"approvedAt,omitempty"`
	DeployedAt       time.Time           `json:"deployedAt,omitempty"`
}
