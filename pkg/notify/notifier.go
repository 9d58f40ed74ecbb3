// Package notify delivers fire-and-forget lifecycle notifications. Delivery
// failures are logged and never propagated: a notification must not be able
// to fail a promotion.
package notify

import (
	"context"
	"time"
)

// Event types carried in notification payloads.
const (
	EventPromotionCreated  = "promotion_created"
	EventApproved          = "approved"
	EventRejected          = "rejected"
	EventDeployed          = "deployed"
	EventDeploymentFailed  = "deployment_failed"
	EventRollbackCompleted = "rollback_completed"
	EventRollbackFailed    = "rollback_failed"
)

// Payload is one lifecycle notification.
type Payload struct {
	Type        string    `json:"type"`
	PromotionID string    `json:"promotionId"`
	Title       string    `json:"title,omitempty"`
	Approver    string    `json:"approver,omitempty"`
	Status      string    `json:"status"`
	URL         string    `json:"url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notifier is the notification sink collaborator. Implementations absorb
// their own errors.
type Notifier interface {
	Notify(ctx context.Context, p Payload)
}

// Discard is a Notifier that drops everything, for tests and disabled
// configurations.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(context.Context, Payload) {}
