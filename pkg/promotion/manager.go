// Package promotion owns the PromotionRequest state machine: creation with
// full validation, approval and rejection, and deployment through a pull
// request on the target repository. Transitions only ever run
// pending -> approved -> deployed, or pending -> rejected.
package promotion

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/warden/pkg/isolation"
	"github.com/entrhq/warden/pkg/logging"
	"github.com/entrhq/warden/pkg/notify"
	"github.com/entrhq/warden/pkg/types"
)

// Trail receives lifecycle audit entries. *audit.Manager implements it.
type Trail interface {
	Record(ctx context.Context, entry types.PromotionAuditEntry)
}

// Config configures a Manager.
type Config struct {
	// Target is the repository promotions deploy to. Deployment enters
	// this context on the isolation guard before any write.
	Target types.RepositoryContext

	// BaseBranch is the branch pull requests target. Empty means "main".
	BaseBranch string

	// TestCommand runs on the target after the pull request is opened.
	// A failing run halts the deployment.
	TestCommand string

	// DeployCommand optionally runs after tests pass. Its output is taken
	// as the deployment URL. Empty skips the step.
	DeployCommand string

	// AutoDeploy makes Approve deploy in the same call.
	AutoDeploy bool
}

// Manager is the promotion lifecycle manager. Safe for concurrent use.
type Manager struct {
	cfg      Config
	guard    *isolation.Guard
	workflow Workflow
	trail    Trail
	notifier notify.Notifier
	log      *logging.Logger

	mu         sync.Mutex
	promotions map[string]*types.PromotionRequest
}

// NewManager creates a promotion manager. trail may be nil at construction
// and attached later with SetTrail, since the audit manager needs this
// manager as its promotion lookup.
func NewManager(cfg Config, guard *isolation.Guard, workflow Workflow, trail Trail, notifier notify.Notifier, log *logging.Logger) *Manager {
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	if log == nil {
		log, _ = logging.NewLogger("promotion")
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Manager{
		cfg:        cfg,
		guard:      guard,
		workflow:   workflow,
		trail:      trail,
		notifier:   notifier,
		log:        log,
		promotions: make(map[string]*types.PromotionRequest),
	}
}

// SetTrail attaches the audit trail after construction.
func (m *Manager) SetTrail(trail Trail) {
	m.trail = trail
}

// CreatePromotionRequest validates a draft and registers it as pending.
// Validation collects every violation: a draft missing three things fails
// with all three listed, not just the first.
func (m *Manager) CreatePromotionRequest(ctx context.Context, draft types.PromotionRequest) (*types.PromotionRequest, error) {
	if err := validateDraft(&draft); err != nil {
		return nil, err
	}

	promo := draft
	promo.ID = uuid.New().String()
	promo.Status = types.PromotionPending
	promo.CreatedAt = time.Now()
	promo.ApprovedBy = ""
	promo.ApprovedAt = time.Time{}
	promo.DeployedAt = time.Time{}

	m.mu.Lock()
	m.promotions[promo.ID] = &promo
	m.mu.Unlock()

	m.log.Infof("promotion %s created: %s (%d changes)", promo.ID, promo.Title, len(promo.Changes))
	m.record(ctx, types.PromotionAuditEntry{
		PromotionID: promo.ID,
		Action:      types.AuditCreated,
		User:        "agent",
	})
	m.notifier.Notify(ctx, notify.Payload{
		Type:        notify.EventPromotionCreated,
		PromotionID: promo.ID,
		Title:       promo.Title,
		Status:      string(promo.Status),
		Timestamp:   time.Now(),
	})

	copied := promo
	return &copied, nil
}

func validateDraft(draft *types.PromotionRequest) error {
	var violations []string
	if draft.Title == "" {
		violations = append(violations, "title is required")
	}
	if len(draft.Changes) == 0 {
		violations = append(violations, "changes must be non-empty")
	}
	if !draft.TestResults.Passed {
		violations = append(violations, "test results must be passing; a promotion cannot be proposed with failing tests")
	}
	if draft.TestResults.TotalTests == 0 {
		violations = append(violations, "test results must cover at least one test")
	}
	if draft.ImpactAssessment.Risk == "" {
		violations = append(violations, "impact assessment must be populated")
	}
	if len(draft.RollbackPlan.Steps) == 0 {
		violations = append(violations, "rollback plan must have at least one step")
	}
	if len(violations) > 0 {
		return &types.ValidationError{Violations: violations}
	}
	return nil
}

// Approve moves a pending promotion to approved. With AutoDeploy set the
// deployment runs in the same call and its result is returned; otherwise
// the result is nil.
func (m *Manager) Approve(ctx context.Context, id, approvedBy string) (*DeployResult, error) {
	m.mu.Lock()
	promo, ok := m.promotions[id]
	if !ok {
		m.mu.Unlock()
		return nil, &types.NotFoundError{Kind: "promotion", ID: id}
	}
	if promo.Status != types.PromotionPending {
		err := &types.InvalidStateError{
			Kind:    "promotion",
			ID:      id,
			Op:      "approve",
			Current: string(promo.Status),
			Wanted:  string(types.PromotionPending),
		}
		m.mu.Unlock()
		return nil, err
	}
	promo.Status = types.PromotionApproved
	promo.ApprovedBy = approvedBy
	promo.ApprovedAt = time.Now()
	title := promo.Title
	m.mu.Unlock()

	m.log.Infof("promotion %s approved by %s", id, approvedBy)
	m.record(ctx, types.PromotionAuditEntry{
		PromotionID: id,
		Action:      types.AuditApproved,
		User:        approvedBy,
	})
	m.notifier.Notify(ctx, notify.Payload{
		Type:        notify.EventApproved,
		PromotionID: id,
		Title:       title,
		Approver:    approvedBy,
		Status:      string(types.PromotionApproved),
		Timestamp:   time.Now(),
	})

	if m.cfg.AutoDeploy {
		return m.Deploy(ctx, id)
	}
	return nil, nil
}

// Reject moves a pending promotion to rejected, which is terminal.
func (m *Manager) Reject(ctx context.Context, id, rejectedBy, reason string) error {
	m.mu.Lock()
	promo, ok := m.promotions[id]
	if !ok {
		m.mu.Unlock()
		return &types.NotFoundError{Kind: "promotion", ID: id}
	}
	if promo.Status != types.PromotionPending {
		err := &types.InvalidStateError{
			Kind:    "promotion",
			ID:      id,
			Op:      "reject",
			Current: string(promo.Status),
			Wanted:  string(types.PromotionPending),
		}
		m.mu.Unlock()
		return err
	}
	promo.Status = types.PromotionRejected
	title := promo.Title
	m.mu.Unlock()

	m.log.Infof("promotion %s rejected by %s: %s", id, rejectedBy, reason)
	m.record(ctx, types.PromotionAuditEntry{
		PromotionID: id,
		Action:      types.AuditRejected,
		User:        rejectedBy,
		Reason:      reason,
	})
	m.notifier.Notify(ctx, notify.Payload{
		Type:        notify.EventRejected,
		PromotionID: id,
		Title:       title,
		Approver:    rejectedBy,
		Status:      string(types.PromotionRejected),
		Timestamp:   time.Now(),
	})
	return nil
}

// Get returns a promotion by id.
func (m *Manager) Get(id string) (*types.PromotionRequest, error) {
	promo, ok := m.Promotion(id)
	if !ok {
		return nil, &types.NotFoundError{Kind: "promotion", ID: id}
	}
	return promo, nil
}

// Promotion implements the audit manager's promotion lookup. The returned
// value is a copy.
func (m *Manager) Promotion(id string) (*types.PromotionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	promo, ok := m.promotions[id]
	if !ok {
		return nil, false
	}
	copied := *promo
	return &copied, true
}

// List returns promotions in a status, or all promotions for the empty
// status, ordered by creation time.
func (m *Manager) List(status types.PromotionStatus) []*types.PromotionRequest {
	m.mu.Lock()
	var out []*types.PromotionRequest
	for _, promo := range m.promotions {
		if status != "" && promo.Status != status {
			continue
		}
		copied := *promo
		out = append(out, &copied)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) record(ctx context.Context, entry types.PromotionAuditEntry) {
	if m.trail == nil {
		return
	}
	m.trail.Record(ctx, entry)
}

func branchName(promo *types.PromotionRequest) string {
	id := promo.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("promotion/%s", id)
}
