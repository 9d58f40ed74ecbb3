// Package audit maintains the append-only trail of promotion lifecycle
// transitions and governs rollbacks of deployed promotions. Audit entries
// are immutable once recorded; rollbacks are distinct two-phase objects
// with their own approval lifecycle.
package audit

import (
	"context"
	"time"

	"github.com/entrhq/warden/pkg/logging"
	"github.com/entrhq/warden/pkg/notify"
	"github.com/entrhq/warden/pkg/store"
	"github.com/entrhq/warden/pkg/types"
)

// DefaultRollbackWindow bounds how long after deployment a promotion stays
// rollback-eligible.
const DefaultRollbackWindow = 7 * 24 * time.Hour

// PromotionLookup resolves promotion ids for rollback eligibility checks.
// The promotion manager implements it.
type PromotionLookup interface {
	Promotion(id string) (*types.PromotionRequest, bool)
}

// RevertFunc performs the underlying revert of a deployed promotion. A nil
// RevertFunc makes rollback execution a bookkeeping-only success, which is
// what tests and dry-run configurations want.
type RevertFunc func(ctx context.Context, promo *types.PromotionRequest, req *types.RollbackRequest) error

// Config configures a Manager.
type Config struct {
	// RequireApproval gates rollback execution behind an explicit
	// approve/reject call. When false a rollback request executes within
	// the creating call.
	RequireApproval bool

	// RollbackWindow is how long after deployment a rollback may still
	// execute. Zero means DefaultRollbackWindow.
	RollbackWindow time.Duration
}

// Manager owns the audit trail and the rollback request store. Safe for
// concurrent use.
type Manager struct {
	cfg        Config
	promotions PromotionLookup
	revert     RevertFunc
	records    store.RecordStore
	notifier   notify.Notifier
	log        *logging.Logger

	state managerState
}

// NewManager creates an audit manager. promotions may be nil if rollbacks
// are never created; records and notifier may be nil to disable persistence
// and notifications.
func NewManager(cfg Config, promotions PromotionLookup, revert RevertFunc, records store.RecordStore, notifier notify.Notifier, log *logging.Logger) *Manager {
	if cfg.RollbackWindow == 0 {
		cfg.RollbackWindow = DefaultRollbackWindow
	}
	if log == nil {
		log, _ = logging.NewLogger("audit")
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	m := &Manager{
		cfg:        cfg,
		promotions: promotions,
		revert:     revert,
		records:    records,
		notifier:   notifier,
		log:        log,
	}
	m.state.rollbacks = make(map[string]*types.RollbackRequest)
	return m
}

// Record appends one immutable audit entry. A zero timestamp is filled in.
func (m *Manager) Record(ctx context.Context, entry types.PromotionAuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	m.state.mu.Lock()
	m.state.entries = append(m.state.entries, entry)
	m.state.mu.Unlock()

	m.log.Infof("audit: promotion=%s action=%s user=%s", entry.PromotionID, entry.Action, entry.User)
	m.persistEntry(ctx, entry)
}

// Filter selects audit entries. Criteria are applied in field order:
// promotion id, action, user, time window, then limit.
type Filter struct {
	PromotionID string
	Action      types.AuditAction
	User        string
	StartTime   time.Time
	EndTime     time.Time
	Limit       int
}

// GetAuditLog returns entries matching the filter in recording order. The
// result is a copy; the trail itself is never exposed for mutation.
func (m *Manager) GetAuditLog(f Filter) []types.PromotionAuditEntry {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	var out []types.PromotionAuditEntry
	for _, e := range m.state.entries {
		if f.PromotionID != "" && e.PromotionID != f.PromotionID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.User != "" && e.User != f.User {
			continue
		}
		if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
			continue
		}
		if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
			continue
		}
		out = append(out, e)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// History returns the full ordered trail for one promotion.
func (m *Manager) History(promotionID string) []types.PromotionAuditEntry {
	return m.GetAuditLog(Filter{PromotionID: promotionID})
}
