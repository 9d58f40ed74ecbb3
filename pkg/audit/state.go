package audit

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/warden/pkg/store"
	"github.com/entrhq/warden/pkg/types"
)

// Record store categories used by the manager.
const (
	categoryAuditEntries = "audit_entries"
	categoryRollbacks    = "rollback_requests"
)

// managerState is the mutable core of the audit manager: the append-only
// entry trail and the rollback request store, guarded by one mutex.
type managerState struct {
	mu        sync.Mutex
	entries   []types.PromotionAuditEntry
	rollbacks map[string]*types.RollbackRequest
}

// persistEntry mirrors an audit entry into the record store, best effort:
// the in-memory trail is authoritative for this process and a persistence
// hiccup must not fail the lifecycle operation that produced the entry.
func (m *Manager) persistEntry(ctx context.Context, entry types.PromotionAuditEntry) {
	if m.records == nil {
		return
	}
	payload, err := yaml.Marshal(entry)
	if err != nil {
		m.log.Warnf("audit entry persist marshal failed: %v", err)
		return
	}
	key := fmt.Sprintf("%s|%s|%d", entry.PromotionID, entry.Action, entry.Timestamp.UnixNano())
	if err := m.records.Store(ctx, store.Record{
		Category: categoryAuditEntries,
		Key:      key,
		Payload:  string(payload),
		Metadata: map[string]string{"action": string(entry.Action), "user": entry.User},
	}); err != nil {
		m.log.Warnf("audit entry persist failed: %v", err)
	}
}

// persistRollback mirrors a rollback request into the record store, best
// effort for the same reason as persistEntry.
func (m *Manager) persistRollback(ctx context.Context, req *types.RollbackRequest) {
	if m.records == nil {
		return
	}
	payload, err := yaml.Marshal(req)
	if err != nil {
		m.log.Warnf("rollback request persist marshal failed: %v", err)
		return
	}
	if err := m.records.Store(ctx, store.Record{
		Category: categoryRollbacks,
		Key:      req.ID,
		Payload:  string(payload),
		Metadata: map[string]string{"promotionId": req.PromotionID, "status": string(req.Status)},
	}); err != nil {
		m.log.Warnf("rollback request persist failed: %v", err)
	}
}

// LoadRollbacks restores rollback requests from the record store, skipping
// malformed rows. Called once at startup when persistence is configured.
func (m *Manager) LoadRollbacks(ctx context.Context) error {
	if m.records == nil {
		return nil
	}
	recs, err := m.records.Search(ctx, store.Query{Category: categoryRollbacks})
	if err != nil {
		return &types.ExternalFailureError{System: "record store", Err: err}
	}

	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	for _, rec := range recs {
		var req types.RollbackRequest
		if err := yaml.Unmarshal([]byte(rec.Payload), &req); err != nil || req.ID == "" {
			m.log.Warnf("skipping malformed rollback record %q", rec.Key)
			continue
		}
		m.state.rollbacks[req.ID] = &req
	}
	return nil
}
