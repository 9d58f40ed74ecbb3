package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/warden/pkg/notify"
	"github.com/entrhq/warden/pkg/types"
)

// CreateRollbackRequest opens a rollback for a deployed promotion. When the
// manager does not require approval the rollback executes within this call
// and the returned request is already completed (or failed, with the error
// captured on it).
func (m *Manager) CreateRollbackRequest(ctx context.Context, promotionID, reason, requestedBy string) (*types.RollbackRequest, error) {
	promo, ok := m.promotionByID(promotionID)
	if !ok {
		return nil, &types.NotFoundError{Kind: "promotion", ID: promotionID}
	}
	if promo.Status != types.PromotionDeployed {
		return nil, &types.InvalidStateError{
			Kind:    "promotion",
			ID:      promotionID,
			Op:      "roll back",
			Current: string(promo.Status),
			Wanted:  string(types.PromotionDeployed),
		}
	}

	req := &types.RollbackRequest{
		ID:          uuid.New().String(),
		PromotionID: promotionID,
		Reason:      reason,
		RequestedBy: requestedBy,
		RequestedAt: time.Now(),
		Status:      types.RollbackPending,
	}

	m.state.mu.Lock()
	m.state.rollbacks[req.ID] = req
	m.state.mu.Unlock()

	m.Record(ctx, types.PromotionAuditEntry{
		PromotionID: promotionID,
		Action:      types.AuditRollbackRequest,
		User:        requestedBy,
		Reason:      reason,
	})
	m.persistRollback(ctx, req)

	if !m.cfg.RequireApproval {
		m.executeRollback(ctx, promo, req)
	}
	return req, nil
}

// ApproveRollbackRequest approves a pending rollback and executes it.
func (m *Manager) ApproveRollbackRequest(ctx context.Context, requestID, approvedBy string) (*types.RollbackRequest, error) {
	req, err := m.pendingRollback(requestID)
	if err != nil {
		return nil, err
	}

	promo, ok := m.promotionByID(req.PromotionID)
	if !ok {
		return nil, &types.NotFoundError{Kind: "promotion", ID: req.PromotionID}
	}

	m.state.mu.Lock()
	req.Status = types.RollbackApproved
	req.ApprovedBy = approvedBy
	req.ApprovedAt = time.Now()
	m.state.mu.Unlock()

	m.Record(ctx, types.PromotionAuditEntry{
		PromotionID: req.PromotionID,
		Action:      types.AuditRollbackApproved,
		User:        approvedBy,
	})
	m.executeRollback(ctx, promo, req)
	return req, nil
}

// RejectRollbackRequest rejects a pending rollback. Rejection is terminal
// for the request; a new request may be opened later.
func (m *Manager) RejectRollbackRequest(ctx context.Context, requestID, rejectedBy, reason string) (*types.RollbackRequest, error) {
	req, err := m.pendingRollback(requestID)
	if err != nil {
		return nil, err
	}

	m.state.mu.Lock()
	req.Status = types.RollbackRejected
	m.state.mu.Unlock()

	m.Record(ctx, types.PromotionAuditEntry{
		PromotionID: req.PromotionID,
		Action:      types.AuditRollbackRejected,
		User:        rejectedBy,
		Reason:      reason,
	})
	m.persistRollback(ctx, req)
	return req, nil
}

// RollbackRequest returns a rollback request by id.
func (m *Manager) RollbackRequest(requestID string) (*types.RollbackRequest, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	req, ok := m.state.rollbacks[requestID]
	if !ok {
		return nil, &types.NotFoundError{Kind: "rollback request", ID: requestID}
	}
	copied := *req
	return &copied, nil
}

// executeRollback runs the safety checks and the underlying revert,
// settling the request as completed or failed. Failures are captured on the
// request, never thrown: a failed rollback is a reportable outcome.
func (m *Manager) executeRollback(ctx context.Context, promo *types.PromotionRequest, req *types.RollbackRequest) {
	if err := m.safetyCheck(promo, req); err != nil {
		m.settleRollback(ctx, req, err)
		return
	}

	var err error
	if m.revert != nil {
		err = m.revert(ctx, promo, req)
	}
	m.settleRollback(ctx, req, err)
}

// safetyCheck refuses execution when another rollback for the same
// promotion is in flight or the rollback window has expired.
func (m *Manager) safetyCheck(promo *types.PromotionRequest, req *types.RollbackRequest) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	for _, other := range m.state.rollbacks {
		if other.ID == req.ID || other.PromotionID != req.PromotionID {
			continue
		}
		if other.Status == types.RollbackPending || other.Status == types.RollbackApproved {
			return fmt.Errorf("rollback %s for promotion %s is already in flight", other.ID, req.PromotionID)
		}
	}

	if !promo.DeployedAt.IsZero() && time.Since(promo.DeployedAt) > m.cfg.RollbackWindow {
		return fmt.Errorf("rollback window of %s expired for promotion %s", m.cfg.RollbackWindow, req.PromotionID)
	}
	return nil
}

func (m *Manager) settleRollback(ctx context.Context, req *types.RollbackRequest, execErr error) {
	m.state.mu.Lock()
	if execErr != nil {
		req.Status = types.RollbackFailed
		req.Error = execErr.Error()
	} else {
		req.Status = types.RollbackCompleted
		req.CompletedAt = time.Now()
	}
	m.state.mu.Unlock()

	if execErr != nil {
		m.Record(ctx, types.PromotionAuditEntry{
			PromotionID: req.PromotionID,
			Action:      types.AuditRollbackFailed,
			User:        req.RequestedBy,
			Reason:      execErr.Error(),
		})
		m.notifier.Notify(ctx, notify.Payload{
			Type:        notify.EventRollbackFailed,
			PromotionID: req.PromotionID,
			Status:      string(types.RollbackFailed),
			Timestamp:   time.Now(),
		})
	} else {
		m.Record(ctx, types.PromotionAuditEntry{
			PromotionID: req.PromotionID,
			Action:      types.AuditRolledBack,
			User:        req.RequestedBy,
			Reason:      req.Reason,
		})
		m.notifier.Notify(ctx, notify.Payload{
			Type:        notify.EventRollbackCompleted,
			PromotionID: req.PromotionID,
			Status:      string(types.RollbackCompleted),
			Timestamp:   time.Now(),
		})
	}
	m.persistRollback(ctx, req)
}

func (m *Manager) promotionByID(id string) (*types.PromotionRequest, bool) {
	if m.promotions == nil {
		return nil, false
	}
	return m.promotions.Promotion(id)
}

func (m *Manager) pendingRollback(requestID string) (*types.RollbackRequest, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	req, ok := m.state.rollbacks[requestID]
	if !ok {
		return nil, &types.NotFoundError{Kind: "rollback request", ID: requestID}
	}
	if req.Status != types.RollbackPending {
		return nil, &types.InvalidStateError{
			Kind:    "rollback request",
			ID:      requestID,
			Op:      "resolve",
			Current: string(req.Status),
			Wanted:  string(types.RollbackPending),
		}
	}
	return req, nil
}
