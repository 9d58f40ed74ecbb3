package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/warden/pkg/store"
	"github.com/entrhq/warden/pkg/types"
)

func deployedPromotion(id string, deployedAt time.Time) *types.PromotionRequest {
	return &types.PromotionRequest{
		ID:         id,
		Title:      "tune retry backoff",
		Status:     types.PromotionDeployed,
		DeployedAt: deployedAt,
	}
}

func TestCreateRollbackRequest_UnknownPromotion(t *testing.T) {
	m := NewManager(Config{}, fakePromotions{}, nil, nil, nil, nil)

	_, err := m.CreateRollbackRequest(context.Background(), "missing", "bad deploy", "alice")
	var notFound *types.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.ID)
}

func TestCreateRollbackRequest_PendingPromotion(t *testing.T) {
	promos := fakePromotions{
		"p1": {ID: "p1", Status: types.PromotionPending},
	}
	m := NewManager(Config{}, promos, nil, nil, nil, nil)

	_, err := m.CreateRollbackRequest(context.Background(), "p1", "not needed", "alice")
	var invalid *types.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, string(types.PromotionPending), invalid.Current)
	assert.Equal(t, string(types.PromotionDeployed), invalid.Wanted)
	assert.Empty(t, m.GetAuditLog(Filter{PromotionID: "p1"}), "refused rollback leaves no trail")
}

func TestCreateRollbackRequest_ImmediateExecution(t *testing.T) {
	promos := fakePromotions{"p1": deployedPromotion("p1", time.Now().Add(-time.Hour))}
	reverted := 0
	revert := func(ctx context.Context, promo *types.PromotionRequest, req *types.RollbackRequest) error {
		reverted++
		return nil
	}
	m := NewManager(Config{RequireApproval: false}, promos, revert, nil, nil, nil)

	req, err := m.CreateRollbackRequest(context.Background(), "p1", "regression", "alice")
	require.NoError(t, err)
	assert.Equal(t, types.RollbackCompleted, req.Status)
	assert.False(t, req.CompletedAt.IsZero())
	assert.Equal(t, 1, reverted)

	assert.Len(t, m.GetAuditLog(Filter{Action: types.AuditRollbackRequest}), 1)
	assert.Len(t, m.GetAuditLog(Filter{Action: types.AuditRolledBack}), 1)
}

func TestRollbackApprovalFlow(t *testing.T) {
	promos := fakePromotions{"p1": deployedPromotion("p1", time.Now().Add(-time.Hour))}
	m := NewManager(Config{RequireApproval: true}, promos, nil, nil, nil, nil)
	ctx := context.Background()

	req, err := m.CreateRollbackRequest(ctx, "p1", "regression", "alice")
	require.NoError(t, err)
	assert.Equal(t, types.RollbackPending, req.Status)
	assert.Empty(t, m.GetAuditLog(Filter{Action: types.AuditRolledBack}), "no execution before approval")

	approved, err := m.ApproveRollbackRequest(ctx, req.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, types.RollbackCompleted, approved.Status)
	assert.Equal(t, "bob", approved.ApprovedBy)

	actions := []types.AuditAction{}
	for _, e := range m.GetAuditLog(Filter{PromotionID: "p1"}) {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []types.AuditAction{types.AuditRollbackRequest, types.AuditRollbackApproved, types.AuditRolledBack}, actions)
}

func TestRejectRollbackRequest(t *testing.T) {
	promos := fakePromotions{"p1": deployedPromotion("p1", time.Now().Add(-time.Hour))}
	m := NewManager(Config{RequireApproval: true}, promos, nil, nil, nil, nil)
	ctx := context.Background()

	req, err := m.CreateRollbackRequest(ctx, "p1", "regression", "alice")
	require.NoError(t, err)

	rejected, err := m.RejectRollbackRequest(ctx, req.ID, "bob", "works as intended")
	require.NoError(t, err)
	assert.Equal(t, types.RollbackRejected, rejected.Status)

	// Rejection is terminal for the request.
	_, err = m.ApproveRollbackRequest(ctx, req.ID, "bob")
	var invalid *types.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, string(types.RollbackRejected), invalid.Current)
}

func TestRollback_InFlightConflict(t *testing.T) {
	promos := fakePromotions{"p1": deployedPromotion("p1", time.Now().Add(-time.Hour))}
	m := NewManager(Config{RequireApproval: true}, promos, nil, nil, nil, nil)
	ctx := context.Background()

	first, err := m.CreateRollbackRequest(ctx, "p1", "regression", "alice")
	require.NoError(t, err)
	second, err := m.CreateRollbackRequest(ctx, "p1", "also regression", "carol")
	require.NoError(t, err)

	_, err = m.ApproveRollbackRequest(ctx, second.ID, "bob")
	require.NoError(t, err)

	got, err := m.RollbackRequest(second.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RollbackFailed, got.Status)
	assert.Contains(t, got.Error, first.ID)
	assert.Contains(t, got.Error, "already in flight")
}

func TestRollback_WindowExpired(t *testing.T) {
	promos := fakePromotions{"p1": deployedPromotion("p1", time.Now().Add(-48*time.Hour))}
	m := NewManager(Config{RollbackWindow: 24 * time.Hour}, promos, nil, nil, nil, nil)

	req, err := m.CreateRollbackRequest(context.Background(), "p1", "too late", "alice")
	require.NoError(t, err)
	assert.Equal(t, types.RollbackFailed, req.Status)
	assert.Contains(t, req.Error, "expired")
	assert.Len(t, m.GetAuditLog(Filter{Action: types.AuditRollbackFailed}), 1)
}

func TestRollback_RevertFailureCaptured(t *testing.T) {
	promos := fakePromotions{"p1": deployedPromotion("p1", time.Now().Add(-time.Hour))}
	revert := func(ctx context.Context, promo *types.PromotionRequest, req *types.RollbackRequest) error {
		return errors.New("git revert: merge conflict")
	}
	m := NewManager(Config{}, promos, revert, nil, nil, nil)

	req, err := m.CreateRollbackRequest(context.Background(), "p1", "regression", "alice")
	require.NoError(t, err)
	assert.Equal(t, types.RollbackFailed, req.Status)
	assert.Contains(t, req.Error, "merge conflict")

	failed := m.GetAuditLog(Filter{Action: types.AuditRollbackFailed})
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Reason, "merge conflict")
}

func TestLoadRollbacks_SkipsMalformed(t *testing.T) {
	ctx := context.Background()
	records := store.NewMemoryStore()
	promos := fakePromotions{"p1": deployedPromotion("p1", time.Now().Add(-time.Hour))}

	m := NewManager(Config{RequireApproval: true}, promos, nil, records, nil, nil)
	req, err := m.CreateRollbackRequest(ctx, "p1", "regression", "alice")
	require.NoError(t, err)

	require.NoError(t, records.Store(ctx, store.Record{
		Category: "rollback_requests",
		Key:      "garbage",
		Payload:  "{{not yaml",
	}))

	restored := NewManager(Config{RequireApproval: true}, promos, nil, records, nil, nil)
	require.NoError(t, restored.LoadRollbacks(ctx))

	got, err := restored.RollbackRequest(req.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RollbackPending, got.Status)
	_, err = restored.RollbackRequest("garbage")
	assert.Error(t, err)
}
