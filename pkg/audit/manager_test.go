package audit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/warden/pkg/types"
)

// fakePromotions is a PromotionLookup over a fixed set.
type fakePromotions map[string]*types.PromotionRequest

func (f fakePromotions) Promotion(id string) (*types.PromotionRequest, bool) {
	p, ok := f[id]
	return p, ok
}

func seededManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(Config{RequireApproval: true}, nil, nil, nil, nil, nil)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	m.Record(ctx, types.PromotionAuditEntry{PromotionID: "p1", Action: types.AuditCreated, User: "agent", Timestamp: base})
	m.Record(ctx, types.PromotionAuditEntry{PromotionID: "p1", Action: types.AuditApproved, User: "alice", Timestamp: base.Add(time.Hour)})
	m.Record(ctx, types.PromotionAuditEntry{PromotionID: "p2", Action: types.AuditCreated, User: "agent", Timestamp: base.Add(2 * time.Hour)})
	m.Record(ctx, types.PromotionAuditEntry{PromotionID: "p1", Action: types.AuditDeployed, User: "alice", Timestamp: base.Add(26 * time.Hour)})
	return m
}

func TestGetAuditLog_Filters(t *testing.T) {
	m := seededManager(t)

	assert.Len(t, m.GetAuditLog(Filter{}), 4)
	assert.Len(t, m.GetAuditLog(Filter{PromotionID: "p1"}), 3)
	assert.Len(t, m.GetAuditLog(Filter{Action: types.AuditCreated}), 2)
	assert.Len(t, m.GetAuditLog(Filter{User: "alice"}), 2)

	windowed := m.GetAuditLog(Filter{
		StartTime: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	})
	require.Len(t, windowed, 2)
	assert.Equal(t, types.AuditApproved, windowed[0].Action)

	limited := m.GetAuditLog(Filter{PromotionID: "p1", Limit: 2})
	require.Len(t, limited, 2)
	assert.Equal(t, types.AuditCreated, limited[0].Action)
	assert.Equal(t, types.AuditApproved, limited[1].Action)
}

func TestGetAuditLog_Idempotent(t *testing.T) {
	m := seededManager(t)

	f := Filter{PromotionID: "p1", User: "alice"}
	assert.Equal(t, m.GetAuditLog(f), m.GetAuditLog(f))
}

func TestExportAuditLog_JSONRoundTrip(t *testing.T) {
	m := seededManager(t)
	before := m.GetAuditLog(Filter{})

	out, err := m.ExportAuditLog(FormatJSON)
	require.NoError(t, err)

	var parsed []types.PromotionAuditEntry
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Len(t, parsed, len(before))
	for i, e := range parsed {
		assert.Equal(t, before[i].PromotionID, e.PromotionID)
		assert.Equal(t, before[i].Action, e.Action)
		assert.True(t, before[i].Timestamp.Equal(e.Timestamp))
	}
}

func TestExportAuditLog_CSV(t *testing.T) {
	m := seededManager(t)

	out, err := m.ExportAuditLog(FormatCSV)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Timestamp,Promotion ID,Action,User,Reason", lines[0])
	assert.Contains(t, lines[1], "p1")
}

func TestExportAuditLog_Markdown(t *testing.T) {
	m := seededManager(t)

	out, err := m.ExportAuditLog(FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, out, "# Promotion Audit Log")
	assert.Contains(t, out, "| p1 | deployed | alice |")
}

func TestExportAuditLog_UnsupportedFormat(t *testing.T) {
	m := seededManager(t)

	out, err := m.ExportAuditLog("xml")
	var unsupported *types.UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "xml", unsupported.Format)
	assert.Empty(t, out, "no partial output on unsupported format")
}

func TestGenerateAuditReport(t *testing.T) {
	m := seededManager(t)

	report := m.GenerateAuditReport()
	assert.Equal(t, 4, report.TotalEntries)
	assert.Equal(t, 2, report.ByAction[types.AuditCreated])
	assert.Equal(t, 2, report.ByUser["alice"])
	assert.Equal(t, 3, report.ByPromotion["p1"])

	require.Len(t, report.Timeline, 2)
	assert.Equal(t, TimelineBucket{Day: "2026-03-01", Count: 3}, report.Timeline[0])
	assert.Equal(t, TimelineBucket{Day: "2026-03-02", Count: 1}, report.Timeline[1])
}
