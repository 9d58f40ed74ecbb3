package consultation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/warden/pkg/advisor"
	"github.com/entrhq/warden/pkg/store"
	"github.com/entrhq/warden/pkg/types"
)

func failingAdvisor() advisor.Advisor {
	return advisor.Func(func(ctx context.Context, req advisor.Request) (string, error) {
		return "", errors.New("advisor unavailable")
	})
}

func newTestEngine(t *testing.T, records store.RecordStore) *Engine {
	t.Helper()
	if records == nil {
		records = store.NewMemoryStore()
	}
	e, err := NewEngine(context.Background(), failingAdvisor(), records, "pkg/warden", nil)
	require.NoError(t, err)
	return e
}

func featureDecision(files ...string) *types.Decision {
	if len(files) == 0 {
		files = []string{"src/x.go"}
	}
	return &types.Decision{
		ID:          "dec-1",
		Description: "add a widget",
		Type:        types.DecisionFeature,
		Change:      types.Change{Type: "modify", Files: files},
	}
}

func TestShouldConsult_NoTriggersForPlainFeature(t *testing.T) {
	// A whitelisted, low-risk, single-file decision needs no consultation.
	e := newTestEngine(t, nil)

	triggers := e.ShouldConsult(featureDecision(), nil)
	assert.Empty(t, triggers)
}

func TestShouldConsult_ArchitecturalAlwaysTriggers(t *testing.T) {
	e := newTestEngine(t, nil)

	d := featureDecision()
	d.Type = types.DecisionArchitectural
	triggers := e.ShouldConsult(d, nil)
	assert.Contains(t, triggers, types.TriggerArchitectural)
}

func TestShouldConsult_HighImpact(t *testing.T) {
	e := newTestEngine(t, nil)

	impact := &types.ImpactAssessment{
		Risk:               types.SeverityLow,
		AffectedComponents: []string{"a", "b", "c", "d", "e", "f"},
	}
	triggers := e.ShouldConsult(featureDecision(), &Analysis{Impact: impact})
	assert.Contains(t, triggers, types.TriggerHighImpact)

	impact.AffectedComponents = impact.AffectedComponents[:5]
	triggers = e.ShouldConsult(featureDecision(), &Analysis{Impact: impact})
	assert.NotContains(t, triggers, types.TriggerHighImpact)
}

func TestShouldConsult_HighRiskFromAnalysis(t *testing.T) {
	e := newTestEngine(t, nil)

	analysis := &Analysis{Risks: &types.RiskEvaluation{
		OverallRisk:          types.SeverityHigh,
		RequiresConsultation: true,
	}}
	triggers := e.ShouldConsult(featureDecision(), analysis)
	assert.Contains(t, triggers, types.TriggerHighRisk)
}

func TestShouldConsult_SelfModification(t *testing.T) {
	e := newTestEngine(t, nil)

	// Case and separator differences must not bypass the check.
	d := featureDecision(`Pkg\Warden\engine.go`)
	triggers := e.ShouldConsult(d, nil)
	assert.Contains(t, triggers, types.TriggerSelfModification)

	triggers = e.ShouldConsult(featureDecision("pkg/other/engine.go"), nil)
	assert.NotContains(t, triggers, types.TriggerSelfModification)
}

func TestShouldConsult_PrecedentForUnknownType(t *testing.T) {
	e := newTestEngine(t, nil)

	d := featureDecision()
	d.Type = types.DecisionSecurity
	triggers := e.ShouldConsult(d, nil)
	assert.Contains(t, triggers, types.TriggerPrecedent)
}

func TestShouldConsult_Uncertainty(t *testing.T) {
	e := newTestEngine(t, nil)

	files := make([]string, 12)
	for i := range files {
		files[i] = "src/a.go"
	}
	d := featureDecision(files...)
	d.Type = types.DecisionArchitectural
	analysis := &Analysis{Risks: &types.RiskEvaluation{OverallRisk: types.SeverityHigh, RequiresConsultation: true}}

	triggers := e.ShouldConsult(d, analysis)
	assert.Contains(t, triggers, types.TriggerUncertainty)
}

func TestEstimateConfidence(t *testing.T) {
	e := newTestEngine(t, nil)

	// Whitelisted type, one file, no risk data.
	assert.Equal(t, 100, e.EstimateConfidence(featureDecision(), nil))

	d := featureDecision()
	d.Type = types.DecisionArchitectural
	analysis := &Analysis{Risks: &types.RiskEvaluation{OverallRisk: types.SeverityCritical}}
	assert.Equal(t, 50, e.EstimateConfidence(d, analysis))
}

func TestIncorporateFeedback_RejectionForcesFutureConsultation(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	d := featureDecision()

	require.Empty(t, e.ShouldConsult(d, nil))

	req := e.BuildConsultationRequest(ctx, d, []types.ConsultationTrigger{types.TriggerTieBreaking}, nil)
	err := e.IncorporateFeedback(ctx, req, &types.ConsultationResponse{
		Approved: false,
		Feedback: "do not auto-ship widgets",
	})
	require.NoError(t, err)

	triggers := e.ShouldConsult(featureDecision(), nil)
	assert.Contains(t, triggers, types.TriggerUserPreference)

	// A later high-confidence approval does not reset a rejected type.
	req2 := e.BuildConsultationRequest(ctx, featureDecision(), triggers, nil)
	require.NoError(t, e.IncorporateFeedback(ctx, req2, &types.ConsultationResponse{Approved: true, Confidence: 95}))
	assert.Contains(t, e.ShouldConsult(featureDecision(), nil), types.TriggerUserPreference)
}

func TestIncorporateFeedback_HighConfidenceApprovalLowersPropensity(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	req := e.BuildConsultationRequest(ctx, featureDecision(), []types.ConsultationTrigger{types.TriggerTieBreaking}, nil)
	require.NoError(t, e.IncorporateFeedback(ctx, req, &types.ConsultationResponse{Approved: true, Confidence: 90}))

	assert.Empty(t, e.ShouldConsult(featureDecision(), nil))
}

func TestIncorporateFeedback_WritesDecisionContext(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	d := featureDecision()

	req := e.BuildConsultationRequest(ctx, d, nil, nil)
	require.NoError(t, e.IncorporateFeedback(ctx, req, &types.ConsultationResponse{
		Approved: true,
		Feedback: "looks good",
	}))

	assert.Equal(t, true, d.Context[types.ContextKeyApproved])
	assert.Equal(t, "looks good", d.Context[types.ContextKeyUserFeedback])
}

func TestPatterns_SurviveRestart(t *testing.T) {
	records := store.NewMemoryStore()
	ctx := context.Background()

	e1 := newTestEngine(t, records)
	req := e1.BuildConsultationRequest(ctx, featureDecision(), []types.ConsultationTrigger{types.TriggerTieBreaking}, nil)
	require.NoError(t, e1.IncorporateFeedback(ctx, req, &types.ConsultationResponse{Approved: false}))

	// A fresh engine over the same store restores the learned rejection.
	e2 := newTestEngine(t, records)
	assert.Contains(t, e2.ShouldConsult(featureDecision(), nil), types.TriggerUserPreference)
}

func TestLoad_SkipsMalformedRecords(t *testing.T) {
	records := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, records.Store(ctx, store.Record{
		Category: categoryPatterns,
		Key:      "garbage",
		Payload:  "{{{ not yaml",
	}))
	require.NoError(t, records.Store(ctx, store.Record{
		Category: categoryPreferences,
		Key:      "feature",
		Payload:  "also: [unbalanced",
	}))

	e, err := NewEngine(ctx, failingAdvisor(), records, "pkg/warden", nil)
	require.NoError(t, err)
	assert.Empty(t, e.ShouldConsult(featureDecision(), nil))
}

func TestPatternKey_OrderIndependent(t *testing.T) {
	a := patternKey(types.DecisionFeature, []types.ConsultationTrigger{types.TriggerHighRisk, types.TriggerArchitectural}, true)
	b := patternKey(types.DecisionFeature, []types.ConsultationTrigger{types.TriggerArchitectural, types.TriggerHighRisk}, true)
	assert.Equal(t, a, b)

	// user_preference never participates in the key.
	c := patternKey(types.DecisionFeature, []types.ConsultationTrigger{types.TriggerArchitectural, types.TriggerHighRisk, types.TriggerUserPreference}, true)
	assert.Equal(t, a, c)
}

func TestIncorporateFeedback_DefaultsTimestamp(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	before := time.Now()
	req := e.BuildConsultationRequest(ctx, featureDecision(), []types.ConsultationTrigger{types.TriggerTieBreaking}, nil)
	require.NoError(t, e.IncorporateFeedback(ctx, req, &types.ConsultationResponse{Approved: false}))

	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.patterns[patternKey(types.DecisionFeature, req.Triggers, false)]
	require.NotNil(t, p)
	assert.False(t, p.LastSeen.Before(before))
	assert.Equal(t, 1, p.Frequency)
}
