package risk

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/warden/pkg/advisor"
	"github.com/entrhq/warden/pkg/types"
)

var errAdvisorDown = errors.New("advisor unavailable")

func failingAdvisor() advisor.Advisor {
	return advisor.Func(func(ctx context.Context, req advisor.Request) (string, error) {
		return "", errAdvisorDown
	})
}

func decisionWithFiles(dt types.DecisionType, n int) *types.Decision {
	files := make([]string, n)
	for i := range files {
		files[i] = fmt.Sprintf("src/file%d.go", i)
	}
	return &types.Decision{
		ID:          "dec-1",
		Description: "test decision",
		Type:        dt,
		Change:      types.Change{Type: "modify", Files: files},
	}
}

func TestIdentifyRisks_HeuristicFallback_Architectural(t *testing.T) {
	e := NewEvaluator(failingAdvisor(), nil)

	risks := e.IdentifyRisks(context.Background(), decisionWithFiles(types.DecisionArchitectural, 2))
	require.Len(t, risks, 1)
	assert.Equal(t, types.SeverityHigh, risks[0].Severity)
	assert.Equal(t, types.RiskTechnical, risks[0].Category)
}

func TestIdentifyRisks_HeuristicFallback_ManyFiles(t *testing.T) {
	// Scenario: advisory down, 15-file feature change yields exactly one
	// medium technical risk.
	e := NewEvaluator(failingAdvisor(), nil)

	risks := e.IdentifyRisks(context.Background(), decisionWithFiles(types.DecisionFeature, 15))
	require.Len(t, risks, 1)
	assert.Equal(t, types.SeverityMedium, risks[0].Severity)
	assert.Equal(t, types.RiskTechnical, risks[0].Category)
}

func TestIdentifyRisks_NeverRiskFree(t *testing.T) {
	e := NewEvaluator(failingAdvisor(), nil)

	risks := e.IdentifyRisks(context.Background(), decisionWithFiles(types.DecisionFeature, 1))
	require.Len(t, risks, 1)
	assert.Equal(t, types.SeverityLow, risks[0].Severity)
}

func TestIdentifyRisks_BreakingChange(t *testing.T) {
	e := NewEvaluator(failingAdvisor(), nil)

	d := decisionWithFiles(types.DecisionFeature, 1)
	d.Change.Type = "breaking"
	risks := e.IdentifyRisks(context.Background(), d)
	require.Len(t, risks, 1)
	assert.Equal(t, types.SeverityHigh, risks[0].Severity)
}

func TestIdentifyRisks_UsesAdvisoryResponse(t *testing.T) {
	adv := advisor.Func(func(ctx context.Context, req advisor.Request) (string, error) {
		return "RISK: flaky cache invalidation\nLIKELIHOOD: 30\nSEVERITY: medium\nCATEGORY: operational", nil
	})
	e := NewEvaluator(adv, nil)

	risks := e.IdentifyRisks(context.Background(), decisionWithFiles(types.DecisionFeature, 1))
	require.Len(t, risks, 1)
	assert.Equal(t, "flaky cache invalidation", risks[0].Description)
	assert.Equal(t, types.RiskOperational, risks[0].Category)
}

func TestEvaluateRisk_MediumEscalation(t *testing.T) {
	// Three medium risks and nothing above medium escalate overall to high.
	adv := advisor.Func(func(ctx context.Context, req advisor.Request) (string, error) {
		if req.TaskType != "risk_identification" {
			return "", errAdvisorDown
		}
		return `RISK: a
SEVERITY: medium
---
RISK: b
SEVERITY: medium
---
RISK: c
SEVERITY: medium`, nil
	})
	e := NewEvaluator(adv, nil)

	eval := e.EvaluateRisk(context.Background(), decisionWithFiles(types.DecisionFeature, 1))
	assert.Equal(t, types.SeverityHigh, eval.OverallRisk)
	assert.True(t, eval.RequiresConsultation)
}

func TestEvaluateRisk_TwoMediumsStayMedium(t *testing.T) {
	adv := advisor.Func(func(ctx context.Context, req advisor.Request) (string, error) {
		if req.TaskType != "risk_identification" {
			return "", errAdvisorDown
		}
		return "RISK: a\nSEVERITY: medium\n---\nRISK: b\nSEVERITY: medium", nil
	})
	e := NewEvaluator(adv, nil)

	eval := e.EvaluateRisk(context.Background(), decisionWithFiles(types.DecisionFeature, 1))
	assert.Equal(t, types.SeverityMedium, eval.OverallRisk)
	assert.False(t, eval.RequiresConsultation)
}

func TestEvaluateRisk_ConsultationOnHighIndividualRisk(t *testing.T) {
	e := NewEvaluator(failingAdvisor(), nil)

	eval := e.EvaluateRisk(context.Background(), decisionWithFiles(types.DecisionSecurity, 1))
	assert.True(t, eval.RequiresConsultation)
	assert.Equal(t, types.SeverityHigh, eval.OverallRisk)
}

func TestEvaluateRisk_DefaultMitigations(t *testing.T) {
	e := NewEvaluator(failingAdvisor(), nil)

	eval := e.EvaluateRisk(context.Background(), decisionWithFiles(types.DecisionSecurity, 1))
	require.Len(t, eval.MitigationStrategies, 1)
	m := eval.MitigationStrategies[0]
	assert.Equal(t, defaultMitigations[types.RiskSecurity], m.Strategy)
	assert.Equal(t, float64(advisor.DefaultEffortHours), m.EffortHours)
	assert.NotEmpty(t, m.Risk)
}

func TestEvaluateRisk_NoMitigationForLowRisks(t *testing.T) {
	e := NewEvaluator(failingAdvisor(), nil)

	eval := e.EvaluateRisk(context.Background(), decisionWithFiles(types.DecisionFeature, 1))
	assert.Empty(t, eval.MitigationStrategies)
}

func TestEvaluateRisk_Reasoning(t *testing.T) {
	e := NewEvaluator(failingAdvisor(), nil)

	eval := e.EvaluateRisk(context.Background(), decisionWithFiles(types.DecisionArchitectural, 1))
	assert.Contains(t, eval.Reasoning, "1 risk(s)")
	assert.Contains(t, eval.Reasoning, "overall high")
	assert.Contains(t, eval.Reasoning, "consultation is required")
}
