// Package risk scores decisions before they enter the promotion pipeline.
// The evaluator asks the advisory backend to enumerate risks and mitigation
// strategies, and falls back to deterministic heuristics whenever the
// backend fails: an evaluation never fails because the advisor is down, and
// a decision is never scored as risk-free.
package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/warden/pkg/advisor"
	"github.com/entrhq/warden/pkg/logging"
	"github.com/entrhq/warden/pkg/types"
)

// manyFilesThreshold is the file count above which a change is considered
// broad enough to carry technical risk on its own.
const manyFilesThreshold = 10

// mediumEscalationCount is the number of medium risks that together
// escalate an otherwise-medium overall level to high.
const mediumEscalationCount = 3

// Evaluator turns a decision into a risk evaluation.
type Evaluator struct {
	advisor advisor.Advisor
	log     *logging.Logger
}

// NewEvaluator creates an evaluator. The advisor may be nil, in which case
// every evaluation uses the heuristic fallbacks.
func NewEvaluator(adv advisor.Advisor, log *logging.Logger) *Evaluator {
	if log == nil {
		log, _ = logging.NewLogger("risk")
	}
	return &Evaluator{advisor: adv, log: log}
}

// EvaluateRisk scores a decision. It has no side effects and cannot fail:
// advisory errors are recovered with heuristics inside IdentifyRisks and
// mitigation defaults.
func (e *Evaluator) EvaluateRisk(ctx context.Context, decision *types.Decision) *types.RiskEvaluation {
	risks := e.IdentifyRisks(ctx, decision)

	overall := overallRisk(risks)
	eval := &types.RiskEvaluation{
		Risks:                risks,
		OverallRisk:          overall,
		RequiresConsultation: requiresConsultation(risks, overall),
		MitigationStrategies: e.mitigations(ctx, decision, risks),
	}
	eval.Reasoning = reasoning(eval)

	e.log.Infof("evaluated decision %s: %d risks, overall %s, consultation=%v",
		decision.ID, len(eval.Risks), eval.OverallRisk, eval.RequiresConsultation)
	return eval
}

// IdentifyRisks enumerates candidate risks for a decision via the advisory
// backend, falling back to the deterministic heuristic table when the
// backend fails or returns nothing usable.
func (e *Evaluator) IdentifyRisks(ctx context.Context, decision *types.Decision) []types.Risk {
	if e.advisor != nil {
		content, err := e.advisor.Advise(ctx, advisor.Request{
			TaskType:     "risk_identification",
			Prompt:       riskPrompt(decision),
			SystemPrompt: riskSystemPrompt,
			MaxTokens:    1024,
		})
		if err == nil {
			if risks := advisor.ParseRisks(content); len(risks) > 0 {
				return risks
			}
			e.log.Warnf("advisory risk response for %s had no parseable risks, using heuristics", decision.ID)
		} else {
			e.log.Warnf("advisory risk identification for %s failed, using heuristics: %v", decision.ID, err)
		}
	}
	return heuristicRisks(decision)
}

// heuristicRisks is the deterministic fallback table. A decision that
// matches no rule still yields one low risk.
func heuristicRisks(decision *types.Decision) []types.Risk {
	var risks []types.Risk

	if decision.Type == types.DecisionArchitectural {
		risks = append(risks, types.Risk{
			Description: "Architectural change may have wide-reaching effects on dependent components",
			Likelihood:  60,
			Severity:    types.SeverityHigh,
			Category:    types.RiskTechnical,
		})
	}
	if decision.Type == types.DecisionSecurity {
		risks = append(risks, types.Risk{
			Description: "Security-sensitive change could introduce or expose vulnerabilities",
			Likelihood:  50,
			Severity:    types.SeverityHigh,
			Category:    types.RiskSecurity,
		})
	}
	if len(decision.Change.Files) > manyFilesThreshold {
		risks = append(risks, types.Risk{
			Description: fmt.Sprintf("Change touches %d files, increasing the chance of unintended interactions", len(decision.Change.Files)),
			Likelihood:  50,
			Severity:    types.SeverityMedium,
			Category:    types.RiskTechnical,
		})
	}
	if decision.Change.Type == "breaking" {
		risks = append(risks, types.Risk{
			Description: "Breaking change will require coordinated updates in consumers",
			Likelihood:  80,
			Severity:    types.SeverityHigh,
			Category:    types.RiskTechnical,
		})
	}

	if len(risks) == 0 {
		// A decision is never risk-free.
		risks = append(risks, types.Risk{
			Description: "Any change carries some risk of regression",
			Likelihood:  20,
			Severity:    types.SeverityLow,
			Category:    types.RiskTechnical,
		})
	}
	return risks
}

// overallRisk is the maximum individual severity, escalated from medium to
// high when mediumEscalationCount or more medium risks accumulate.
func overallRisk(risks []types.Risk) types.Severity {
	overall := types.SeverityLow
	mediums := 0
	for _, r := range risks {
		overall = types.MaxSeverity(overall, r.Severity)
		if r.Severity == types.SeverityMedium {
			mediums++
		}
	}
	if overall == types.SeverityMedium && mediums >= mediumEscalationCount {
		overall = types.SeverityHigh
	}
	return overall
}

func requiresConsultation(risks []types.Risk, overall types.Severity) bool {
	if overall.AtLeast(types.SeverityHigh) {
		return true
	}
	for _, r := range risks {
		if r.Severity.AtLeast(types.SeverityHigh) {
			return true
		}
	}
	return false
}

// mitigations requests a strategy for every medium-or-above risk,
// substituting the category default when the advisory call fails.
func (e *Evaluator) mitigations(ctx context.Context, decision *types.Decision, risks []types.Risk) []types.Mitigation {
	var out []types.Mitigation
	for _, r := range risks {
		if !r.Severity.AtLeast(types.SeverityMedium) {
			continue
		}
		m := e.mitigationFor(ctx, decision, r)
		m.Risk = r.Description
		out = append(out, m)
	}
	return out
}

func (e *Evaluator) mitigationFor(ctx context.Context, decision *types.Decision, r types.Risk) types.Mitigation {
	if e.advisor != nil {
		content, err := e.advisor.Advise(ctx, advisor.Request{
			TaskType:     "mitigation_strategy",
			Prompt:       mitigationPrompt(decision, r),
			SystemPrompt: mitigationSystemPrompt,
			MaxTokens:    512,
		})
		if err == nil {
			if m, ok := advisor.ParseMitigation(content); ok {
				return m
			}
		} else {
			e.log.Warnf("advisory mitigation for %s failed, using category default: %v", decision.ID, err)
		}
	}
	return types.Mitigation{
		Strategy:      defaultMitigations[r.Category],
		EffortHours:   advisor.DefaultEffortHours,
		Effectiveness: advisor.DefaultEffectiveness,
	}
}

// defaultMitigations are category-keyed fallback strategies.
var defaultMitigations = map[types.RiskCategory]string{
	types.RiskTechnical:   "Add focused tests around the changed behavior and review the diff with extra scrutiny",
	types.RiskSecurity:    "Run a security review of the change and audit affected inputs and permissions",
	types.RiskOperational: "Stage the rollout and monitor error rates with a prepared rollback",
	types.RiskBusiness:    "Validate the change against stakeholder expectations before release",
	types.RiskMaintenance: "Document the change and schedule a follow-up review of accumulated debt",
}

func reasoning(eval *types.RiskEvaluation) string {
	consult := "no consultation is required"
	if eval.RequiresConsultation {
		consult = "human consultation is required"
	}
	return fmt.Sprintf(
		"Identified %d risk(s) with an overall %s risk level; %d rated high or critical. Based on this assessment, %s.",
		len(eval.Risks), eval.OverallRisk, eval.HighSeverityCount(), consult)
}

const riskSystemPrompt = `You are a software change risk assessor. Respond only with risk blocks.
Each block has these lines:
RISK: <one-sentence description>
LIKELIHOOD: <0-100>
SEVERITY: <low|medium|high|critical>
CATEGORY: <technical|security|operational|business|maintenance>
Separate blocks with a line containing only ---`

const mitigationSystemPrompt = `You are a software change risk assessor. Respond with exactly these lines:
STRATEGY: <one-sentence mitigation strategy>
EFFORT: <hours>
EFFECTIVENESS: <0-100>`

func riskPrompt(decision *types.Decision) string {
	var sb strings.Builder
	sb.WriteString("Identify the risks of the following change across the technical, security, operational, business, and maintenance categories.\n\n")
	fmt.Fprintf(&sb, "Decision type: %s\n", decision.Type)
	fmt.Fprintf(&sb, "Description: %s\n", decision.Description)
	fmt.Fprintf(&sb, "Change type: %s\n", decision.Change.Type)
	fmt.Fprintf(&sb, "Files (%d):\n", len(decision.Change.Files))
	for _, f := range decision.Change.Files {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	return sb.String()
}

func mitigationPrompt(decision *types.Decision, r types.Risk) string {
	var sb strings.Builder
	sb.WriteString("Propose a mitigation strategy for this risk.\n\n")
	fmt.Fprintf(&sb, "Change: %s (%s)\n", decision.Description, decision.Type)
	fmt.Fprintf(&sb, "Risk: %s\n", r.Description)
	fmt.Fprintf(&sb, "Severity: %s, likelihood %d%%, category %s\n", r.Severity, r.Likelihood, r.Category)
	return sb.String()
}
