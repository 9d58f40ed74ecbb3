package consultation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/warden/pkg/advisor"
	"github.com/entrhq/warden/pkg/store"
	"github.com/entrhq/warden/pkg/types"
)

// fallbackConfidence is the recommendation confidence used when the
// advisory backend could not be consulted at all.
const fallbackConfidence = 50

// maxAlternatives caps how many advisory alternatives are presented.
const maxAlternatives = 3

// BuildConsultationRequest assembles everything the human needs to rule on
// a decision: alternatives, a recommendation, similar past decisions, and a
// deterministic context summary. Advisory failures are absorbed with fixed
// heuristic alternatives; this call only fails if it cannot allocate an id.
func (e *Engine) BuildConsultationRequest(ctx context.Context, decision *types.Decision, triggers []types.ConsultationTrigger, analysis *Analysis) *types.ConsultationRequest {
	alternatives, recommendation := e.alternatives(ctx, decision, triggers)

	req := &types.ConsultationRequest{
		ID:             uuid.New().String(),
		Decision:       decision,
		Triggers:       triggers,
		Alternatives:   alternatives,
		Recommendation: recommendation,
		PastDecisions:  e.pastDecisions(ctx, decision.Type),
		Context:        BuildContext(decision, triggers, analysis),
		Timestamp:      time.Now(),
	}
	if analysis != nil {
		req.Analysis = analysisBag(analysis)
	}

	e.log.Infof("built consultation request %s for decision %s (%d triggers)", req.ID, decision.ID, len(triggers))
	return req
}

// alternatives queries the advisory backend for 2-3 options plus a
// recommendation, substituting the fixed heuristic pair when the backend
// fails or returns nothing usable.
func (e *Engine) alternatives(ctx context.Context, decision *types.Decision, triggers []types.ConsultationTrigger) ([]types.Alternative, types.Recommendation) {
	if e.advisor != nil {
		content, err := e.advisor.Advise(ctx, advisor.Request{
			TaskType:     "alternative_generation",
			Prompt:       alternativesPrompt(decision, triggers),
			SystemPrompt: alternativesSystemPrompt,
			MaxTokens:    1536,
		})
		if err == nil {
			alts := advisor.ParseAlternatives(content)
			if len(alts) > 0 {
				if len(alts) > maxAlternatives {
					alts = alts[:maxAlternatives]
				}
				rec, ok := advisor.ParseRecommendation(content)
				if !ok {
					rec = types.Recommendation{
						Option:     alts[0].Option,
						Reasoning:  "First generated alternative selected in the absence of an explicit recommendation",
						Confidence: advisor.DefaultConfidence,
					}
				}
				return alts, rec
			}
			e.log.Warnf("advisory alternatives for %s unparseable, using heuristic pair", decision.ID)
		} else {
			e.log.Warnf("advisory alternatives for %s failed, using heuristic pair: %v", decision.ID, err)
		}
	}
	return heuristicAlternatives(decision)
}

// heuristicAlternatives is the fixed fallback pair used when no advisory
// backend is reachable.
func heuristicAlternatives(decision *types.Decision) ([]types.Alternative, types.Recommendation) {
	alts := []types.Alternative{
		{
			Option:               "Proceed with the original plan",
			Pros:                 []string{"no additional delay", "plan already analyzed"},
			Cons:                 []string{"no independent review of alternatives"},
			EstimatedEffortHours: advisor.DefaultEffortHours,
		},
		{
			Option:               "Proceed with added safeguards",
			Pros:                 []string{"reduced blast radius", "easier rollback"},
			Cons:                 []string{"additional implementation effort"},
			EstimatedEffortHours: advisor.DefaultEffortHours * 2,
		},
	}
	rec := types.Recommendation{
		Option:     alts[0].Option,
		Reasoning:  fmt.Sprintf("Advisory service unavailable; defaulting to the original plan for %s decision %s", decision.Type, decision.ID),
		Confidence: fallbackConfidence,
	}
	return alts, rec
}

// pastDecisions returns brief summaries of similar recorded consultations
// for the decision type, for the human's reference.
func (e *Engine) pastDecisions(ctx context.Context, dt types.DecisionType) []string {
	recs, err := e.records.Search(ctx, store.Query{
		Category: categoryConsultations,
		Keyword:  string(dt),
		Limit:    5,
	})
	if err != nil {
		e.log.Warnf("past decision lookup failed: %v", err)
		return nil
	}
	var out []string
	for _, rec := range recs {
		if line := firstLine(rec.Payload); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// BuildContext renders the deterministic human-readable summary attached to
// a consultation request. The exact shape is part of the audit record: same
// inputs must produce byte-identical output across runs, so no timestamps
// or map iteration appear here.
func BuildContext(decision *types.Decision, triggers []types.ConsultationTrigger, analysis *Analysis) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Decision: %s (%s)\n", decision.ID, decision.Type)
	fmt.Fprintf(&sb, "Description: %s\n", decision.Description)

	names := make([]string, len(triggers))
	for i, tr := range triggers {
		names[i] = string(tr)
	}
	fmt.Fprintf(&sb, "Triggers: %s\n", strings.Join(names, ", "))

	if analysis != nil && analysis.Risks != nil {
		fmt.Fprintf(&sb, "Risk: overall %s, %d risk(s) identified\n",
			analysis.Risks.OverallRisk, len(analysis.Risks.Risks))
	}
	if analysis != nil && analysis.Impact != nil {
		fmt.Fprintf(&sb, "Impact: %s risk, %d component(s) affected\n",
			analysis.Impact.Risk, len(analysis.Impact.AffectedComponents))
	}

	fmt.Fprintf(&sb, "Files (%d): %s\n", len(decision.Change.Files), strings.Join(decision.Change.Files, ", "))
	return sb.String()
}

func analysisBag(analysis *Analysis) map[string]any {
	bag := make(map[string]any)
	if analysis.Risks != nil {
		bag["risks"] = analysis.Risks
	}
	if analysis.Impact != nil {
		bag["impact"] = analysis.Impact
	}
	return bag
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

const alternativesSystemPrompt = `You are advising on a software change decision. Propose 2-3 alternatives, then a recommendation.
Each alternative is a block of lines:
OPTION: <short name of the course of action>
PROS: <comma-separated>
CONS: <comma-separated>
EFFORT: <hours>
Separate blocks with a line containing only ---
After the last block add:
RECOMMENDATION: <the chosen option>
REASONING: <one sentence>
CONFIDENCE: <0-100>`

func alternativesPrompt(decision *types.Decision, triggers []types.ConsultationTrigger) string {
	var sb strings.Builder
	sb.WriteString("A human is being consulted before this change proceeds. Generate alternatives and a recommendation.\n\n")
	fmt.Fprintf(&sb, "Decision type: %s\n", decision.Type)
	fmt.Fprintf(&sb, "Description: %s\n", decision.Description)
	fmt.Fprintf(&sb, "Change: %s across %d file(s)\n", decision.Change.Type, len(decision.Change.Files))
	names := make([]string, len(triggers))
	for i, tr := range triggers {
		names[i] = string(tr)
	}
	fmt.Fprintf(&sb, "Consultation triggered by: %s\n", strings.Join(names, ", "))
	return sb.String()
}
