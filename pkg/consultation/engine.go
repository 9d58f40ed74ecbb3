// Package consultation decides when a human must rule on a decision, builds
// the request the human sees, and folds the human's response back into a
// learned pattern store so that historically rejected classes of change keep
// triggering oversight.
package consultation

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/entrhq/warden/pkg/advisor"
	"github.com/entrhq/warden/pkg/logging"
	"github.com/entrhq/warden/pkg/store"
	"github.com/entrhq/warden/pkg/types"
)

const (
	// highImpactComponents is the affected-component count above which a
	// decision is high impact.
	highImpactComponents = 5

	// uncertaintyThreshold is the confidence below which the uncertainty
	// trigger fires.
	uncertaintyThreshold = 70

	// rejectionRatioThreshold forces the user_preference trigger when this
	// share of past consultations for a (type, trigger set) combination
	// were rejected.
	rejectionRatioThreshold = 0.7
)

// precedentTypes is the whitelist of decision types with established
// precedent. Anything else triggers the precedent consultation.
var precedentTypes = map[types.DecisionType]bool{
	types.DecisionFeature:      true,
	types.DecisionBugFix:       true,
	types.DecisionRefactoring:  true,
	types.DecisionOptimization: true,
}

// Analysis carries the optional upstream data that informs trigger
// evaluation.
type Analysis struct {
	Risks  *types.RiskEvaluation
	Impact *types.ImpactAssessment
}

// typePreference is the per-decision-type consultation propensity learned
// from feedback. A rejection raises it permanently for that type.
type typePreference struct {
	ConsultByDefault bool `yaml:"consultByDefault"`
	EverRejected     bool `yaml:"everRejected"`
}

// Engine is the consultation policy engine. Construct with NewEngine and
// share one instance per pipeline; the pattern state is guarded internally.
type Engine struct {
	advisor advisor.Advisor
	records store.RecordStore
	log     *logging.Logger

	// ownSourceMarker is the path fragment identifying the agent's own
	// source tree in changed-file paths.
	ownSourceMarker string

	mu          sync.Mutex
	patterns    map[string]*types.ConsultationPattern
	preferences map[types.DecisionType]*typePreference
}

// NewEngine creates an engine and restores learned patterns from the record
// store. Malformed stored records are skipped, never fatal.
func NewEngine(ctx context.Context, adv advisor.Advisor, records store.RecordStore, ownSourceMarker string, log *logging.Logger) (*Engine, error) {
	if log == nil {
		log, _ = logging.NewLogger("consultation")
	}
	if records == nil {
		records = store.NewMemoryStore()
	}
	e := &Engine{
		advisor:         adv,
		records:         records,
		log:             log,
		ownSourceMarker: normalizePathFragment(ownSourceMarker),
		patterns:        make(map[string]*types.ConsultationPattern),
		preferences:     make(map[types.DecisionType]*typePreference),
	}
	if err := e.load(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// ShouldConsult evaluates every trigger independently and returns the
// cumulative set, in a stable order. An empty result means no consultation
// is required.
func (e *Engine) ShouldConsult(decision *types.Decision, analysis *Analysis) []types.ConsultationTrigger {
	var triggers []types.ConsultationTrigger

	if analysis != nil && analysis.Impact != nil && len(analysis.Impact.AffectedComponents) > highImpactComponents {
		triggers = append(triggers, types.TriggerHighImpact)
	}
	if analysis != nil && analysis.Risks != nil && analysis.Risks.RequiresConsultation {
		triggers = append(triggers, types.TriggerHighRisk)
	}
	if decision.Type == types.DecisionArchitectural {
		triggers = append(triggers, types.TriggerArchitectural)
	}
	if e.touchesOwnSource(decision) {
		triggers = append(triggers, types.TriggerSelfModification)
	}
	if e.EstimateConfidence(decision, analysis) < uncertaintyThreshold {
		triggers = append(triggers, types.TriggerUncertainty)
	}
	if !precedentTypes[decision.Type] {
		triggers = append(triggers, types.TriggerPrecedent)
	}
	if e.userPrefersConsultation(decision.Type, triggers) {
		triggers = append(triggers, types.TriggerUserPreference)
	}

	return triggers
}

// EstimateConfidence scores how confident the pipeline is in proceeding
// without a human: it decreases with risk level and file count and
// increases when the decision type has established precedent.
func (e *Engine) EstimateConfidence(decision *types.Decision, analysis *Analysis) int {
	confidence := 90

	if analysis != nil && analysis.Risks != nil {
		confidence -= analysis.Risks.OverallRisk.Rank() * 10
	}

	files := len(decision.Change.Files)
	switch {
	case files > 10:
		confidence -= 15
	case files > 5:
		confidence -= 8
	}

	if precedentTypes[decision.Type] {
		confidence += 10
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}

// touchesOwnSource reports whether any changed file path falls inside the
// agent's own source tree. Comparison is case-insensitive and
// separator-normalized.
func (e *Engine) touchesOwnSource(decision *types.Decision) bool {
	if e.ownSourceMarker == "" {
		return false
	}
	for _, f := range decision.Change.Files {
		if strings.Contains(normalizePathFragment(f), e.ownSourceMarker) {
			return true
		}
	}
	return false
}

// userPrefersConsultation applies the learned-pattern check: if the stored
// per-type preference demands consultation, or at least 70% of past
// consultations for this exact (type, trigger set) were rejected, the
// user_preference trigger fires.
func (e *Engine) userPrefersConsultation(dt types.DecisionType, triggers []types.ConsultationTrigger) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pref, ok := e.preferences[dt]; ok && pref.ConsultByDefault {
		return true
	}

	approved := e.patterns[patternKey(dt, triggers, true)]
	rejected := e.patterns[patternKey(dt, triggers, false)]
	total := 0
	if approved != nil {
		total += approved.Frequency
	}
	rejections := 0
	if rejected != nil {
		rejections = rejected.Frequency
		total += rejections
	}
	if total == 0 {
		return false
	}
	return float64(rejections)/float64(total) >= rejectionRatioThreshold
}

// patternKey canonicalizes a (type, trigger set, outcome) combination. The
// trigger set is sorted and deduplicated so key construction does not
// depend on evaluation order.
func patternKey(dt types.DecisionType, triggers []types.ConsultationTrigger, approved bool) string {
	set := canonicalTriggers(triggers)
	names := make([]string, len(set))
	for i, tr := range set {
		names[i] = string(tr)
	}
	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	return string(dt) + "|" + strings.Join(names, "+") + "|" + outcome
}

func canonicalTriggers(triggers []types.ConsultationTrigger) []types.ConsultationTrigger {
	seen := make(map[types.ConsultationTrigger]bool, len(triggers))
	var set []types.ConsultationTrigger
	for _, tr := range triggers {
		// user_preference is itself derived from patterns; keying on it
		// would make the learned check self-referential.
		if tr == types.TriggerUserPreference || seen[tr] {
			continue
		}
		seen[tr] = true
		set = append(set, tr)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

func normalizePathFragment(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
}
