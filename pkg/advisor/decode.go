package advisor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/entrhq/warden/pkg/types"
)

// Defaults substituted for fields the backend omitted or mangled.
const (
	DefaultEffortHours   = 4
	DefaultConfidence    = 70
	DefaultLikelihood    = 50
	DefaultEffectiveness = 70
)

// blockDelimiter separates records in an advisory response.
const blockDelimiter = "---"

// markerPattern matches "MARKER: value" lines, tolerating leading list
// bullets, indentation, and mixed case.
var markerPattern = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?([A-Z_]+)\s*:\s*(.*)$`)

// SplitBlocks splits an advisory response into records on literal "---"
// lines. Empty blocks are dropped.
func SplitBlocks(content string) []string {
	var blocks []string
	var current []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == blockDelimiter {
			if b := strings.TrimSpace(strings.Join(current, "\n")); b != "" {
				blocks = append(blocks, b)
			}
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	if b := strings.TrimSpace(strings.Join(current, "\n")); b != "" {
		blocks = append(blocks, b)
	}
	return blocks
}

// fields extracts marker values from one block. The last occurrence of a
// repeated marker wins.
func fields(block string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		m := markerPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out[strings.ToUpper(m[1])] = strings.TrimSpace(m[2])
	}
	return out
}

// ParseRisks decodes RISK blocks from an advisory response. Blocks without a
// RISK: line are skipped; malformed numeric or enum fields fall back to
// defaults rather than dropping the risk.
func ParseRisks(content string) []types.Risk {
	var risks []types.Risk
	for _, block := range SplitBlocks(content) {
		f := fields(block)
		desc := f["RISK"]
		if desc == "" {
			continue
		}
		risks = append(risks, types.Risk{
			Description: desc,
			Likelihood:  parseScore(f["LIKELIHOOD"], DefaultLikelihood),
			Severity:    normalizeSeverity(f["SEVERITY"]),
			Category:    normalizeCategory(f["CATEGORY"]),
		})
	}
	return risks
}

// ParseAlternatives decodes OPTION blocks. PROS and CONS are comma-separated
// lists; a missing EFFORT defaults to DefaultEffortHours.
func ParseAlternatives(content string) []types.Alternative {
	var alts []types.Alternative
	for _, block := range SplitBlocks(content) {
		f := fields(block)
		option := f["OPTION"]
		if option == "" {
			continue
		}
		alts = append(alts, types.Alternative{
			Option:               option,
			Pros:                 splitList(f["PROS"]),
			Cons:                 splitList(f["CONS"]),
			EstimatedEffortHours: parseHours(f["EFFORT"]),
			Risks:                splitList(f["RISKS"]),
		})
	}
	return alts
}

// ParseRecommendation decodes the RECOMMENDATION/REASONING/CONFIDENCE
// markers from anywhere in the response. The second return is false when no
// RECOMMENDATION: line was present.
func ParseRecommendation(content string) (types.Recommendation, bool) {
	f := fields(content)
	option := f["RECOMMENDATION"]
	if option == "" {
		return types.Recommendation{}, false
	}
	return types.Recommendation{
		Option:     option,
		Reasoning:  f["REASONING"],
		Confidence: parseScore(f["CONFIDENCE"], DefaultConfidence),
	}, true
}

// ParseMitigation decodes a STRATEGY/EFFORT/EFFECTIVENESS response for one
// risk. The second return is false when no STRATEGY: line was present.
func ParseMitigation(content string) (types.Mitigation, bool) {
	f := fields(content)
	strategy := f["STRATEGY"]
	if strategy == "" {
		return types.Mitigation{}, false
	}
	return types.Mitigation{
		Strategy:      strategy,
		EffortHours:   parseHours(f["EFFORT"]),
		Effectiveness: parseScore(f["EFFECTIVENESS"], DefaultEffectiveness),
	}, true
}

// splitList splits a comma-separated marker value into trimmed items.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if item := strings.TrimSpace(p); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseScore parses a 0-100 integer, clamping out-of-range values and
// substituting fallback for anything unparseable.
func parseScore(raw string, fallback int) int {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "%")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// parseHours parses an effort value like "4", "4h", or "4 hours".
func parseHours(raw string) float64 {
	raw = strings.ToLower(strings.TrimSpace(raw))
	raw = strings.TrimSuffix(raw, "hours")
	raw = strings.TrimSuffix(raw, "hour")
	raw = strings.TrimSuffix(raw, "hrs")
	raw = strings.TrimSuffix(raw, "h")
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || n <= 0 {
		return DefaultEffortHours
	}
	return n
}

func normalizeSeverity(raw string) types.Severity {
	switch types.Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case types.SeverityLow:
		return types.SeverityLow
	case types.SeverityMedium:
		return types.SeverityMedium
	case types.SeverityHigh:
		return types.SeverityHigh
	case types.SeverityCritical:
		return types.SeverityCritical
	default:
		return types.SeverityMedium
	}
}

func normalizeCategory(raw string) types.RiskCategory {
	switch types.RiskCategory(strings.ToLower(strings.TrimSpace(raw))) {
	case types.RiskSecurity:
		return types.RiskSecurity
	case types.RiskOperational:
		return types.RiskOperational
	case types.RiskBusiness:
		return types.RiskBusiness
	case types.RiskMaintenance:
		return types.RiskMaintenance
	default:
		return types.RiskTechnical
	}
}
