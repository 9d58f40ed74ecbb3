package types

// Severity ranks how damaging a risk (or an aggregate of risks) could be.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRanks orders severities for comparison. Unknown values rank below
// low so a malformed advisory response can never escalate the overall level.
var severityRanks = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric ordering of the severity (low=1 .. critical=4).
// Unknown severities rank as 0.
func (s Severity) Rank() int {
	return severityRanks[s]
}

// AtLeast reports whether s is equal to or more severe than other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// RiskCategory buckets risks into the five fixed evaluation categories.
type RiskCategory string

const (
	RiskTechnical   RiskCategory = "technical"
	RiskSecurity    RiskCategory = "security"
	RiskOperational RiskCategory = "operational"
	RiskBusiness    RiskCategory = "business"
	RiskMaintenance RiskCategory = "maintenance"
)

// Risk is a single identified hazard of carrying out a decision.
type Risk struct {
	Description string       `json:"description" yaml:"description"`
	Likelihood  int          `json:"likelihood" yaml:"likelihood"` // 0-100
	Severity    Severity     `json:"severity" yaml:"severity"`
	Category    RiskCategory `json:"category" yaml:"category"`
	Mitigation  string       `json:"mitigation,omitempty" yaml:"mitigation,omitempty"`
}

// Mitigation is a concrete strategy for reducing a single risk.
type Mitigation struct {
	Risk          string  `json:"risk" yaml:"risk"`
	Strategy      string  `json:"strategy" yaml:"strategy"`
	EffortHours   float64 `json:"effortHours" yaml:"effortHours"`
	Effectiveness int     `json:"effectiveness" yaml:"effectiveness"` // 0-100
}

// RiskEvaluation is the scored result of assessing one decision. It is
// derived on every call and never persisted on its own.
type RiskEvaluation struct {
	Risks                []Risk       `json:"risks"`
	OverallRisk          Severity     `json:"overallRisk"`
	RequiresConsultation bool         `json:"requiresConsultation"`
	MitigationStrategies []Mitigation `json:"mitigationStrategies"`
	Reasoning            string       `json:"reasoning"`
}

// HighSeverityCount returns how many risks are high or critical.
func (e *RiskEvaluation) HighSeverityCount() int {
	n := 0
	for _, r := range e.Risks {
		if r.Severity.AtLeast(SeverityHigh) {
			n++
		}
	}
	return n
}
