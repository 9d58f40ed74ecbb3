package types

import "time"

// ConsultationTrigger names a policy reason why a human must be consulted
// before a decision proceeds.
type ConsultationTrigger string

const (
	TriggerHighImpact       ConsultationTrigger = "high_impact"
	TriggerHighRisk         ConsultationTrigger = "high_risk"
	TriggerArchitectural    ConsultationTrigger = "architectural"
	TriggerSelfModification ConsultationTrigger = "self_modification"
	TriggerUserPreference   ConsultationTrigger = "user_preference"
	TriggerUncertainty      ConsultationTrigger = "uncertainty"
	TriggerPrecedent        ConsultationTrigger = "precedent"
	TriggerTieBreaking      ConsultationTrigger = "tie_breaking"
)

// Alternative is one candidate course of action presented to the human.
type Alternative struct {
	Option               string   `json:"option" yaml:"option"`
	Pros                 []string `json:"pros" yaml:"pros"`
	Cons                 []string `json:"cons" yaml:"cons"`
	EstimatedEffortHours float64  `json:"estimatedEffortHours" yaml:"estimatedEffortHours"`
	Risks                []string `json:"risks,omitempty" yaml:"risks,omitempty"`
}

// Recommendation is the pipeline's preferred alternative with its rationale.
type Recommendation struct {
	Option     string `json:"option" yaml:"option"`
	Reasoning  string `json:"reasoning" yaml:"reasoning"`
	Confidence int    `json:"confidence" yaml:"confidence"` // 0-100
}

// ConsultationRequest is everything a human needs to rule on a decision.
// The Context string is part of the audit record: it is assembled
// deterministically and must remain stable across runs for the same inputs.
type ConsultationRequest struct {
	ID             string                `json:"id"`
	Decision       *Decision             `json:"decision"`
	Triggers       []ConsultationTrigger `json:"triggers"`
	Analysis       map[string]any        `json:"analysis,omitempty"`
	Alternatives   []Alternative         `json:"alternatives"`
	Recommendation Recommendation        `json:"recommendation"`
	PastDecisions  []string              `json:"pastDecisions,omitempty"`
	Context        string                `json:"context"`
	Timestamp      time.Time             `json:"timestamp"`
}

// ConsultationResponse is the human's ruling on a consultation request.
type ConsultationResponse struct {
	Approved      bool      `json:"approved"`
	Feedback      string    `json:"feedback,omitempty"`
	Modifications []string  `json:"modifications,omitempty"`
	Confidence    int       `json:"confidence,omitempty"`
	Guidance      string    `json:"guidance,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ConsultationPattern is one learned observation row: how often decisions of
// a given type, consulted for a given trigger set, were approved or rejected.
// There are at most two rows per (decision type, trigger set) combination,
// one per outcome.
type ConsultationPattern struct {
	DecisionType DecisionType          `json:"decisionType" yaml:"decisionType"`
	Triggers     []ConsultationTrigger `json:"triggers" yaml:"triggers"`
	UserApproved bool                  `json:"userApproved" yaml:"userApproved"`
	Frequency    int                   `json:"frequency" yaml:"frequency"`
	LastSeen     time.Time             `json:"lastSeen" yaml:"lastSeen"`
}
