package consultation

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/warden/pkg/store"
	"github.com/entrhq/warden/pkg/types"
)

// Record store categories used by the engine.
const (
	categoryConsultations = "consultations"
	categoryPatterns      = "consultation_patterns"
	categoryPreferences   = "consultation_preferences"
)

// approvalConfidenceThreshold is the response confidence above which an
// approval lowers the future consultation propensity for a decision type.
const approvalConfidenceThreshold = 80

// IncorporateFeedback folds the human's response into the learned state:
// one pattern observation for the request's trigger set, the per-type
// consultation preference, and the decision's context fields. This is the
// single point where human judgement alters future automatic behavior; no
// past decision is re-scored.
//
// The in-memory state is always updated; a persistence failure is returned
// as an ExternalFailureError after the update so the caller can decide
// whether to retry the write.
func (e *Engine) IncorporateFeedback(ctx context.Context, req *types.ConsultationRequest, resp *types.ConsultationResponse) error {
	when := resp.Timestamp
	if when.IsZero() {
		when = time.Now()
	}

	dt := req.Decision.Type

	e.mu.Lock()
	key := patternKey(dt, req.Triggers, resp.Approved)
	pattern, ok := e.patterns[key]
	if !ok {
		pattern = &types.ConsultationPattern{
			DecisionType: dt,
			Triggers:     canonicalTriggers(req.Triggers),
			UserApproved: resp.Approved,
		}
		e.patterns[key] = pattern
	}
	pattern.Frequency++
	pattern.LastSeen = when

	pref, ok := e.preferences[dt]
	if !ok {
		pref = &typePreference{}
		e.preferences[dt] = pref
	}
	if !resp.Approved {
		// A single rejection raises the propensity permanently.
		pref.EverRejected = true
		pref.ConsultByDefault = true
	} else if resp.Confidence > approvalConfidenceThreshold && !pref.EverRejected {
		pref.ConsultByDefault = false
	}

	patternCopy := *pattern
	prefCopy := *pref
	e.mu.Unlock()

	req.Decision.SetContext(types.ContextKeyApproved, resp.Approved)
	req.Decision.SetContext(types.ContextKeyUserFeedback, resp.Feedback)

	if err := e.persistFeedback(ctx, req, resp, key, &patternCopy, dt, &prefCopy, when); err != nil {
		return &types.ExternalFailureError{System: "record store", Err: err}
	}
	return nil
}

func (e *Engine) persistFeedback(ctx context.Context, req *types.ConsultationRequest, resp *types.ConsultationResponse, patternKey string, pattern *types.ConsultationPattern, dt types.DecisionType, pref *typePreference, when time.Time) error {
	patternYAML, err := yaml.Marshal(pattern)
	if err != nil {
		return fmt.Errorf("marshal pattern: %w", err)
	}
	if err := e.records.Store(ctx, store.Record{
		Category: categoryPatterns,
		Key:      patternKey,
		Payload:  string(patternYAML),
		StoredAt: when,
	}); err != nil {
		return fmt.Errorf("store pattern: %w", err)
	}

	prefYAML, err := yaml.Marshal(pref)
	if err != nil {
		return fmt.Errorf("marshal preference: %w", err)
	}
	if err := e.records.Store(ctx, store.Record{
		Category: categoryPreferences,
		Key:      string(dt),
		Payload:  string(prefYAML),
		StoredAt: when,
	}); err != nil {
		return fmt.Errorf("store preference: %w", err)
	}

	outcome := "rejected"
	if resp.Approved {
		outcome = "approved"
	}
	summary := fmt.Sprintf("%s decision %s: %s", dt, req.Decision.ID, outcome)
	if resp.Feedback != "" {
		summary += " - " + firstLine(resp.Feedback)
	}
	detail, err := yaml.Marshal(map[string]any{
		"decisionType": string(dt),
		"triggers":     req.Triggers,
		"approved":     resp.Approved,
		"feedback":     resp.Feedback,
		"timestamp":    when,
	})
	if err != nil {
		return fmt.Errorf("marshal consultation record: %w", err)
	}
	if err := e.records.Store(ctx, store.Record{
		Category: categoryConsultations,
		Key:      req.ID,
		Payload:  summary + "\n" + string(detail),
		Metadata: map[string]string{"decisionType": string(dt)},
		StoredAt: when,
	}); err != nil {
		return fmt.Errorf("store consultation record: %w", err)
	}
	return nil
}

// load restores patterns and preferences from the record store. Records
// that fail to parse are skipped: the store is free text and individually
// malformed rows must not poison startup.
func (e *Engine) load(ctx context.Context) error {
	patternRecs, err := e.records.Search(ctx, store.Query{Category: categoryPatterns})
	if err != nil {
		return &types.ExternalFailureError{System: "record store", Err: err}
	}
	for _, rec := range patternRecs {
		var p types.ConsultationPattern
		if err := yaml.Unmarshal([]byte(rec.Payload), &p); err != nil || p.DecisionType == "" {
			e.log.Warnf("skipping malformed pattern record %q", rec.Key)
			continue
		}
		e.patterns[patternKey(p.DecisionType, p.Triggers, p.UserApproved)] = &p
	}

	prefRecs, err := e.records.Search(ctx, store.Query{Category: categoryPreferences})
	if err != nil {
		return &types.ExternalFailureError{System: "record store", Err: err}
	}
	for _, rec := range prefRecs {
		var pref typePreference
		if err := yaml.Unmarshal([]byte(rec.Payload), &pref); err != nil {
			e.log.Warnf("skipping malformed preference record %q", rec.Key)
			continue
		}
		e.preferences[types.DecisionType(rec.Key)] = &pref
	}

	if len(e.patterns) > 0 || len(e.preferences) > 0 {
		e.log.Infof("restored %d pattern(s) and %d preference(s)", len(e.patterns), len(e.preferences))
	}
	return nil
}
