package audit

import (
	"sort"

	"github.com/entrhq/warden/pkg/types"
)

// Report aggregates the audit trail for compliance review.
type Report struct {
	TotalEntries int                         `json:"totalEntries"`
	ByAction     map[types.AuditAction]int   `json:"byAction"`
	ByUser       map[string]int              `json:"byUser"`
	ByPromotion  map[string]int              `json:"byPromotion"`
	Timeline     []TimelineBucket            `json:"timeline"`
}

// TimelineBucket is one day's entry count.
type TimelineBucket struct {
	Day   string `json:"day"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// GenerateAuditReport aggregates counts by action, user, and promotion,
// plus a day-bucketed timeline in chronological order.
func (m *Manager) GenerateAuditReport() *Report {
	entries := m.GetAuditLog(Filter{})

	report := &Report{
		TotalEntries: len(entries),
		ByAction:     make(map[types.AuditAction]int),
		ByUser:       make(map[string]int),
		ByPromotion:  make(map[string]int),
	}

	days := make(map[string]int)
	for _, e := range entries {
		report.ByAction[e.Action]++
		report.ByUser[e.User]++
		report.ByPromotion[e.PromotionID]++
		days[e.Timestamp.Format("2006-01-02")]++
	}

	for day, count := range days {
		report.Timeline = append(report.Timeline, TimelineBucket{Day: day, Count: count})
	}
	sort.Slice(report.Timeline, func(i, j int) bool {
		return report.Timeline[i].Day < report.Timeline[j].Day
	})
	return report
}
