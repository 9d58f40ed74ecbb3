package promotion

import (
	"fmt"
	"strings"

	"github.com/entrhq/warden/pkg/types"
)

// Describe renders the pull request description for a promotion. The output
// is deterministic: the same promotion always produces the same bytes, so a
// re-attempted deployment opens an identical pull request.
func Describe(promo *types.PromotionRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", promo.Title)
	if promo.Description != "" {
		sb.WriteString(promo.Description)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Changes\n\n")
	sb.WriteString("| File | Type | Lines | Summary |\n")
	sb.WriteString("|------|------|-------|---------|\n")
	for _, c := range promo.Changes {
		fmt.Fprintf(&sb, "| %s | %s | +%d/-%d | %s |\n",
			c.File, c.Type, c.LinesAdded, c.LinesRemoved, c.Summary)
	}
	sb.WriteString("\n")

	sb.WriteString("## Tests\n\n")
	tr := promo.TestResults
	fmt.Fprintf(&sb, "%d/%d tests passed in %s.", tr.PassedTests, tr.TotalTests, tr.Duration)
	if tr.Coverage > 0 {
		fmt.Fprintf(&sb, " Coverage: %.1f%%.", tr.Coverage)
	}
	sb.WriteString("\n")
	for _, f := range tr.Failures {
		fmt.Fprintf(&sb, "- FAIL %s: %s\n", f.Name, f.Message)
	}
	sb.WriteString("\n")

	sb.WriteString("## Risk\n\n")
	impact := promo.ImpactAssessment
	fmt.Fprintf(&sb, "**%s**", strings.ToUpper(string(impact.Risk)))
	if len(impact.AffectedComponents) > 0 {
		fmt.Fprintf(&sb, " - affects %s.", strings.Join(impact.AffectedComponents, ", "))
	}
	fmt.Fprintf(&sb, " Estimated downtime: %d min.\n\n", impact.EstimatedDowntimeMinutes)

	sb.WriteString("## Rollback\n\n")
	for i, step := range promo.RollbackPlan.Steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
	}
	fmt.Fprintf(&sb, "\nEstimated time: %d min. Backup required: %s. Automatable: %s.\n",
		promo.RollbackPlan.EstimatedTimeMinutes,
		yesNo(promo.RollbackPlan.DataBackupRequired),
		yesNo(promo.RollbackPlan.Automatable))

	return sb.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
