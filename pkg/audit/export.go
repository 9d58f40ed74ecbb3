package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/warden/pkg/types"
)

// Export formats supported by ExportAuditLog.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// ExportAuditLog renders the full audit trail in the requested format. An
// unsupported format fails with UnsupportedFormatError and produces no
// output at all.
func (m *Manager) ExportAuditLog(format string) (string, error) {
	entries := m.GetAuditLog(Filter{})

	switch format {
	case FormatJSON:
		return exportJSON(entries)
	case FormatCSV:
		return exportCSV(entries)
	case FormatMarkdown:
		return exportMarkdown(entries), nil
	default:
		return "", &types.UnsupportedFormatError{Format: format}
	}
}

func exportJSON(entries []types.PromotionAuditEntry) (string, error) {
	if entries == nil {
		entries = []types.PromotionAuditEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode audit log: %w", err)
	}
	return string(data), nil
}

func exportCSV(entries []types.PromotionAuditEntry) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write([]string{"Timestamp", "Promotion ID", "Action", "User", "Reason"}); err != nil {
		return "", fmt.Errorf("encode audit log: %w", err)
	}
	for _, e := range entries {
		record := []string{
			e.Timestamp.Format(time.RFC3339),
			e.PromotionID,
			string(e.Action),
			e.User,
			e.Reason,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("encode audit log: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("encode audit log: %w", err)
	}
	return sb.String(), nil
}

func exportMarkdown(entries []types.PromotionAuditEntry) string {
	var sb strings.Builder
	sb.WriteString("# Promotion Audit Log\n\n")
	sb.WriteString("| Timestamp | Promotion | Action | User | Reason |\n")
	sb.WriteString("|-----------|-----------|--------|------|--------|\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			e.Timestamp.Format(time.RFC3339), e.PromotionID, e.Action, e.User, e.Reason)
	}
	return sb.String()
}
