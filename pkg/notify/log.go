package notify

import (
	"context"

	"github.com/entrhq/warden/pkg/logging"
)

// LogNotifier writes notifications to the component log. It is the default
// sink when no transport is configured.
type LogNotifier struct {
	log *logging.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *logging.Logger) *LogNotifier {
	if log == nil {
		log, _ = logging.NewLogger("notify")
	}
	return &LogNotifier{log: log}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, p Payload) {
	n.log.Infof("notification %s: promotion=%s status=%s approver=%s url=%s",
		p.Type, p.PromotionID, p.Status, p.Approver, p.URL)
}
