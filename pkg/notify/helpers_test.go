package notify

import (
	"testing"

	"github.com/entrhq/warden/pkg/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	l, _ := logging.NewLogger("notify-test")
	return l
}
