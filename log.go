package cordon

import (
	"log/slog"

	"github.com/vireolabs/cordon/internal/core"
)

// SetLogger routes cordon's log output (debug lines on admission
// transitions) to l. Pass a logger that already carries the attributes you
// want; cordon adds none of its own. Passing nil reverts to slog.Default()
// tagged with a component attribute, re-derived on next use.
//
// Safe to call concurrently with other cordon operations.
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
