package core

import (
	"log/slog"
	"sync"
)

// Package-level logging state. cordon logs little (debug lines on admission
// transitions), so a mutex around the two
// pointers is plenty; nothing on a hot path takes this lock.
var (
	logMu sync.Mutex

	// custom is the logger installed via SetLogger; nil means none.
	custom *slog.Logger

	// derived caches the slog.Default()-based fallback so it is built at
	// most once between SetLogger calls.
	derived *slog.Logger
)

// Logger returns the logger cordon writes to: the one installed via
// SetLogger, or slog.Default() tagged with a component attribute. Safe for
// concurrent use.
func Logger() *slog.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	if custom != nil {
		return custom
	}
	if derived == nil {
		derived = slog.Default().With("component", "cordon")
	}
	return derived
}

// SetLogger installs l as the logger for all cordon components. Passing nil
// reverts to the slog.Default()-derived fallback; the fallback is re-derived
// on next use, so SetLogger(nil) after slog.SetDefault() picks up the new
// default. Safe for concurrent use.
func SetLogger(l *slog.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	custom = l
	derived = nil
}
