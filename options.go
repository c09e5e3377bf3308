package cordon

import (
	"fmt"
	"time"

	"github.com/vireolabs/cordon/internal/core"
)

// requireNonNegative panics if v < 0 with a descriptive message. Do not use
// for values where zero is invalid (e.g., maximum connections, where at
// least one slot is required).
func requireNonNegative[T int | time.Duration](name string, v T) {
	if v < 0 {
		panic(fmt.Sprintf("cordon: %s must not be negative, got %v", name, v))
	}
}

// defaultConfig returns a core.Config populated with all default values.
func defaultConfig() core.Config {
	return core.Config{
		MaxConnections: DefaultMaxConnections,
		MaxLongTasks:   DefaultMaxLongTasks,
		StartDelay:     DefaultStartDelay,
	}
}

// Option configures a Limiter during construction via New. Each With*
// function returns an Option that sets a specific field.
//
// The With* functions panic on invalid input (see each function). These
// panics are intentional: option values are typically compile-time constants
// or package-level variables, so an invalid value indicates a programmer
// error rather than a runtime condition.
type Option func(*core.Config)

// WithMaxConnections sets the capacity of the connection-admission pool.
// Accepts block while this many connections are open and un-promoted.
//
// Default: 1.
//
// Panics if n < 1.
func WithMaxConnections(n int) Option {
	if n < 1 {
		panic(fmt.Sprintf("cordon: maximum connections must be at least 1, got %d", n))
	}
	return func(c *core.Config) {
		c.MaxConnections = n
	}
}

// WithMaxLongTasks sets the capacity of the long-task pool. A value of 0
// disables long-task support entirely: Middleware becomes a pass-through and
// TaskFromContext returns nil for handlers.
//
// Default: 10.
//
// Panics if n < 0.
func WithMaxLongTasks(n int) Option {
	requireNonNegative("maximum long tasks", n)
	return func(c *core.Config) {
		c.MaxLongTasks = n
	}
}

// WithStartDelay sets the default delay before a promotion takes effect.
// Requests that finish within the delay never touch the long-task pool; the
// delay amortises promotion cost over genuinely long operations. A value of
// 0 makes every Start promote immediately.
//
// Default: 100ms.
//
// Panics if d < 0.
func WithStartDelay(d time.Duration) Option {
	requireNonNegative("start delay", d)
	return func(c *core.Config) {
		c.StartDelay = d
	}
}
