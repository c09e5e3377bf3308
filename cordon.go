package cordon

import (
	"net"

	"github.com/vireolabs/cordon/internal/core"
)

// Public aliases for core types. These are type aliases (not named types) so
// the underlying methods are part of the public API without the public
// package redeclaring them:
//
//   - [LongTask]: Start, StartWithDelay, Stop, Do, Started, Promoted.
//   - [Conn]: ID, Token, Persistent, SetPersistent plus the full net.Conn
//     surface of the accepted socket.
//   - [Token]: Held, Priority, Release, Reacquire.
//
// Audit: new methods added to the core types automatically become part of
// the public API through these aliases.
type (
	// LongTask is the per-request promotion state machine. Handlers reach
	// their own task through TaskFromContext.
	LongTask = core.LongTask

	// Conn is an accepted connection carrying a connection-pool token and
	// the persistent flag. Transports that bypass net/http receive it from
	// the wrapped listener's Accept.
	Conn = core.Conn

	// Token represents ownership of one slot of an admission pool.
	Token = core.Token

	// Snapshot is a point-in-time view of one pool's occupancy.
	Snapshot = core.Snapshot

	// Statistics bundles the snapshots of both admission pools.
	Statistics = core.Statistics
)

// Limiter is the concurrency-admission controller: a connection-admission
// pool gating inbound accepts and a long-task pool gating promoted requests.
//
// A CPU-bound request holds its connection slot for its full duration. An
// I/O-bound request promotes itself via the current LongTask once it knows a
// long wait is imminent; its connection slot is handed back to the accept
// path and the request is counted against the larger long-task pool instead.
//
// Wiring for a stock net/http server:
//
//	lim := cordon.New(cordon.WithMaxConnections(2))
//	srv := &http.Server{
//	    Handler:     lim.Middleware(mux),
//	    ConnContext: lim.ConnContext,
//	}
//	err := srv.Serve(lim.Wrap(ln))
//
// A Limiter is safe for concurrent use and runs no background goroutines.
// Closing the wrapped listener ends admission; Close additionally fails any
// acquires still suspended on the pools.
type Limiter struct {
	cfg      core.Config
	connPool *core.Pool

	// taskPool is nil when long-task support is disabled (MaxLongTasks 0).
	taskPool *core.Pool
}

// New creates a Limiter from the given options. Unset options keep their
// Default* values.
//
// Panics if any option receives an invalid value. These panics are
// intentional: option values are typically compile-time constants, so an
// invalid value indicates a programmer error rather than a runtime
// condition. The pattern mirrors [regexp.MustCompile] — fail fast during
// initialization instead of returning errors that would be universally
// fatal anyway.
func New(opts ...Option) *Limiter {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		panic("cordon: invalid configuration: " + err.Error())
	}

	l := &Limiter{
		cfg:      cfg,
		connPool: core.NewPool(cfg.MaxConnections),
	}
	if cfg.MaxLongTasks > 0 {
		l.taskPool = core.NewPool(cfg.MaxLongTasks)
	}
	return l
}

// Wrap gates ln on the connection-admission pool. Accept blocks while
// MaxConnections sockets are open and un-promoted; each accepted connection
// owns one slot, released on close or handed back by a promotion.
func (l *Limiter) Wrap(ln net.Listener) net.Listener {
	return core.NewListener(ln, l.connPool)
}

// LongTasksEnabled reports whether promotion is available
// (MaxLongTasks > 0).
func (l *Limiter) LongTasksEnabled() bool {
	return l.taskPool != nil
}

// TaskFor creates a LongTask for a request served on conn. conn may be nil
// when the transport exposes no connection token; the task then gates on the
// long-task pool alone. Returns nil when long-task support is disabled.
//
// Middleware calls this per request; custom transports that do not run
// net/http can call it directly and install the task with ContextWithTask.
func (l *Limiter) TaskFor(conn *Conn) *LongTask {
	if l.taskPool == nil {
		return nil
	}
	return core.NewLongTask(l.taskPool, conn, l.cfg.StartDelay, core.DemotePriority)
}

// Close closes both admission pools: suspended acquires — blocked accepts,
// promotions, demotion re-acquires — fail with ErrPoolClosed, as do later
// ones. Slots already held are unaffected; connections in flight release
// them normally on close. Safe to call multiple times.
//
// Close does not close wrapped listeners; shut the serving layer down first
// (e.g. http.Server.Shutdown), then Close the limiter.
func (l *Limiter) Close() {
	l.connPool.Close()
	if l.taskPool != nil {
		l.taskPool.Close()
	}
}

// Statistics returns a read-only snapshot of both pools. When long-task
// support is disabled the long-task snapshot is zero.
func (l *Limiter) Statistics() Statistics {
	s := Statistics{ConnectionPool: l.connPool.Snapshot()}
	if l.taskPool != nil {
		s.LongTaskPool = l.taskPool.Snapshot()
	}
	return s
}
