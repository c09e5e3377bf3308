package core

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Priority constants for the pool acquire paths. AcceptPriority and
// DemotePriority compete for connection slots; PromotePriority orders
// long-task slot waiters. Any positive gap between DemotePriority and
// AcceptPriority suffices; what matters is that a demoting long task
// re-enters the connection pool ahead of fresh accepts, so a long-running
// request terminating cannot be starved by an unbounded arrival stream.
const (
	// AcceptPriority is used by Listener.Accept for fresh connections.
	AcceptPriority = 0

	// PromotePriority is used when a long task acquires a long-task slot.
	// A promoting request has no urgency advantage over its peers.
	PromotePriority = 0

	// DemotePriority is used when a stopping long task re-acquires its
	// connection slot.
	DemotePriority = 1000
)

// Listener gates accepts on the connection-admission pool. A slot is acquired
// before the inner accept; the accepted connection owns the slot until it is
// closed or the slot is handed back by a promotion.
type Listener struct {
	inner net.Listener
	pool  *Pool

	// ctx is canceled by Close so an Accept suspended in the pool unblocks.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Compile-time interface satisfaction check.
var _ net.Listener = (*Listener)(nil)

// NewListener wraps inner so that Accept admits at most pool.Capacity()
// un-promoted connections at a time. Panics if inner or pool is nil.
func NewListener(inner net.Listener, pool *Pool) *Listener {
	if inner == nil {
		panic("cordon: NewListener inner listener must not be nil")
	}
	if pool == nil {
		panic("cordon: NewListener pool must not be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		inner:  inner,
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Accept blocks until both a connection slot is free and the inner listener
// yields a connection. The returned *Conn owns the slot and releases it on
// Close.
//
// If the inner accept fails, the slot is released before the error is
// returned: no connection materialised, and a slot held across the failure
// would starve the pool.
func (l *Listener) Accept() (net.Conn, error) {
	tok, err := l.pool.Acquire(l.ctx, AcceptPriority)
	if err != nil {
		if l.ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrListenerClosed, net.ErrClosed)
		}
		return nil, err
	}

	c, err := l.inner.Accept()
	if err != nil {
		tok.Release()
		return nil, err
	}

	conn := newConn(c, tok)
	Logger().Debug("connection admitted", "conn", conn.id, "remote", connRemote(c))
	return conn, nil
}

// Close stops the listener: the inner listener is closed and any Accept
// suspended on the connection pool unblocks with net.ErrClosed.
// Safe to call multiple times.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.closeErr = l.inner.Close()
	})
	return l.closeErr
}

// Addr returns the inner listener's address.
func (l *Listener) Addr() net.Addr {
	return l.inner.Addr()
}

// connRemote formats a remote address for logging, tolerating conns (such as
// in-memory pipes in tests) that report a nil address.
func connRemote(c net.Conn) string {
	if addr := c.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// Conn is an accepted connection that owns one connection-pool token. All
// transport operations delegate to the embedded net.Conn; Close additionally
// releases the token.
//
// The persistent flag records whether the serving layer may reuse the
// connection for subsequent requests. Promotion forces it to false: once the
// connection slot has been handed back, a further request on the same
// connection would run without any slot and bypass the connection limit.
type Conn struct {
	net.Conn

	// id correlates accept, promote, and demote log lines.
	id string

	token      *Token
	persistent atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

func newConn(c net.Conn, tok *Token) *Conn {
	conn := &Conn{
		Conn:  c,
		id:    uuid.NewString(),
		token: tok,
	}
	conn.persistent.Store(true)
	return conn
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string {
	return c.id
}

// Token returns the connection-pool token owned by this connection. A long
// task borrows it through this accessor to hand the slot back on promotion.
func (c *Conn) Token() *Token {
	return c.token
}

// Persistent reports whether the serving layer may reuse this connection for
// subsequent requests.
func (c *Conn) Persistent() bool {
	return c.persistent.Load()
}

// SetPersistent sets the reuse flag. Promotion calls SetPersistent(false).
func (c *Conn) SetPersistent(v bool) {
	c.persistent.Store(v)
}

// Close releases the connection token and closes the underlying connection.
// The token release is a no-op if a promotion already handed the slot back.
// Safe to call multiple times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.token.Release()
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

// connContextKey keys the accepted *Conn in a request context.
type connContextKey struct{}

// ContextWithConn returns a context carrying the accepted connection. Wired
// into http.Server.ConnContext so the request interceptor can discover the
// connection token.
func ContextWithConn(ctx context.Context, c *Conn) context.Context {
	return context.WithValue(ctx, connContextKey{}, c)
}

// ConnFromContext returns the accepted connection stored by ContextWithConn,
// or nil when the transport did not expose one. A nil connection is not an
// error: the long task then operates against the long-task pool alone.
func ConnFromContext(ctx context.Context) *Conn {
	c, _ := ctx.Value(connContextKey{}).(*Conn)
	return c
}
