package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LongTask is the per-request promotion state machine. A request that is
// about to block on external I/O promotes itself: it acquires a slot from the
// long-task pool and hands its connection slot back to the accept path, so
// the connection pool only ever counts requests that are actually using the
// CPU. Stopping a promoted task demotes it: the long-task slot is released
// and, unless the connection is terminal, the connection slot is re-acquired
// at elevated priority so the finishing request beats fresh accepts.
//
// Observable states:
//
//	idle     — neither a delayed promotion nor a long-task slot is held
//	pending  — a delayed promotion is scheduled
//	promoted — a long-task slot is held
//
// A task moves idle → (pending →) promoted → idle. Stop from any state is
// safe; concurrent Stops release the slot at most once.
//
// The zero value is not usable; construct with NewLongTask.
type LongTask struct {
	pool *Pool

	// conn is the request's connection, nil when the transport exposed no
	// connection token. With a nil conn the task reduces to a pure
	// long-task-pool gate: promotion and demotion skip the hand-off steps.
	conn *Conn

	startDelay     time.Duration
	demotePriority int

	// mu guards pending and token. Slot-pool state has its own mutex; this
	// one only orders the task's own transitions.
	mu      sync.Mutex
	pending *pendingStart
	token   *Token
}

// pendingStart is one scheduled promotion attempt. It exists from Start until
// the promotion either completes, is canceled by Stop, or fails.
type pendingStart struct {
	// cancel interrupts the delay sleep and any in-flight pool acquire.
	cancel context.CancelFunc

	// done is closed when the promotion goroutine has fully exited.
	// Stop waits on it so no promotion outlives the request.
	done chan struct{}

	// canceled is set by Stop under LongTask.mu. A promotion that acquires
	// a slot after Stop observes the flag and releases the slot at once:
	// promote briefly, then demote — never a leak.
	canceled bool
}

// NewLongTask creates a task bound to the given long-task pool. conn may be
// nil (the request's connection chain exposed no token); promotion then
// proceeds against the long-task pool only, with no hand-off.
//
// Panics if pool is nil, startDelay is negative, or demotePriority is not
// greater than AcceptPriority (a demotion that does not outrank accepts can
// be starved by fresh arrivals).
func NewLongTask(pool *Pool, conn *Conn, startDelay time.Duration, demotePriority int) *LongTask {
	if pool == nil {
		panic("cordon: NewLongTask pool must not be nil")
	}
	if startDelay < 0 {
		panic(fmt.Sprintf("cordon: NewLongTask start delay must not be negative, got %s", startDelay))
	}
	if demotePriority <= AcceptPriority {
		panic(fmt.Sprintf("cordon: NewLongTask demote priority must exceed accept priority %d, got %d",
			AcceptPriority, demotePriority))
	}
	return &LongTask{
		pool:           pool,
		conn:           conn,
		startDelay:     startDelay,
		demotePriority: demotePriority,
	}
}

// Start schedules a promotion after the task's configured start delay.
// Equivalent to StartWithDelay(ctx, startDelay).
func (t *LongTask) Start(ctx context.Context) error {
	return t.StartWithDelay(ctx, t.startDelay)
}

// StartWithDelay promotes the task. With delay > 0 the promotion is deferred:
// Start returns immediately, the task is pending, and a cooperative goroutine
// performs the acquire once the delay elapses — unless Stop cancels it first.
// The delay exists so short requests that merely might block never pay a pool
// round-trip. With delay == 0 the promotion is synchronous: StartWithDelay
// blocks until a long-task slot is held or ctx is done.
//
// Starting an already-started task is a no-op returning nil.
//
// On promotion the borrowed connection token (if any) is released, unblocking
// the accept gate, and the connection is marked non-persistent: keeping the
// connection reusable after its slot is gone would let a later request on the
// same connection run without any slot at all.
func (t *LongTask) StartWithDelay(ctx context.Context, delay time.Duration) error {
	if delay < 0 {
		return fmt.Errorf("start delay must not be negative, got %s", delay)
	}

	t.mu.Lock()
	if t.pending != nil || t.token != nil {
		t.mu.Unlock()
		return nil
	}
	pctx, cancel := context.WithCancel(ctx)
	p := &pendingStart{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.pending = p
	t.mu.Unlock()

	if delay > 0 {
		go func() { _ = t.promote(pctx, p, delay) }()
		return nil
	}
	return t.promote(pctx, p, 0)
}

// Do starts the task, runs fn, and stops the task when fn returns — the
// scoped form of Start. The stop is non-forced: if the task was promoted, the
// connection slot is re-acquired before Do returns, so the caller resumes
// with the same admission footprint it started with. The stop runs even when
// fn panics; the panic propagates unchanged.
func (t *LongTask) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := t.Start(ctx); err != nil {
		return err
	}
	defer func() {
		// Demotion must complete even when ctx expired together with fn.
		_ = t.Stop(context.WithoutCancel(ctx), false)
	}()
	return fn(ctx)
}

// Stop ends the task and returns it to idle.
//
//   - pending: the delayed promotion is canceled. Stop waits for the
//     promotion goroutine to exit, so after Stop returns no promotion can
//     materialise. No pool interaction occurs.
//   - promoted: the long-task slot is released. With force false and a
//     connection token present, the connection slot is re-acquired at the
//     demote priority, ahead of all fresh accepts. With force true the
//     re-acquire is skipped: the caller asserts the connection is terminal.
//   - idle: no-op.
//
// Stop is idempotent, and racing Stops release the slot at most once. The
// returned error is non-nil only when a non-forced demotion's re-acquire
// fails: ctx is done first, or the connection pool is closed.
func (t *LongTask) Stop(ctx context.Context, force bool) error {
	t.mu.Lock()
	if p := t.pending; p != nil {
		p.canceled = true
		t.pending = nil
		t.mu.Unlock()
		p.cancel()
		<-p.done
		return nil
	}

	tok := t.token
	if tok == nil {
		t.mu.Unlock()
		return nil
	}
	t.token = nil
	conn := t.conn
	t.mu.Unlock()

	tok.Release()
	if force || conn == nil {
		return nil
	}

	if err := conn.Token().Reacquire(ctx, t.demotePriority); err != nil {
		return fmt.Errorf("re-acquiring connection slot on demotion: %w", err)
	}
	Logger().Debug("long task demoted; connection slot re-held", "conn", conn.id)
	return nil
}

// Started reports whether the task is pending or promoted.
func (t *LongTask) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil || t.token != nil
}

// Promoted reports whether the task currently holds a long-task slot.
func (t *LongTask) Promoted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token != nil
}

// promote performs one promotion attempt: sleep for delay (cancellable), then
// acquire a long-task slot, then hand back the connection slot. Returns nil
// when the attempt was canceled by Stop — cancellation is a clean exit, not
// an error.
func (t *LongTask) promote(ctx context.Context, p *pendingStart, delay time.Duration) error {
	defer close(p.done)
	// Release the cancel context once the attempt settles; Stop may have
	// canceled it already, which is harmless.
	defer p.cancel()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return t.abortPending(p, ctx.Err())
		}
	}

	tok, err := t.pool.Acquire(ctx, PromotePriority)
	if err != nil {
		return t.abortPending(p, err)
	}

	t.mu.Lock()
	if p.canceled {
		t.mu.Unlock()
		// Stop won the race while the acquire was in flight. The slot was
		// obtained anyway; release it immediately.
		tok.Release()
		return nil
	}
	t.token = tok
	t.pending = nil
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		conn.Token().Release()
		conn.SetPersistent(false)
		Logger().Debug("long task promoted; connection slot handed back", "conn", conn.id)
	}
	return nil
}

// abortPending clears the pending marker after a failed or canceled
// promotion attempt. Cancellation by Stop is reported as nil.
func (t *LongTask) abortPending(p *pendingStart, err error) error {
	t.mu.Lock()
	canceled := p.canceled
	if t.pending == p {
		t.pending = nil
	}
	t.mu.Unlock()
	if canceled {
		return nil
	}
	return err
}

// taskContextKey keys the current long task in a request context.
type taskContextKey struct{}

// ContextWithTask returns a context with t installed as the current long
// task. Contexts form a stack, so nested installations scope naturally: the
// previous current task is visible again once the derived context goes out
// of use.
func ContextWithTask(ctx context.Context, t *LongTask) context.Context {
	return context.WithValue(ctx, taskContextKey{}, t)
}

// TaskFromContext returns the current long task, or nil when none is
// installed (in particular, when long-task support is disabled).
func TaskFromContext(ctx context.Context) *LongTask {
	t, _ := ctx.Value(taskContextKey{}).(*LongTask)
	return t
}
