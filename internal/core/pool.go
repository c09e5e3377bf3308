package core

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
)

// Pool is a bounded pool of interchangeable slots with priority-ordered
// admission. Acquire hands out one Token per slot; when no slot is free the
// caller waits in a priority queue (higher priority first, FIFO among equals)
// until a holder releases.
//
// Releases hand the slot directly to the highest-priority waiter instead of
// incrementing the free count, so a release that arrives during a waiter's
// suspension always reaches that waiter and no wakeup is lost.
//
// It is safe for concurrent use by multiple goroutines.
type Pool struct {
	// mu protects available, waiters, and nextSeq.
	mu sync.Mutex

	// capacity is the total number of slots. Immutable after NewPool.
	capacity int

	// available is the number of slots not currently held and not handed
	// to a waiter. Invariant: available > 0 implies waiters is empty.
	available int

	// waiters is a max-heap ordered by priority, then arrival sequence.
	waiters waiterQueue

	// nextSeq assigns arrival order to waiters for FIFO tie-breaking.
	nextSeq uint64

	// closed fails new and suspended acquires with ErrPoolClosed.
	// Outstanding tokens stay valid; their releases drain normally.
	closed bool
}

// waiter is one suspended Acquire call.
type waiter struct {
	priority int
	seq      uint64

	// ready is closed when a slot is handed to this waiter.
	ready chan struct{}

	// granted records that a slot was handed over. Guarded by Pool.mu.
	// A canceled waiter that was granted anyway must pass the slot on.
	granted bool

	// index is the heap position, maintained by waiterQueue.
	index int
}

// waiterQueue implements heap.Interface. Higher priority sorts first;
// equal priorities are served in arrival order.
type waiterQueue []*waiter

func (q waiterQueue) Len() int { return len(q) }

func (q waiterQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waiterQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waiterQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waiterQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}

// NewPool creates a Pool with the given number of slots.
// Panics if capacity < 1.
func NewPool(capacity int) *Pool {
	if capacity < 1 {
		panic(fmt.Sprintf("cordon: NewPool capacity must be at least 1, got %d", capacity))
	}
	return &Pool{
		capacity:  capacity,
		available: capacity,
	}
}

// Capacity returns the total number of slots.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Acquire takes one slot from the pool, waiting if none is free. Waiters are
// served strictly by priority, FIFO among equals. Returns a held Token, a
// wrapped context error if ctx is done before a slot is obtained, or
// ErrPoolClosed if the pool is or becomes closed.
func (p *Pool) Acquire(ctx context.Context, priority int) (*Token, error) {
	if err := p.acquireSlot(ctx, priority); err != nil {
		return nil, err
	}
	return newHeldToken(p, priority), nil
}

// TryAcquire takes a slot without waiting. Returns nil if no slot is free or
// the pool is closed.
//
// Unlike Acquire it takes no priority: priority orders waiting, and
// TryAcquire never waits.
func (p *Pool) TryAcquire() *Token {
	p.mu.Lock()
	if p.closed || p.available == 0 {
		p.mu.Unlock()
		return nil
	}
	p.available--
	p.mu.Unlock()
	return newHeldToken(p, 0)
}

// Snapshot returns a point-in-time view of pool occupancy. It has no effect
// on pool state.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Capacity:  p.capacity,
		Available: p.available,
		Waiting:   p.waiters.Len(),
	}
}

// acquireSlot blocks until one slot is owned by the caller or ctx is done.
// Shared by Acquire and Token.Reacquire.
func (p *Pool) acquireSlot(ctx context.Context, priority int) error {
	// Check ctx before touching pool state; a canceled caller must not
	// consume a slot another waiter could use.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context done while waiting for slot: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.available > 0 {
		p.available--
		p.mu.Unlock()
		return nil
	}

	w := &waiter{
		priority: priority,
		seq:      p.nextSeq,
		ready:    make(chan struct{}),
	}
	p.nextSeq++
	heap.Push(&p.waiters, w)
	p.mu.Unlock()

	select {
	case <-w.ready:
		p.mu.Lock()
		granted := w.granted
		p.mu.Unlock()
		if !granted {
			// Woken by Close, not by a hand-off.
			return ErrPoolClosed
		}
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		if w.granted {
			// The hand-off won the race against cancellation: the slot is
			// ours. Pass it on so it is not leaked.
			p.releaseSlotLocked()
			p.mu.Unlock()
			return fmt.Errorf("context done while waiting for slot: %w", ctx.Err())
		}
		if w.index >= 0 {
			// Still queued; Close pops waiters, so the index can be gone.
			heap.Remove(&p.waiters, w.index)
		}
		p.mu.Unlock()
		return fmt.Errorf("context done while waiting for slot: %w", ctx.Err())
	}
}

// Close marks the pool as closed. Suspended acquires fail with ErrPoolClosed,
// as do subsequent Acquire and Reacquire calls. Outstanding tokens remain
// valid and their releases drain normally. Safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	failed := make([]*waiter, 0, p.waiters.Len())
	for p.waiters.Len() > 0 {
		failed = append(failed, heap.Pop(&p.waiters).(*waiter))
	}
	p.mu.Unlock()

	// Wake outside the lock; granted stays false, so each waiter reports
	// ErrPoolClosed instead of claiming a slot.
	for _, w := range failed {
		close(w.ready)
	}
}

// releaseSlot returns one slot to the pool, waking the highest-priority
// waiter if any.
func (p *Pool) releaseSlot() {
	p.mu.Lock()
	p.releaseSlotLocked()
	p.mu.Unlock()
}

// releaseSlotLocked hands the slot to the top waiter, or increments the free
// count when nobody is waiting. Callers must hold p.mu.
func (p *Pool) releaseSlotLocked() {
	if p.waiters.Len() > 0 {
		w := heap.Pop(&p.waiters).(*waiter)
		w.granted = true
		close(w.ready)
		return
	}
	if p.available == p.capacity {
		// More releases than acquires. Token.Release is idempotent, so this
		// can only be reached through a bookkeeping bug inside this package.
		panic(fmt.Sprintf("cordon: slot over-release (capacity=%d)", p.capacity))
	}
	p.available++
}
