package cordon

import (
	"time"

	"github.com/vireolabs/cordon/internal/core"
)

// Default configuration values for New. These constants are exported so
// callers can reference the defaults when building custom configurations
// relative to them (e.g., 2 * cordon.DefaultMaxLongTasks).
const (
	// DefaultMaxConnections is the capacity of the connection-admission
	// pool. One slot serializes all CPU-bound requests; size this to the
	// number of execution slots the process should saturate.
	DefaultMaxConnections = 1

	// DefaultMaxLongTasks is the capacity of the long-task pool. Promoted
	// requests spend their time blocked on external resources, so this pool
	// is sized larger than the connection pool.
	DefaultMaxLongTasks = 10

	// DefaultStartDelay is the delay before a promotion takes effect.
	// Requests that complete within the delay never pay for a long-task
	// pool round-trip.
	DefaultStartDelay = 100 * time.Millisecond
)

// Priority constants for the acquire paths competing for connection slots.
// The gap between DemotePriority and AcceptPriority is what guarantees a
// terminating long task forward progress under a sustained accept stream;
// any positive gap suffices.
const (
	// AcceptPriority is the priority of fresh accepts.
	AcceptPriority = core.AcceptPriority

	// DemotePriority is the priority at which a stopping long task
	// re-acquires its connection slot.
	DemotePriority = core.DemotePriority
)
