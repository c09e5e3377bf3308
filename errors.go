package cordon

import "github.com/vireolabs/cordon/internal/core"

// Sentinel errors, for inspection with errors.Is. They are declared as
// constants of a string-backed error type rather than errors.New vars, so
// they cannot be reassigned.
const (
	// ErrTokenHeld is returned by Token.Reacquire when the token still owns
	// a slot. Reacquire is only valid on a released token.
	ErrTokenHeld = core.ErrTokenHeld

	// ErrPoolClosed is returned by operations that need a slot after Close:
	// a blocked or subsequent Accept, a promotion, or a demotion re-acquire.
	// Slots already held are unaffected and release normally.
	ErrPoolClosed = core.ErrPoolClosed

	// ErrListenerClosed is returned by Accept on a listener whose Close has
	// been called. Accept wraps it together with net.ErrClosed, so serve
	// loops that test for the stdlib sentinel exit cleanly.
	ErrListenerClosed = core.ErrListenerClosed
)
