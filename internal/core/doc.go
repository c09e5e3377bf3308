// Package core provides the internal implementation of the cordon admission
// controller.
//
// The primary types are:
//   - [Pool]: bounded slot pool with priority-then-FIFO waiter ordering,
//     direct hand-off wakeups, and idempotent-release tokens.
//   - [Token]: ownership of one slot; released tokens can re-enter the pool
//     at a chosen priority via Reacquire.
//   - [Listener] and [Conn]: the accept gate binding one connection-pool
//     token to the lifetime of each accepted socket.
//   - [LongTask]: the per-request promotion state machine that swaps a held
//     connection slot for a long-task slot and back.
//   - [Config]: validated, immutable configuration shared with the public
//     package.
package core
