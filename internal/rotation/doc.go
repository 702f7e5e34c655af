// Package rotation drives the agent through a pool of identities.
//
// The Orchestrator watches the heartbeat monitor on a fixed tick. When the
// session is lost it retires the current identity, waits a randomized delay,
// brings a replacement identity online through the session controller and
// retires it again after a randomized active time. All state is guarded by a
// single mutex and every scheduled callback carries the epoch it was armed
// in, so Disable and Close invalidate in-flight callbacks atomically. Store
// writes and audit records are queued under the mutex and flushed after it is
// released.
package rotation
