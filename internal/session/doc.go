// Package session owns the single agent session: starting it under an
// identity, wiring protocol callbacks, running session-local behaviors, and
// tearing it down.
//
// # Invariant
//
// At most one session is connecting or online at any instant. The Controller
// holds at most one current session; a reconnect replaces it rather than
// running alongside it.
//
// # Protocol Callbacks
//
//   - spawn: session online, heartbeat recorded, behaviors started
//   - chat: de-duplicated, logged, counted, broadcast, heartbeat recorded
//   - error: logged and recorded, never fatal
//   - kicked/end: session offline; auto-reconnect when enabled and rotation
//     is not governing the session
//
// # Errors
//
//   - ErrConfiguration: no stored config, no identity, or no active server
//   - ErrAlreadyRunning: Start while a session exists
//   - ErrNotRunning: Stop without a session
//   - ErrConnection: the protocol client failed to connect
package session
