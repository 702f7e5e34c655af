// Package store persists agent configuration, the server registry, activity
// and chat logs, and runtime statistics.
//
// # Architecture
//
// Store is the interface consumed by the session controller, the rotation
// orchestrator and the HTTP API. Two implementations exist:
//
//   - SQLiteStore: modernc.org/sqlite with schema managed by golang-migrate
//   - MockStore: in-memory, for tests
//
// # Data Models
//
//   - Config: the single agent configuration row, including the rotation pool,
//     per-identity last-used history and the recently-used window
//   - Server: a remote endpoint the agent can connect to; at most one is active
//   - ActivityLog: audit trail of lifecycle and rotation events
//   - ChatLog: chat lines observed by the live session
//   - Stats: status and counters for the live session
//
// # Partial Updates
//
// UpdateConfig and UpdateStats take patches whose nil fields are left
// untouched. Config patches refresh UpdatedAt. Stats patches may carry
// counter deltas, applied atomically by the store.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC3339 text in UTC. Durations are stored as
// integer milliseconds.
//
// # Error Handling
//
//   - ErrNotFound: the requested config, server or stats row does not exist
package store
