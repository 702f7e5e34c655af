// Package identity manages the bounded pool of identities an agent can
// connect under.
//
// Select is a pure function: given the pool, the last-used history, the
// current time and the reuse cooldown, it picks uniformly among identities
// whose cooldown has elapsed, falls back to the least recently used identity
// when none has, and returns ErrNoIdentityAvailable for an empty pool.
//
// RecentWindow records the last few retired identities for status reporting.
// It plays no part in selection.
package identity
