// ABOUTME: Identity pool and last-used history types
// ABOUTME: Pools are ordered, trimmed and reject duplicates

package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Cooldown is the minimum time before an identity may be reselected.
const Cooldown = 5 * time.Minute

var (
	// ErrNoIdentityAvailable is returned when the pool is empty at selection time.
	ErrNoIdentityAvailable = errors.New("no identity available")

	// ErrDuplicateIdentity is returned when a pool lists the same identity twice.
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// ErrEmptyIdentity is returned when a pool contains a blank identity.
	ErrEmptyIdentity = errors.New("empty identity")
)

// Pool is an ordered set of candidate identities.
type Pool []string

// NewPool validates identities and returns them as a Pool.
func NewPool(identities []string) (Pool, error) {
	seen := make(map[string]struct{}, len(identities))
	pool := make(Pool, 0, len(identities))
	for i, raw := range identities {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, fmt.Errorf("identity %d: %w", i, ErrEmptyIdentity)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("identity %q: %w", id, ErrDuplicateIdentity)
		}
		seen[id] = struct{}{}
		pool = append(pool, id)
	}
	return pool, nil
}

// Contains reports whether id is in the pool.
func (p Pool) Contains(id string) bool {
	for _, candidate := range p {
		if candidate == id {
			return true
		}
	}
	return false
}

// Clone returns a copy of the pool.
func (p Pool) Clone() Pool {
	if p == nil {
		return nil
	}
	out := make(Pool, len(p))
	copy(out, p)
	return out
}

// History maps an identity to the last time it was brought online.
// An absent entry means the identity has never been used.
type History map[string]time.Time

// Clone returns a copy of the history.
func (h History) Clone() History {
	out := make(History, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
