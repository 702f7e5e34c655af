// ABOUTME: Cooldown-aware identity selection
// ABOUTME: Uniform choice among eligible identities with least-recently-used fallback

package identity

import "time"

// Rand is the randomness Select needs. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// Eligible returns the identities in pool whose cooldown has elapsed at now,
// in pool order. Identities absent from history are always eligible.
func Eligible(pool Pool, history History, now time.Time, cooldown time.Duration) []string {
	var eligible []string
	for _, id := range pool {
		last, used := history[id]
		if !used || now.Sub(last) >= cooldown {
			eligible = append(eligible, id)
		}
	}
	return eligible
}

// Select picks the next identity to bring online.
func Select(pool Pool, history History, now time.Time, cooldown time.Duration, rng Rand) (string, error) {
	if len(pool) == 0 {
		return "", ErrNoIdentityAvailable
	}

	if eligible := Eligible(pool, history, now, cooldown); len(eligible) > 0 {
		return eligible[rng.IntN(len(eligible))], nil
	}

	// Every identity is cooling down and therefore has a history entry.
	lru := pool[0]
	for _, id := range pool[1:] {
		if history[id].Before(history[lru]) {
			lru = id
		}
	}
	return lru, nil
}
