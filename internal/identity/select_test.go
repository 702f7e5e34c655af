// ABOUTME: Tests for cooldown-aware identity selection
// ABOUTME: Covers uniform choice, cooldown gating, LRU fallback and empty pools

package identity

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func TestSelect_EmptyHistoryIsUniform(t *testing.T) {
	pool := Pool{"A", "B", "C"}
	rng := testRand(1)
	counts := map[string]int{}

	const draws = 3000
	for range draws {
		id, err := Select(pool, History{}, t0, Cooldown, rng)
		require.NoError(t, err)
		counts[id]++
	}

	require.Len(t, counts, 3)
	for _, id := range pool {
		// Expect ~1000 each; allow a wide margin for a fixed seed.
		assert.InDelta(t, draws/3, counts[id], 150, "identity %s", id)
	}
}

func TestSelect_CoolingIdentityIsSkipped(t *testing.T) {
	pool := Pool{"A", "B"}
	history := History{"A": t0}
	now := t0.Add(60 * time.Second)

	for seed := range uint64(50) {
		id, err := Select(pool, history, now, 300*time.Second, testRand(seed))
		require.NoError(t, err)
		assert.Equal(t, "B", id)
	}
}

func TestSelect_CooldownBoundaryIsInclusive(t *testing.T) {
	pool := Pool{"A"}
	history := History{"A": t0}

	assert.Equal(t, []string{"A"}, Eligible(pool, history, t0.Add(Cooldown), Cooldown))
	assert.Empty(t, Eligible(pool, history, t0.Add(Cooldown-time.Millisecond), Cooldown))
}

func TestSelect_FallsBackToLeastRecentlyUsed(t *testing.T) {
	pool := Pool{"A", "B", "C"}
	history := History{
		"A": t0.Add(2 * time.Minute),
		"B": t0,
		"C": t0.Add(time.Minute),
	}
	now := t0.Add(3 * time.Minute)

	id, err := Select(pool, history, now, Cooldown, testRand(7))
	require.NoError(t, err)
	assert.Equal(t, "B", id)
}

func TestSelect_EmptyPool(t *testing.T) {
	_, err := Select(nil, History{}, t0, Cooldown, testRand(1))
	assert.ErrorIs(t, err, ErrNoIdentityAvailable)
}

func TestSelect_ChoiceIsAlwaysEligibleWhenAnyAre(t *testing.T) {
	rng := testRand(42)
	names := []string{"a", "b", "c", "d", "e", "f", "g"}

	for trial := range 500 {
		n := 1 + rng.IntN(len(names))
		pool := Pool(names[:n])
		history := History{}
		for _, id := range pool {
			switch rng.IntN(3) {
			case 0: // never used
			case 1:
				history[id] = t0.Add(-time.Duration(rng.IntN(600)) * time.Second)
			case 2:
				history[id] = t0.Add(-time.Duration(300+rng.IntN(600)) * time.Second)
			}
		}

		id, err := Select(pool, history, t0, Cooldown, rng)
		require.NoError(t, err)
		require.True(t, pool.Contains(id))

		eligible := Eligible(pool, history, t0, Cooldown)
		if len(eligible) > 0 {
			assert.Contains(t, eligible, id, "trial %d", trial)
			continue
		}
		for _, other := range pool {
			assert.False(t, history[other].Before(history[id]), "trial %d: %s older than chosen %s", trial, other, id)
		}
	}
}

func TestNewPool(t *testing.T) {
	pool, err := NewPool([]string{" alice ", "bob"})
	require.NoError(t, err)
	assert.Equal(t, Pool{"alice", "bob"}, pool)

	_, err = NewPool([]string{"alice", "alice"})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	_, err = NewPool([]string{"alice", "  "})
	assert.ErrorIs(t, err, ErrEmptyIdentity)
}
