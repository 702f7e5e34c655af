// ABOUTME: Tests for rotation settings parsing, validation and sampling
// ABOUTME: Sampling must stay inside [base-variation, base+variation] and never go negative

package rotation

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample_Bounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for range 1000 {
		d := sample(rng, 12500*time.Millisecond, 2500*time.Millisecond)
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.LessOrEqual(t, d, 15*time.Second)
	}
}

func TestSample_ClampsAtZero(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for range 200 {
		assert.GreaterOrEqual(t, sample(rng, time.Second, 5*time.Second), time.Duration(0))
	}
	assert.Equal(t, time.Duration(0), sample(rng, -time.Second, 0))
	assert.Equal(t, 3*time.Second, sample(rng, 3*time.Second, 0))
}

func TestParseSettingsPatch(t *testing.T) {
	p, err := ParseSettingsPatch(map[string]string{"offline_timeout": "15s", "active_time": "1m"})
	require.NoError(t, err)
	require.NotNil(t, p.OfflineTimeout)
	assert.Equal(t, 15*time.Second, *p.OfflineTimeout)
	assert.Equal(t, time.Minute, *p.ActiveTime)
	assert.Nil(t, p.Delay)

	_, err = ParseSettingsPatch(map[string]string{"delay": "soon"})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = ParseSettingsPatch(map[string]string{"cooldown": "1m"})
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestSettings_MarshalJSON(t *testing.T) {
	raw, err := json.Marshal(DefaultSettings())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"offline_timeout": "10s",
		"delay": "50s",
		"delay_variation": "20s",
		"active_time": "12.5s",
		"active_time_variation": "2.5s"
	}`, string(raw))
}

func TestSettings_UnmarshalJSON(t *testing.T) {
	raw, err := json.Marshal(DefaultSettings())
	require.NoError(t, err)

	var got Settings
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, DefaultSettings(), got)

	err = json.Unmarshal([]byte(`{"delay":"later"}`), &got)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}
