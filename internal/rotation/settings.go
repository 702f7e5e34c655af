// ABOUTME: Rotation timing settings and partial updates
// ABOUTME: Snapshotted from the stored config at the start of every episode

package rotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/standin/internal/store"
)

// ErrInvalidSettings is returned when a settings update would produce
// unusable timings.
var ErrInvalidSettings = errors.New("invalid rotation settings")

// Settings are the timings of one rotation episode.
type Settings struct {
	OfflineTimeout      time.Duration
	Delay               time.Duration
	DelayVariation      time.Duration
	ActiveTime          time.Duration
	ActiveTimeVariation time.Duration
}

// DefaultSettings mirrors store.DefaultConfig.
func DefaultSettings() Settings {
	return SettingsFromConfig(store.DefaultConfig())
}

// SettingsFromConfig extracts rotation timings from a stored config.
func SettingsFromConfig(cfg store.Config) Settings {
	return Settings{
		OfflineTimeout:      cfg.OfflineTimeout,
		Delay:               cfg.RotationDelay,
		DelayVariation:      cfg.RotationDelayVariation,
		ActiveTime:          cfg.ActiveTime,
		ActiveTimeVariation: cfg.ActiveTimeVariation,
	}
}

// Validate checks that the timings can be scheduled.
func (s Settings) Validate() error {
	if s.OfflineTimeout <= 0 {
		return fmt.Errorf("%w: offline_timeout must be positive", ErrInvalidSettings)
	}
	for name, d := range map[string]time.Duration{
		"delay":                 s.Delay,
		"delay_variation":       s.DelayVariation,
		"active_time":           s.ActiveTime,
		"active_time_variation": s.ActiveTimeVariation,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidSettings, name)
		}
	}
	if s.ActiveTime == 0 {
		return fmt.Errorf("%w: active_time must be positive", ErrInvalidSettings)
	}
	return nil
}

type settingsJSON struct {
	OfflineTimeout      string `json:"offline_timeout"`
	Delay               string `json:"delay"`
	DelayVariation      string `json:"delay_variation"`
	ActiveTime          string `json:"active_time"`
	ActiveTimeVariation string `json:"active_time_variation"`
}

// MarshalJSON renders durations as Go duration strings ("12.5s").
func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(settingsJSON{
		OfflineTimeout:      s.OfflineTimeout.String(),
		Delay:               s.Delay.String(),
		DelayVariation:      s.DelayVariation.String(),
		ActiveTime:          s.ActiveTime.String(),
		ActiveTimeVariation: s.ActiveTimeVariation.String(),
	})
}

// UnmarshalJSON accepts the form MarshalJSON produces.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw settingsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"offline_timeout", raw.OfflineTimeout, &s.OfflineTimeout},
		{"delay", raw.Delay, &s.Delay},
		{"delay_variation", raw.DelayVariation, &s.DelayVariation},
		{"active_time", raw.ActiveTime, &s.ActiveTime},
		{"active_time_variation", raw.ActiveTimeVariation, &s.ActiveTimeVariation},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidSettings, f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// SettingsPatch is a partial settings update. Nil fields are unchanged.
type SettingsPatch struct {
	OfflineTimeout      *time.Duration
	Delay               *time.Duration
	DelayVariation      *time.Duration
	ActiveTime          *time.Duration
	ActiveTimeVariation *time.Duration
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.OfflineTimeout == nil && p.Delay == nil && p.DelayVariation == nil &&
		p.ActiveTime == nil && p.ActiveTimeVariation == nil
}

// Apply returns s with the patch applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.OfflineTimeout != nil {
		s.OfflineTimeout = *p.OfflineTimeout
	}
	if p.Delay != nil {
		s.Delay = *p.Delay
	}
	if p.DelayVariation != nil {
		s.DelayVariation = *p.DelayVariation
	}
	if p.ActiveTime != nil {
		s.ActiveTime = *p.ActiveTime
	}
	if p.ActiveTimeVariation != nil {
		s.ActiveTimeVariation = *p.ActiveTimeVariation
	}
	return s
}

// ParseSettingsPatch builds a patch from duration strings keyed by their JSON
// names. Unknown keys are rejected.
func ParseSettingsPatch(raw map[string]string) (SettingsPatch, error) {
	var p SettingsPatch
	for key, value := range raw {
		d, err := time.ParseDuration(value)
		if err != nil {
			return SettingsPatch{}, fmt.Errorf("%w: %s: %w", ErrInvalidSettings, key, err)
		}
		switch key {
		case "offline_timeout":
			p.OfflineTimeout = &d
		case "delay":
			p.Delay = &d
		case "delay_variation":
			p.DelayVariation = &d
		case "active_time":
			p.ActiveTime = &d
		case "active_time_variation":
			p.ActiveTimeVariation = &d
		default:
			return SettingsPatch{}, fmt.Errorf("%w: unknown field %q", ErrInvalidSettings, key)
		}
	}
	return p, nil
}

func (p SettingsPatch) configPatch() store.ConfigPatch {
	return store.ConfigPatch{
		OfflineTimeout:         p.OfflineTimeout,
		RotationDelay:          p.Delay,
		RotationDelayVariation: p.DelayVariation,
		ActiveTime:             p.ActiveTime,
		ActiveTimeVariation:    p.ActiveTimeVariation,
	}
}

// sample draws uniformly from [base-variation, base+variation], clamped at zero.
func sample(rng Rand, base, variation time.Duration) time.Duration {
	if variation <= 0 {
		return max(base, 0)
	}
	d := base - variation + time.Duration(rng.Int64N(int64(2*variation)+1))
	return max(d, 0)
}
