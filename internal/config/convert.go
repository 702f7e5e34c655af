// ABOUTME: Maps file configuration onto store, session and rotation types
// ABOUTME: The file seeds the store; the store is the runtime source of truth

package config

import (
	"github.com/2389/standin/internal/rotation"
	"github.com/2389/standin/internal/session"
	"github.com/2389/standin/internal/store"
)

// SeedPatch returns the stored agent config described by the file. It is
// written only when the store has no config yet.
func (c *Config) SeedPatch() store.ConfigPatch {
	a := c.Agent
	r := c.Rotation
	return store.ConfigPatch{
		Username:               store.Ptr(a.Username),
		Password:               store.Ptr(a.Password),
		AuthType:               store.Ptr(a.AuthType),
		AutoReconnect:          a.AutoReconnect,
		AntiIdle:               a.AntiIdle.Enabled,
		ChatEnabled:            store.Ptr(a.ChatMessages.Enabled),
		ChatRepeat:             a.ChatMessages.Repeat,
		ChatDelay:              store.Ptr(a.ChatMessages.Delay),
		ChatLines:              store.Ptr(a.ChatMessages.Lines),
		AutoAuth:               store.Ptr(a.AutoAuth.Enabled),
		AutoAuthPassword:       store.Ptr(a.AutoAuth.Password),
		RotationEnabled:        store.Ptr(r.Enabled),
		IdentityPool:           store.Ptr(r.Identities),
		OfflineTimeout:         store.Ptr(r.OfflineTimeout),
		RotationDelay:          store.Ptr(r.Delay),
		RotationDelayVariation: store.Ptr(r.DelayVariation),
		ActiveTime:             store.Ptr(r.ActiveTime),
		ActiveTimeVariation:    store.Ptr(r.ActiveTimeVariation),
	}
}

// SessionSettings returns the controller timings.
func (a AgentConfig) SessionSettings() session.Settings {
	return session.Settings{
		ReconnectDelay:       a.ReconnectDelay,
		ReconnectMaxAttempts: a.ReconnectMaxAttempts,
		ConnectTimeout:       a.ConnectTimeout,
		HeartbeatInterval:    a.HeartbeatInterval,
		SettleDelay:          a.SettleDelay,
		AntiIdleMin:          a.AntiIdle.MinInterval,
		AntiIdleMax:          a.AntiIdle.MaxInterval,
	}
}

// SettingsPatch returns the rotation timings as an orchestrator update.
func (r RotationConfig) SettingsPatch() rotation.SettingsPatch {
	return rotation.SettingsPatch{
		OfflineTimeout:      store.Ptr(r.OfflineTimeout),
		Delay:               store.Ptr(r.Delay),
		DelayVariation:      store.Ptr(r.DelayVariation),
		ActiveTime:          store.Ptr(r.ActiveTime),
		ActiveTimeVariation: store.Ptr(r.ActiveTimeVariation),
	}
}

// Server returns the registry record for a seeded server.
func (s ServerEntry) Server() *store.Server {
	return &store.Server{
		Name:     s.Name,
		Host:     s.Host,
		Port:     s.Port,
		Version:  s.Version,
		IsActive: s.Active,
	}
}
