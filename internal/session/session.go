// ABOUTME: AgentSession record and its status values
// ABOUTME: Snapshots are value copies safe to hand to callers

package session

import (
	"errors"
	"time"
)

var (
	// ErrConfiguration is returned when config, identity or active server is missing.
	ErrConfiguration = errors.New("agent configuration or server not found")

	// ErrAlreadyRunning is returned by Start when a session already exists.
	ErrAlreadyRunning = errors.New("agent is already running")

	// ErrNotRunning is returned by Stop when there is no session.
	ErrNotRunning = errors.New("agent is not running")

	// ErrConnection wraps a protocol-level connection failure.
	ErrConnection = errors.New("connection failed")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOnline     Status = "online"
	StatusOffline    Status = "offline"
	StatusKicked     Status = "kicked"
	StatusEnded      Status = "ended"
)

// Live reports whether the status counts toward the single-live-session invariant.
func (s Status) Live() bool {
	return s == StatusConnecting || s == StatusOnline
}

// Session is a snapshot of one agent session.
type Session struct {
	ID         string     `json:"id"`
	Identity   string     `json:"identity"`
	ServerID   int64      `json:"server_id"`
	ServerName string     `json:"server_name"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Status     Status     `json:"status"`
}

// State is the controller's externally visible status.
type State struct {
	Running bool          `json:"running"`
	Session *Session      `json:"session,omitempty"`
	Uptime  time.Duration `json:"uptime"`
}
