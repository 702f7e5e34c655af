// ABOUTME: Typed event payloads for session lifecycle and rotation episodes
// ABOUTME: Each payload reports its kind and a human description for the activity log

package events

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies an event type.
type Kind string

// Session kinds
const (
	KindSessionStart        Kind = "session_start"
	KindSessionConnected    Kind = "session_connected"
	KindSessionStop         Kind = "session_stop"
	KindSessionDisconnected Kind = "session_disconnected"
	KindSessionKicked       Kind = "session_kicked"
	KindSessionError        Kind = "session_error"
	KindSessionReconnect    Kind = "session_reconnect"
	KindSessionStatus       Kind = "session_status"
	KindChatMessage         Kind = "chat_message"
)

// Rotation kinds
const (
	KindRotationEnabled     Kind = "rotation_enabled"
	KindRotationDisabled    Kind = "rotation_disabled"
	KindRotationStarted     Kind = "rotation_started"
	KindRotationCompleted   Kind = "rotation_completed"
	KindRotationRetired     Kind = "rotation_retired"
	KindNoIdentityAvailable Kind = "no_identity_available"
	KindConnectionFailed    Kind = "connection_failed"
	KindRotationSuspended   Kind = "rotation_suspended"
)

// Payload is the typed body of an event.
type Payload interface {
	Kind() Kind
	Describe() string
}

// serverScoped payloads attach a server to their activity log entry.
type serverScoped interface {
	serverRef() *int64
}

// SessionTarget names the identity and server a session event concerns.
type SessionTarget struct {
	Identity   string `json:"identity"`
	ServerID   int64  `json:"server_id,omitempty"`
	ServerName string `json:"server_name,omitempty"`
}

func (t SessionTarget) serverRef() *int64 {
	if t.ServerID == 0 {
		return nil
	}
	id := t.ServerID
	return &id
}

// SessionStarting is emitted when a session begins connecting.
type SessionStarting struct {
	SessionTarget
	SessionID string `json:"session_id"`
}

func (SessionStarting) Kind() Kind { return KindSessionStart }
func (p SessionStarting) Describe() string {
	return fmt.Sprintf("Agent %s connecting to %s", p.Identity, p.ServerName)
}

// SessionConnected is emitted when the remote service confirms the session.
type SessionConnected struct {
	SessionTarget
	SessionID string `json:"session_id"`
}

func (SessionConnected) Kind() Kind { return KindSessionConnected }
func (p SessionConnected) Describe() string {
	return fmt.Sprintf("Agent %s connected to %s", p.Identity, p.ServerName)
}

// SessionStopped is emitted when a session is deliberately ended.
type SessionStopped struct {
	SessionTarget
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

func (SessionStopped) Kind() Kind { return KindSessionStop }
func (p SessionStopped) Describe() string {
	return fmt.Sprintf("Agent %s stopped: %s", p.Identity, p.Reason)
}

// SessionDisconnected is emitted when the remote side ends the session.
type SessionDisconnected struct {
	SessionTarget
	SessionID string `json:"session_id"`
}

func (SessionDisconnected) Kind() Kind { return KindSessionDisconnected }
func (p SessionDisconnected) Describe() string {
	return fmt.Sprintf("Agent %s disconnected from %s", p.Identity, p.ServerName)
}

// SessionKicked is emitted when the remote service ejects the agent.
type SessionKicked struct {
	SessionTarget
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

func (SessionKicked) Kind() Kind { return KindSessionKicked }
func (p SessionKicked) Describe() string {
	return fmt.Sprintf("Agent %s was kicked: %s", p.Identity, p.Reason)
}

// SessionError is emitted for non-fatal protocol errors.
type SessionError struct {
	SessionTarget
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

func (SessionError) Kind() Kind { return KindSessionError }
func (p SessionError) Describe() string {
	return fmt.Sprintf("Agent %s error: %s", p.Identity, p.Error)
}

// SessionReconnecting is emitted when auto-reconnect schedules an attempt.
type SessionReconnecting struct {
	SessionTarget
	Attempt int   `json:"attempt"`
	DelayMS int64 `json:"delay_ms"`
}

func (SessionReconnecting) Kind() Kind { return KindSessionReconnect }
func (p SessionReconnecting) Describe() string {
	return fmt.Sprintf("Reconnecting %s (attempt %d) in %s", p.Identity, p.Attempt, time.Duration(p.DelayMS)*time.Millisecond)
}

// StatusChanged reports the live session status. Broadcast only.
type StatusChanged struct {
	SessionTarget
	Status string `json:"status"`
}

func (StatusChanged) Kind() Kind { return KindSessionStatus }
func (p StatusChanged) Describe() string {
	return fmt.Sprintf("Agent %s is %s", p.Identity, p.Status)
}

// ChatMessage is a chat line observed by the live session. Broadcast only.
type ChatMessage struct {
	ServerID  int64     `json:"server_id,omitempty"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (ChatMessage) Kind() Kind { return KindChatMessage }
func (p ChatMessage) Describe() string {
	return fmt.Sprintf("<%s> %s", p.Username, p.Message)
}

// RotationEnabled is emitted when rotation starts governing the session.
type RotationEnabled struct {
	Pool []string `json:"pool"`
	// Resumed marks a rotation restored from the store at startup.
	Resumed bool `json:"resumed,omitempty"`
}

func (RotationEnabled) Kind() Kind { return KindRotationEnabled }
func (p RotationEnabled) Describe() string {
	verb := "enabled"
	if p.Resumed {
		verb = "resumed"
	}
	return fmt.Sprintf("Rotation %s with %d identities: %s", verb, len(p.Pool), strings.Join(p.Pool, ", "))
}

// RotationDisabled is emitted when rotation stops governing the session.
type RotationDisabled struct {
	Reason string `json:"reason,omitempty"`
}

func (RotationDisabled) Kind() Kind { return KindRotationDisabled }
func (p RotationDisabled) Describe() string {
	if p.Reason == "" {
		return "Rotation disabled"
	}
	return "Rotation disabled: " + p.Reason
}

// RotationStarted opens a rotation episode.
type RotationStarted struct {
	PreviousIdentity string `json:"previous_identity,omitempty"`
	DelayMS          int64  `json:"delay_ms"`
}

func (RotationStarted) Kind() Kind { return KindRotationStarted }
func (p RotationStarted) Describe() string {
	prev := p.PreviousIdentity
	if prev == "" {
		prev = "none"
	}
	return fmt.Sprintf("Rotation started after offline detection (previous: %s)", prev)
}

// RotationCompleted reports a replacement identity brought online.
type RotationCompleted struct {
	Identity    string `json:"identity"`
	ActiveForMS int64  `json:"active_for_ms"`
	Attempts    int    `json:"attempts"`
}

func (RotationCompleted) Kind() Kind { return KindRotationCompleted }
func (p RotationCompleted) Describe() string {
	return fmt.Sprintf("Rotation completed with identity %s", p.Identity)
}

// RotationRetired reports an identity retired after its active time.
type RotationRetired struct {
	Identity     string   `json:"identity"`
	RecentlyUsed []string `json:"recently_used"`
}

func (RotationRetired) Kind() Kind { return KindRotationRetired }
func (p RotationRetired) Describe() string {
	return fmt.Sprintf("Identity %s retired after its active time", p.Identity)
}

// NoIdentityAvailable reports an activation aborted on an empty pool.
type NoIdentityAvailable struct {
	PoolSize int `json:"pool_size"`
}

func (NoIdentityAvailable) Kind() Kind { return KindNoIdentityAvailable }
func (NoIdentityAvailable) Describe() string {
	return "No identity available for rotation"
}

// ConnectionFailed reports an activation that could not bring a session up.
type ConnectionFailed struct {
	Identity string `json:"identity"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

func (ConnectionFailed) Kind() Kind { return KindConnectionFailed }
func (p ConnectionFailed) Describe() string {
	return fmt.Sprintf("Activation of %s failed after %d attempts: %s", p.Identity, p.Attempts, p.Error)
}

// RotationSuspended reports rotation disabling itself after repeated failures.
type RotationSuspended struct {
	ConsecutiveFailures int `json:"consecutive_failures"`
}

func (RotationSuspended) Kind() Kind { return KindRotationSuspended }
func (p RotationSuspended) Describe() string {
	return fmt.Sprintf("Rotation suspended after %d consecutive failed episodes", p.ConsecutiveFailures)
}
