// ABOUTME: Protocol client contract consumed by the lifecycle controller
// ABOUTME: Clients connect under an identity and report lifecycle events via handlers

package session

import (
	"context"

	"github.com/2389/standin/internal/store"
)

// EventKind identifies a protocol lifecycle event.
type EventKind string

const (
	EventSpawn  EventKind = "spawn"
	EventChat   EventKind = "chat"
	EventKicked EventKind = "kicked"
	EventEnd    EventKind = "end"
	EventError  EventKind = "error"
)

// Event is a lifecycle notification from a protocol client.
type Event struct {
	Kind     EventKind
	Username string // chat
	Message  string // chat
	Reason   string // kicked, end
	Err      error  // error
}

// Handler receives protocol events. Clients may call handlers from any goroutine.
type Handler func(Event)

// Credentials identify the account a session connects under.
type Credentials struct {
	Identity string
	Password string
	AuthType string
}

// Client is a connection to the remote service.
type Client interface {
	// Connect dials the server and logs in. It returns once the transport is
	// established; spawn is reported separately through the handler. A client
	// whose Connect failed is closed and emits no further events.
	Connect(ctx context.Context, creds Credentials, server *store.Server) error
	Chat(text string) error
	SetState(flag string, on bool) error
	Quit() error
	On(kind EventKind, h Handler)
}

// ClientFactory creates a fresh client for each session.
type ClientFactory func() Client
