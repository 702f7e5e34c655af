// ABOUTME: Event envelope wrapping a typed payload with identity and timestamp
// ABOUTME: Marshals to the JSON shape served on the event stream

package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is a published occurrence.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// New wraps a payload in an Event stamped at ts.
func New(p Payload, ts time.Time) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Kind:      p.Kind(),
		Timestamp: ts.UTC(),
		Payload:   p,
	}
}
