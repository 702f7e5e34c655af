// ABOUTME: Records typed events to the activity log and publishes them
// ABOUTME: Store failures are logged; publication always proceeds

package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/2389/standin/internal/clock"
	"github.com/2389/standin/internal/store"
)

// ActivityStore is the subset of store.Store the recorder writes to.
type ActivityStore interface {
	AddActivityLog(ctx context.Context, entry *store.ActivityLog) error
}

// Recorder persists and publishes events.
type Recorder struct {
	store       ActivityStore
	broadcaster *Broadcaster
	clock       clock.Clock
	logger      *slog.Logger
}

// NewRecorder creates a recorder. Pass nil logger for default.
func NewRecorder(s ActivityStore, b *Broadcaster, c clock.Clock, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:       s,
		broadcaster: b,
		clock:       c,
		logger:      logger.With("component", "recorder"),
	}
}

// Record appends the payload to the activity log and publishes it.
func (r *Recorder) Record(ctx context.Context, p Payload) *Event {
	event := New(p, r.clock.Now())

	entry := &store.ActivityLog{
		Kind:        string(event.Kind),
		Description: p.Describe(),
		CreatedAt:   event.Timestamp,
	}
	if scoped, ok := p.(serverScoped); ok {
		entry.ServerID = scoped.serverRef()
	}
	if meta, err := json.Marshal(p); err == nil {
		entry.Metadata = string(meta)
	}

	if err := r.store.AddActivityLog(ctx, entry); err != nil {
		r.logger.Warn("failed to persist activity log",
			"kind", event.Kind,
			"error", err)
	}

	r.broadcaster.Publish(event)
	return event
}

// Publish broadcasts the payload without persisting it.
func (r *Recorder) Publish(p Payload) *Event {
	event := New(p, r.clock.Now())
	r.broadcaster.Publish(event)
	return event
}
