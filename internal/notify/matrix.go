// ABOUTME: Matrix notifier posting selected standin events to a room
// ABOUTME: Subscribes to the broadcaster; send failures are logged and dropped

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/2389/standin/internal/events"
)

const sendTimeout = 10 * time.Second

// DefaultKinds are the events worth paging a human about.
var DefaultKinds = []events.Kind{
	events.KindSessionKicked,
	events.KindRotationSuspended,
	events.KindNoIdentityAvailable,
	events.KindConnectionFailed,
	events.KindRotationEnabled,
	events.KindRotationDisabled,
}

// Sender posts a notice to a room. *mautrix.Client satisfies it.
type Sender interface {
	SendNotice(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
}

// MatrixOptions configures the notifier.
type MatrixOptions struct {
	Homeserver  string
	UserID      string
	AccessToken string
	RoomID      string
	Kinds       []string
}

// Matrix forwards events to a Matrix room.
type Matrix struct {
	sender Sender
	room   id.RoomID
	kinds  map[events.Kind]bool
	logger *slog.Logger
}

// NewMatrix creates a notifier backed by a mautrix client.
func NewMatrix(opts MatrixOptions, logger *slog.Logger) (*Matrix, error) {
	client, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return newMatrix(client, opts.RoomID, opts.Kinds, logger), nil
}

func newMatrix(sender Sender, room string, kinds []string, logger *slog.Logger) *Matrix {
	if logger == nil {
		logger = slog.Default()
	}
	selected := make(map[events.Kind]bool)
	if len(kinds) == 0 {
		for _, k := range DefaultKinds {
			selected[k] = true
		}
	}
	for _, k := range kinds {
		selected[events.Kind(k)] = true
	}
	return &Matrix{
		sender: sender,
		room:   id.RoomID(room),
		kinds:  selected,
		logger: logger.With("component", "notify_matrix"),
	}
}

// Run forwards matching events until ctx is cancelled or b is closed.
func (m *Matrix) Run(ctx context.Context, b *events.Broadcaster) {
	ch, _ := b.Subscribe(ctx)
	m.Consume(ctx, ch)
}

// Consume forwards matching events from an existing subscription until it
// closes.
func (m *Matrix) Consume(ctx context.Context, ch <-chan *events.Event) {
	m.logger.Info("matrix notifier started", "room", m.room.String(), "kinds", len(m.kinds))
	for e := range ch {
		m.Notify(ctx, e)
	}
}

// Notify sends e if its kind is selected.
func (m *Matrix) Notify(ctx context.Context, e *events.Event) bool {
	if !m.kinds[e.Kind] {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	text := fmt.Sprintf("[standin] %s", e.Payload.Describe())
	if _, err := m.sender.SendNotice(ctx, m.room, text); err != nil {
		m.logger.Warn("failed to send matrix notice", "kind", e.Kind, "error", err)
		return false
	}
	return true
}
