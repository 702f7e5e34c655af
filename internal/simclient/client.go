// ABOUTME: Simulated protocol client driven by an injected clock
// ABOUTME: Emits spawn, chatter, kicks and end the way a live server would

package simclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/standin/internal/clock"
	"github.com/2389/standin/internal/session"
	"github.com/2389/standin/internal/store"
)

var (
	ErrRefused         = errors.New("connection refused")
	ErrNotConnected    = errors.New("client not connected")
	ErrUnknownControl  = errors.New("unknown control state")
	ErrMissingIdentity = errors.New("identity is required")
	ErrNoServer        = errors.New("server is required")
)

var controls = map[string]bool{
	"forward": true, "back": true, "left": true, "right": true,
	"jump": true, "sprint": true, "sneak": true,
}

var (
	defaultPlayers = []string{"Steve", "Alex", "quarry_kid", "redstone_rita"}
	defaultLines   = []string{
		"anyone got spare iron?",
		"brb",
		"the creeper got my house again",
		"who is online tonight",
		"gg",
	}
)

// Rand is the randomness the simulator needs; *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Options tunes the simulated server.
type Options struct {
	Clock           clock.Clock
	Rand            Rand
	SpawnDelay      time.Duration
	ChatterInterval time.Duration // zero disables chatter
	KickChance      float64       // per chatter tick
	FailChance      float64       // per Connect
	Players         []string
	Lines           []string
	Logger          *slog.Logger
}

// Factory hands out simulated clients sharing one clock and rand source.
type Factory struct {
	opts   Options
	rngMu  sync.Mutex
	logger *slog.Logger
}

// NewFactory creates a factory. Clock and Rand are required.
func NewFactory(opts Options) *Factory {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Players) == 0 {
		opts.Players = defaultPlayers
	}
	if len(opts.Lines) == 0 {
		opts.Lines = defaultLines
	}
	return &Factory{opts: opts, logger: opts.Logger.With("component", "simclient")}
}

// New returns a fresh client. It has the session.ClientFactory shape.
func (f *Factory) New() session.Client {
	return &Client{factory: f, handlers: make(map[session.EventKind][]session.Handler), controls: make(map[string]bool)}
}

func (f *Factory) float() float64 {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return f.opts.Rand.Float64()
}

func (f *Factory) pick(from []string) string {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return from[f.opts.Rand.IntN(len(from))]
}

// Client is one simulated connection.
type Client struct {
	factory *Factory

	mu        sync.Mutex
	handlers  map[session.EventKind][]session.Handler
	identity  string
	server    string
	connected bool
	spawned   bool
	spawn     clock.Timer
	chatter   clock.Timer
	controls  map[string]bool
	said      []string
}

func (c *Client) Connect(ctx context.Context, creds session.Credentials, server *store.Server) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if creds.Identity == "" {
		return ErrMissingIdentity
	}
	if server == nil {
		return ErrNoServer
	}
	f := c.factory
	if f.opts.FailChance > 0 && f.float() < f.opts.FailChance {
		f.logger.Debug("simulated connect failure", "identity", creds.Identity, "server", server.Name)
		return fmt.Errorf("%w: %s:%d", ErrRefused, server.Host, server.Port)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	c.identity = creds.Identity
	c.server = server.Name
	c.connected = true
	c.spawn = f.opts.Clock.AfterFunc(f.opts.SpawnDelay, c.onSpawn)
	f.logger.Debug("simulated connect", "identity", creds.Identity, "server", server.Name)
	return nil
}

func (c *Client) onSpawn() {
	c.mu.Lock()
	if !c.connected || c.spawned {
		c.mu.Unlock()
		return
	}
	c.spawned = true
	c.scheduleChatterLocked()
	c.mu.Unlock()

	c.emit(session.Event{Kind: session.EventSpawn})
}

func (c *Client) scheduleChatterLocked() {
	interval := c.factory.opts.ChatterInterval
	if interval <= 0 {
		return
	}
	c.chatter = c.factory.opts.Clock.AfterFunc(interval, c.onChatter)
}

// onChatter either kicks the agent or relays a line from another player.
func (c *Client) onChatter() {
	f := c.factory
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	kick := f.opts.KickChance > 0 && f.float() < f.opts.KickChance
	if kick {
		c.closeLocked()
	} else {
		c.scheduleChatterLocked()
	}
	c.mu.Unlock()

	if kick {
		c.emit(session.Event{Kind: session.EventKicked, Reason: "You have been idle for too long"})
		c.emit(session.Event{Kind: session.EventEnd, Reason: "kicked"})
		return
	}
	c.emit(session.Event{Kind: session.EventChat, Username: f.pick(f.opts.Players), Message: f.pick(f.opts.Lines)})
}

// Chat sends text. Commands are swallowed; plain lines echo back the way
// a server relays the agent's own chat.
func (c *Client) Chat(text string) error {
	c.mu.Lock()
	if !c.connected || !c.spawned {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.said = append(c.said, text)
	identity := c.identity
	c.mu.Unlock()

	if strings.HasPrefix(text, "/") {
		return nil
	}
	c.emit(session.Event{Kind: session.EventChat, Username: identity, Message: text})
	return nil
}

func (c *Client) SetState(flag string, on bool) error {
	if !controls[flag] {
		return fmt.Errorf("%w: %s", ErrUnknownControl, flag)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || !c.spawned {
		return ErrNotConnected
	}
	c.controls[flag] = on
	return nil
}

// Quit disconnects and reports end, like a live client does.
func (c *Client) Quit() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.closeLocked()
	c.mu.Unlock()

	c.emit(session.Event{Kind: session.EventEnd, Reason: "quit"})
	return nil
}

func (c *Client) closeLocked() {
	c.connected = false
	if c.spawn != nil {
		c.spawn.Stop()
	}
	if c.chatter != nil {
		c.chatter.Stop()
	}
}

func (c *Client) On(kind session.EventKind, h session.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], h)
}

func (c *Client) emit(e session.Event) {
	c.mu.Lock()
	hs := append([]session.Handler(nil), c.handlers[e.Kind]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(e)
	}
}

// Said returns everything sent through Chat.
func (c *Client) Said() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.said...)
}

// Control reports the current value of a control state.
func (c *Client) Control(flag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controls[flag]
}
