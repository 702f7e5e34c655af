// ABOUTME: In-memory protocol client for controller tests
// ABOUTME: Records calls, injects connect failures and tracks live connections

package session

import (
	"context"
	"errors"
	"sync"

	"github.com/2389/standin/internal/store"
)

var errRefused = errors.New("connection refused")

type fakeFactory struct {
	mu       sync.Mutex
	clients  []*fakeClient
	failNext int
	failAll  bool
	connects int
	overlaps int
}

func (f *fakeFactory) New() Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeClient{factory: f, handlers: make(map[EventKind][]Handler)}
	f.clients = append(f.clients, c)
	return c
}

func (f *fakeFactory) last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeFactory) overlapCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlaps
}

func (f *fakeFactory) setFailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

func (f *fakeFactory) setFailAll(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = fail
}

type fakeClient struct {
	factory *fakeFactory

	mu        sync.Mutex
	handlers  map[EventKind][]Handler
	creds     Credentials
	server    *store.Server
	connected bool
	quit      bool
	chats     []string
	states    []string
}

func (c *fakeClient) Connect(ctx context.Context, creds Credentials, server *store.Server) error {
	f := c.factory
	f.mu.Lock()
	f.connects++
	if f.failAll || f.failNext > 0 {
		if f.failNext > 0 {
			f.failNext--
		}
		f.mu.Unlock()
		return errRefused
	}
	for _, other := range f.clients {
		if other != c && other.isConnected() {
			f.overlaps++
		}
	}
	f.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	c.server = server
	c.connected = true
	return nil
}

func (c *fakeClient) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Chat(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats = append(c.chats, text)
	return nil
}

func (c *fakeClient) SetState(flag string, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := flag + "=off"
	if on {
		state = flag + "=on"
	}
	c.states = append(c.states, state)
	return nil
}

// Quit closes the client and, like real clients, reports end.
func (c *fakeClient) Quit() error {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.quit = true
	c.mu.Unlock()

	if wasConnected {
		c.emit(Event{Kind: EventEnd, Reason: "quit"})
	}
	return nil
}

func (c *fakeClient) On(kind EventKind, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], h)
}

func (c *fakeClient) emit(e Event) {
	c.mu.Lock()
	hs := append([]Handler(nil), c.handlers[e.Kind]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(e)
	}
}

func (c *fakeClient) spawn() { c.emit(Event{Kind: EventSpawn}) }

func (c *fakeClient) say(user, msg string) {
	c.emit(Event{Kind: EventChat, Username: user, Message: msg})
}

// drop simulates the remote side closing the connection.
func (c *fakeClient) drop() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.emit(Event{Kind: EventEnd, Reason: "socket closed"})
}

func (c *fakeClient) kick(reason string) {
	c.emit(Event{Kind: EventKicked, Reason: reason})
	c.drop()
}

func (c *fakeClient) sentChats() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chats...)
}

func (c *fakeClient) sentStates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.states...)
}

func (c *fakeClient) hasQuit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quit
}
