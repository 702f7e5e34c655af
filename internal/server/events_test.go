// ABOUTME: Tests for the SSE event stream
// ABOUTME: Reads the stream from a live httptest server while events are published

package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/standin/internal/events"
)

func TestEvents_StreamsBroadcasts(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readSSE(t, reader)
	assert.Equal(t, "connected", first.event)

	env.broadcaster.Publish(events.New(events.RotationEnabled{Pool: []string{"alpha"}}, time.Now()))

	got := readSSE(t, reader)
	assert.Equal(t, "rotation_enabled", got.event)
	assert.Contains(t, got.data, `"kind":"rotation_enabled"`)
	assert.Contains(t, got.data, `"pool":["alpha"]`)

	cancel()
	assert.Eventually(t, func() bool { return env.broadcaster.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}

type sseMessage struct {
	event string
	data  string
}

func readSSE(t *testing.T, r *bufio.Reader) sseMessage {
	t.Helper()
	var msg sseMessage
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if msg.event != "" {
				return msg
			}
		case strings.HasPrefix(line, "event: "):
			msg.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			msg.data = strings.TrimPrefix(line, "data: ")
		}
	}
}
