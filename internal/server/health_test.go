// ABOUTME: Tests for HTTP readiness, gRPC session health and the run loop
// ABOUTME: Status events flip the gRPC serving status of the session service

package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/standin/internal/events"
	"github.com/2389/standin/internal/session"
)

func sessionHealth(t *testing.T, srv *Server) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := srv.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: SessionHealthService})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_AlwaysOK(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReady_FollowsSession(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.sessions.setOnline("alice")
	rec = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
}

func TestTrackSessionHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, sessionHealth(t, env.srv))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.srv.trackSessionHealth(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return env.broadcaster.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	publish := func(status session.Status) {
		env.broadcaster.Publish(events.New(events.StatusChanged{
			SessionTarget: events.SessionTarget{Identity: "alice"},
			Status:        string(status),
		}, time.Now()))
	}

	publish(session.StatusOnline)
	assert.Eventually(t, func() bool {
		return sessionHealth(t, env.srv) == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	publish(session.StatusKicked)
	assert.Eventually(t, func() bool {
		return sessionHealth(t, env.srv) == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop")
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- env.srv.Run(ctx) }()

	require.Eventually(t, func() bool { return env.broadcaster.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
