// ABOUTME: Liveness and readiness endpoints over HTTP and gRPC health
// ABOUTME: Session status events drive the gRPC serving status of the session service

package server

import (
	"context"
	"fmt"
	"net/http"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/standin/internal/events"
	"github.com/2389/standin/internal/session"
)

// SessionHealthService is the gRPC health service name that reports
// SERVING while the agent session is online.
const SessionHealthService = "standin.Session"

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the agent session is online.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.State()
	if !st.Running || st.Session == nil || st.Session.Status != session.StatusOnline {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("agent offline"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s on %s)", st.Session.Identity, st.Session.ServerName)
}

// trackSessionHealth mirrors session status events into the gRPC health
// server until ctx is cancelled.
func (s *Server) trackSessionHealth(ctx context.Context) {
	s.setSessionHealth(s.sessionOnline())

	ch, _ := s.broadcaster.Subscribe(ctx)
	for e := range ch {
		sc, ok := e.Payload.(events.StatusChanged)
		if !ok {
			continue
		}
		s.setSessionHealth(sc.Status == string(session.StatusOnline))
	}
}

func (s *Server) sessionOnline() bool {
	st := s.sessions.State()
	return st.Running && st.Session != nil && st.Session.Status == session.StatusOnline
}

func (s *Server) setSessionHealth(online bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if online {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(SessionHealthService, status)
}
