// ABOUTME: HTTP handlers for session control and rotation management
// ABOUTME: Maps domain sentinel errors to JSON error responses

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/standin/internal/identity"
	"github.com/2389/standin/internal/rotation"
	"github.com/2389/standin/internal/session"
	"github.com/2389/standin/internal/store"
)

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

// SessionStatusResponse is the body of GET /api/session/status.
type SessionStatusResponse struct {
	Running       bool             `json:"running"`
	Session       *session.Session `json:"session,omitempty"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Stats         *StatsView       `json:"stats,omitempty"`
}

// EnableRotationRequest is the body of POST /api/rotation/enable.
type EnableRotationRequest struct {
	Identities []string `json:"identities"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Start(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Stop(r.Context()); err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) handleSessionRestart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Restart(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.State()
	resp := SessionStatusResponse{
		Running:       st.Running,
		Session:       st.Session,
		UptimeSeconds: st.Uptime.Seconds(),
	}
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Warn("failed to load stats", "error", err)
	} else {
		resp.Stats = statsView(stats)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRotationEnable(w http.ResponseWriter, r *http.Request) {
	var req EnableRotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status, err := s.rotation.Enable(r.Context(), req.Identities)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRotationDisable(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.rotation.Disable(r.Context()))
}

func (s *Server) handleRotationSettings(w http.ResponseWriter, r *http.Request) {
	var raw map[string]string
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	patch, err := rotation.ParseSettingsPatch(raw)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if patch.Empty() {
		s.sendJSONError(w, http.StatusBadRequest, "no settings provided")
		return
	}
	settings, err := s.rotation.UpdateSettings(r.Context(), patch)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleRotationStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.rotation.Status())
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, rotation.ErrInvalidSettings),
		errors.Is(err, rotation.ErrEmptyPool),
		errors.Is(err, identity.ErrEmptyIdentity),
		errors.Is(err, identity.ErrDuplicateIdentity):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyRunning),
		errors.Is(err, session.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, session.ErrConnection):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrConfiguration),
		errors.Is(err, identity.ErrNoIdentityAvailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendError answers with the mapped status. Unmapped errors are logged and
// reported as a generic internal error.
func (s *Server) sendError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		s.sendJSONError(w, status, "internal server error")
		return
	}
	s.sendJSONError(w, status, err.Error())
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}
