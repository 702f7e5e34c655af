// ABOUTME: Control plane server coordinating the HTTP API and gRPC health endpoint
// ABOUTME: Manages listeners (TCP or tailnet), auth wiring and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/standin/internal/auth"
	"github.com/2389/standin/internal/config"
	"github.com/2389/standin/internal/events"
	"github.com/2389/standin/internal/rotation"
	"github.com/2389/standin/internal/session"
	"github.com/2389/standin/internal/store"
)

// Sessions is the slice of the lifecycle controller the API drives.
type Sessions interface {
	Start(ctx context.Context) (*session.Session, error)
	Stop(ctx context.Context) error
	Restart(ctx context.Context) (*session.Session, error)
	SwitchServer(ctx context.Context, id int64) (*store.Server, error)
	State() session.State
}

// Rotation is the slice of the rotation orchestrator the API drives.
type Rotation interface {
	Enable(ctx context.Context, identities []string) (rotation.Status, error)
	Disable(ctx context.Context) rotation.Status
	UpdateSettings(ctx context.Context, patch rotation.SettingsPatch) (rotation.Settings, error)
	Status() rotation.Status
}

// Options holds the server's collaborators. Metrics and Verifier are optional.
type Options struct {
	Config      *config.Config
	Store       store.Store
	Sessions    Sessions
	Rotation    Rotation
	Broadcaster *events.Broadcaster
	Metrics     http.Handler
	Verifier    auth.TokenVerifier
	Logger      *slog.Logger
}

// Server exposes the control API over HTTP and session liveness over gRPC health.
type Server struct {
	config      *config.Config
	store       store.Store
	sessions    Sessions
	rotation    Rotation
	broadcaster *events.Broadcaster
	health      *health.Server
	grpcServer  *grpc.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	handler     http.Handler
	logger      *slog.Logger
}

// New wires the HTTP routes and the gRPC health service.
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Store == nil || opts.Sessions == nil || opts.Rotation == nil || opts.Broadcaster == nil {
		return nil, errors.New("server: config, store, sessions, rotation and broadcaster are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:      opts.Config,
		store:       opts.Store,
		sessions:    opts.Sessions,
		rotation:    opts.Rotation,
		broadcaster: opts.Broadcaster,
		health:      health.NewServer(),
		logger:      logger.With("component", "server"),
	}

	s.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(SessionHealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)

	if opts.Metrics != nil && opts.Config.Metrics.Enabled {
		path := opts.Config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, opts.Metrics)
	}

	var api http.Handler = s.apiRoutes()
	if opts.Verifier != nil {
		api = auth.HTTPAuthMiddleware(opts.Verifier)(auth.RequireOperatorForWrites()(api))
		s.logger.Info("API auth enabled (JWT)")
	} else {
		s.logger.Warn("auth disabled - no jwt_secret configured")
	}
	mux.Handle("/api/", api)

	s.handler = mux
	s.httpServer = &http.Server{
		Addr:              opts.Config.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) apiRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/session/start", s.handleSessionStart)
	mux.HandleFunc("POST /api/session/stop", s.handleSessionStop)
	mux.HandleFunc("POST /api/session/restart", s.handleSessionRestart)
	mux.HandleFunc("GET /api/session/status", s.handleSessionStatus)

	mux.HandleFunc("POST /api/rotation/enable", s.handleRotationEnable)
	mux.HandleFunc("POST /api/rotation/disable", s.handleRotationDisable)
	mux.HandleFunc("PUT /api/rotation/settings", s.handleRotationSettings)
	mux.HandleFunc("GET /api/rotation/status", s.handleRotationStatus)

	mux.HandleFunc("GET /api/servers", s.handleListServers)
	mux.HandleFunc("POST /api/servers", s.handleCreateServer)
	mux.HandleFunc("POST /api/servers/{id}/activate", s.handleActivateServer)

	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handleUpdateConfig)

	mux.HandleFunc("GET /api/chat-logs", s.handleListChatLogs)
	mux.HandleFunc("DELETE /api/chat-logs", s.handleClearChatLogs)
	mux.HandleFunc("GET /api/activity-logs", s.handleListActivityLogs)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /api/events", s.handleEvents)
	return mux
}

// Run starts both servers and blocks until ctx is cancelled or one fails.
func (s *Server) Run(ctx context.Context) error {
	grpcLn, httpLn, err := s.setupListeners(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := s.grpcServer.Serve(grpcLn); err != nil {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.trackSessionHealth(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("context canceled, initiating shutdown")
		return s.gracefulShutdown()
	})

	return g.Wait()
}

// gracefulShutdown uses a fresh context since the run context is already done.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops both servers and the tailnet node, if any.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	s.health.Shutdown()
	s.shutdownGRPCServer(ctx)

	if s.tsnetServer != nil {
		if err := s.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// shutdownGRPCServer stops gracefully, or forcibly once ctx is done.
func (s *Server) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

func (s *Server) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.GRPCAddr != "" || s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled")
		}
		return s.setupTailscaleListeners(ctx)
	}
	return s.setupTCPListeners()
}

func (s *Server) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	grpcLn, err = net.Listen("tcp", s.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}
	httpLn, err = net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return grpcLn, httpLn, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(config.DataDir(), "tailscale")
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
	}
	return authKey, nil
}

// setupTailscaleListeners joins the tailnet and listens on :50051 and :80 there.
func (s *Server) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := s.config.Tailscale
	stateDir := resolveTailscaleStateDir(tsCfg.StateDir)
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	grpcLn, err = s.tsnetServer.Listen("tcp", ":50051")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
	}
	httpLn, err = s.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = grpcLn.Close()
		_ = s.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return grpcLn, httpLn, nil
}

func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}
