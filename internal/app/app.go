// ABOUTME: Wires store, session controller, rotation, metrics, notifier and server
// ABOUTME: Seeds the store from the config file and runs everything under one errgroup

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/standin/internal/auth"
	"github.com/2389/standin/internal/clock"
	"github.com/2389/standin/internal/config"
	"github.com/2389/standin/internal/events"
	"github.com/2389/standin/internal/heartbeat"
	"github.com/2389/standin/internal/metrics"
	"github.com/2389/standin/internal/notify"
	"github.com/2389/standin/internal/rotation"
	"github.com/2389/standin/internal/server"
	"github.com/2389/standin/internal/session"
	"github.com/2389/standin/internal/simclient"
	"github.com/2389/standin/internal/store"
)

// App is a fully wired standin process.
type App struct {
	cfg          *config.Config
	configPath   string
	store        store.Store
	broadcaster  *events.Broadcaster
	controller   *session.Controller
	orchestrator *rotation.Orchestrator
	metrics      *metrics.Collector
	notifier     *notify.Matrix
	server       *server.Server
	logger       *slog.Logger
}

// New opens the SQLite store named by the config and wires the process.
// configPath, when set, is watched for rotation timing changes.
func New(cfg *config.Config, configPath string, logger *slog.Logger) (*App, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	a, err := build(cfg, configPath, s, clock.Real{}, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, configPath string, s store.Store, clk clock.Clock, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seed := uint64(time.Now().UnixNano())

	b := events.NewBroadcaster(logger)
	recorder := events.NewRecorder(s, b, clk, logger)
	monitor := heartbeat.New(clk)

	sim := cfg.Protocol.Sim
	factory := simclient.NewFactory(simclient.Options{
		Clock:           clk,
		Rand:            rand.New(rand.NewPCG(seed, 3)),
		SpawnDelay:      sim.SpawnDelay,
		ChatterInterval: sim.ChatterInterval,
		KickChance:      sim.KickChance,
		FailChance:      sim.FailChance,
		Logger:          logger,
	})

	controller := session.New(session.Options{
		Store:     s,
		Recorder:  recorder,
		Monitor:   monitor,
		Clock:     clk,
		Rand:      rand.New(rand.NewPCG(seed, 1)),
		NewClient: factory.New,
		Settings:  cfg.Agent.SessionSettings(),
		Logger:    logger,
	})

	orchestrator := rotation.New(rotation.Options{
		Store:             s,
		Sessions:          controller,
		Monitor:           monitor,
		Recorder:          recorder,
		Clock:             clk,
		Rand:              rand.New(rand.NewPCG(seed, 2)),
		MaxFailedEpisodes: cfg.Rotation.MaxFailedEpisodes,
		Logger:            logger,
	})

	a := &App{
		cfg:          cfg,
		configPath:   configPath,
		store:        s,
		broadcaster:  b,
		controller:   controller,
		orchestrator: orchestrator,
		logger:       logger.With("component", "app"),
	}

	metricsHandler := a.metricsHandler(logger)

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		verifier = v
	}

	if m := cfg.Notify.Matrix; m.Enabled {
		n, err := notify.NewMatrix(notify.MatrixOptions{
			Homeserver:  m.Homeserver,
			UserID:      m.UserID,
			AccessToken: m.AccessToken,
			RoomID:      m.RoomID,
			Kinds:       m.Kinds,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.notifier = n
	}

	srv, err := server.New(server.Options{
		Config:      cfg,
		Store:       s,
		Sessions:    controller,
		Rotation:    orchestrator,
		Broadcaster: b,
		Metrics:     metricsHandler,
		Verifier:    verifier,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	a.server = srv
	return a, nil
}

func (a *App) metricsHandler(logger *slog.Logger) http.Handler {
	if !a.cfg.Metrics.Enabled {
		return nil
	}
	a.metrics = metrics.New(logger)
	return a.metrics.Handler()
}

// Seed writes the file's agent config and servers into an empty store.
// A store that already holds config or servers is left alone, so runtime
// edits made through the API survive restarts.
func Seed(ctx context.Context, s store.Store, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	_, err := s.GetConfig(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if _, err := s.UpdateConfig(ctx, cfg.SeedPatch()); err != nil {
			return fmt.Errorf("seeding config: %w", err)
		}
		logger.Info("seeded agent config from file", "username", cfg.Agent.Username, "rotation", cfg.Rotation.Enabled)
	case err != nil:
		return fmt.Errorf("loading config: %w", err)
	}

	servers, err := s.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}
	if len(servers) > 0 {
		return nil
	}
	for _, entry := range cfg.Servers {
		srv := entry.Server()
		if err := s.CreateServer(ctx, srv); err != nil {
			return fmt.Errorf("seeding server %s: %w", entry.Name, err)
		}
		logger.Info("seeded server from file", "name", srv.Name, "host", srv.Host, "active", srv.IsActive)
	}
	return nil
}

// Run seeds the store, resumes rotation and serves until ctx is cancelled.
// Everything is torn down before it returns.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := Seed(ctx, a.store, a.cfg, a.logger); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// Event consumers subscribe before Resume so they see the resumed rotation.
	if a.metrics != nil {
		ch, _ := a.broadcaster.Subscribe(gctx)
		g.Go(func() error {
			a.metrics.Consume(ch)
			return nil
		})
	}
	if a.notifier != nil {
		ch, _ := a.broadcaster.Subscribe(gctx)
		g.Go(func() error {
			a.notifier.Consume(gctx, ch)
			return nil
		})
	}

	if err := a.orchestrator.Resume(ctx); err != nil {
		a.logger.Warn("could not resume rotation", "error", err)
	}

	g.Go(func() error { return a.server.Run(gctx) })
	if a.configPath != "" {
		w := config.NewWatcher(a.configPath, a.applyConfig, a.logger)
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				a.logger.Warn("config watcher stopped", "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// applyConfig pushes reloaded rotation timings to the orchestrator.
func (a *App) applyConfig(cfg *config.Config) {
	settings, err := a.orchestrator.UpdateSettings(context.Background(), cfg.Rotation.SettingsPatch())
	if err != nil {
		a.logger.Warn("ignoring reloaded rotation settings", "error", err)
		return
	}
	a.logger.Info("rotation settings reloaded",
		"offline_timeout", settings.OfflineTimeout,
		"delay", settings.Delay,
		"active_time", settings.ActiveTime)
}

func (a *App) close() {
	a.orchestrator.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.controller.Close(ctx); err != nil {
		a.logger.Warn("stopping session", "error", err)
	}
	a.broadcaster.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}
