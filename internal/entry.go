// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/roamorg/internal/api"
	"github.com/starford/roamorg/internal/commands"
	"github.com/starford/roamorg/internal/index"
	"github.com/starford/roamorg/internal/mcpserver"
	"github.com/starford/roamorg/internal/mode"
	"github.com/starford/roamorg/internal/organize"
	"github.com/starford/roamorg/internal/sse"
	"github.com/starford/roamorg/internal/storage"
)

const (
	indexEventWindow = 2 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Components holds the wired application parts shared by every surface.
type Components struct {
	Config *Config
	Logger *slog.Logger
	Store  storage.Provider
	DB     *index.DB
	Mode   *mode.Controller
	Runner *commands.Runner
}

// Close releases the index.
func (c *Components) Close() error {
	return c.DB.Close()
}

// build wires storage, the node index, the mode controller and the command
// runner from the configuration. The index is synced before returning.
func build(app *application, runnerOpts ...commands.Option) (*Components, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	root := cfg.Roam.Root()
	logger.Debug("Configuration loaded",
		slog.String("roam_directory", root),
		slog.String("state_dir", cfg.StateDir),
		slog.String("sqlite_path", cfg.IndexPath()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the roam and state directories exist.
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create roam dir: %w", err)
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.IndexPath()), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	store, err := storage.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	resync := func() error { return index.Sync(db, store, logger) }
	if err := resync(); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	ctrl := mode.New(cfg.Roam, cfg.StateDir, mode.WithLogger(logger))
	svc := organize.NewService(store, db, cfg.Roam, logger)

	opts := append([]commands.Option{
		commands.WithResync(resync),
		commands.WithLogger(logger),
	}, runnerOpts...)
	runner := commands.NewRunner(svc, ctrl, db, cfg.Roam, opts...)

	return &Components{
		Config: cfg,
		Logger: logger,
		Store:  store,
		DB:     db,
		Mode:   ctrl,
		Runner: runner,
	}, nil
}

// Exec runs a single command against a freshly wired application.
func Exec(ctx context.Context, fn func(context.Context, *commands.Runner) commands.Status, opts ...Option) (commands.Status, error) {
	c, err := build(newApplication(opts))
	if err != nil {
		return commands.Status{}, err
	}
	defer c.Close()
	return fn(ctx, c.Runner), nil
}

// ServeMCP serves the MCP tools on stdin/stdout until the client disconnects.
func ServeMCP(_ context.Context, opts ...Option) error {
	app := newApplication(opts)
	c, err := build(app)
	if err != nil {
		return err
	}
	defer c.Close()

	c.Logger.Info("MCP server starting", slog.String("roam_directory", c.Store.Root()))
	return mcpserver.New(c.Runner, c.Store, app.version).ServeStdio()
}

// Run serves the REST API and the event stream until ctx is cancelled or the
// process receives SIGINT or SIGTERM. The watcher keeps the index current in
// the meantime.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker(indexEventWindow)
	defer broker.Close()

	c, err := build(newApplication(opts), commands.WithNotifier(func(st commands.Status) {
		broker.PublishCommand(st)
	}))
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := c.Logger
	srv := &http.Server{
		Addr:              c.Config.App.HTTP.Address(),
		Handler:           newHTTPHandler(c, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return index.Watch(gCtx, c.DB, c.Store, c.Store.Root(), logger, broker.PublishFileEvent)
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down", slog.String("cause", context.Cause(gCtx).Error()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// newHTTPHandler mounts the health probes and the API. Probes are outside
// the auth check.
func newHTTPHandler(c *Components, events http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, nil)
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, c.DB.Ping())
	})
	r.Mount("/api", api.NewRouter(c.Runner, c.Store, c.Config.Auth.BearerToken(), events))
	return r
}

func writeHealth(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
