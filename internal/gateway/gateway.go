// ABOUTME: Gateway server that exposes the reference agent over HTTP and SSE
// ABOUTME: Owns the session store, runner and hub lifecycle and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/taskstream/internal/agent"
	"github.com/2389/taskstream/internal/api"
	"github.com/2389/taskstream/internal/config"
	"github.com/2389/taskstream/internal/store"
)

// Version is reported by the health endpoint. Set at build time.
var Version = "dev"

// ServiceName is reported by the health endpoint.
const ServiceName = "taskstream-server"

// Gateway serves the chat, stream, sessions and health endpoints.
type Gateway struct {
	config     *config.Config
	store      store.SessionStore
	hub        *agent.Hub
	runner     *agent.Runner
	httpServer *http.Server
	logger     *slog.Logger

	// serverID identifies this gateway instance in logs
	serverID string

	// shutdown is closed when Shutdown starts so open streams return
	shutdown     chan struct{}
	shutdownOnce sync.Once

	now func() time.Time
}

// initStore creates the SQLite store, honouring TASKSTREAM_DB_PATH.
func initStore(cfg *config.Config) (store.SessionStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("TASKSTREAM_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return s, nil
}

// New creates a gateway backed by the SQLite store named in cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, s, logger), nil
}

// NewWithStore creates a gateway on an existing store. The gateway takes
// ownership of the store and closes it on Shutdown.
func NewWithStore(cfg *config.Config, s store.SessionStore, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	serverID := generateServerID()
	logger = logger.With("server_id", serverID)

	hub := agent.NewHub(logger)
	runner := agent.NewRunner(s, hub, agent.RunnerOptions{
		StepDelay:  cfg.Runner.StepDelay,
		StepJitter: cfg.Runner.StepJitter,
		Logger:     logger,
	})

	gw := &Gateway{
		config:   cfg,
		store:    s,
		hub:      hub,
		runner:   runner,
		logger:   logger,
		serverID: serverID,
		shutdown: make(chan struct{}),
		now:      time.Now,
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw
}

// Handler returns the HTTP routes.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api.HealthPath, g.handleHealth)
	mux.HandleFunc("POST "+api.ChatPath, g.handleChat)
	mux.HandleFunc("GET "+api.StreamPathPrefix+"{id}", g.handleStream)
	mux.HandleFunc("GET "+api.SessionsPath, g.handleListSessions)
	return mux
}

// Run listens on the configured address and serves until ctx is
// cancelled or the server fails, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	return eg.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The caller's context is already cancelled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown releases open streams, stops runs, stops the HTTP server and
// closes the store. Safe to call more than once.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error

	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down gateway")
		close(g.shutdown)

		g.runner.Stop()
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
		g.hub.Close()
		errs = appendCloseError(errs, "store close", g.store.Close())
	})

	return errors.Join(errs...)
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("taskstream-%d", time.Now().UnixNano()%1000000)
}
