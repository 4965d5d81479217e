// Package server exposes the bridge operations over HTTP as JSON, with
// change events streamed over SSE and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/dante/internal/importer"
	"github.com/leapstack-labs/dante/internal/notifier"
	"github.com/leapstack-labs/dante/internal/session"
	"github.com/leapstack-labs/dante/pkg/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// Backend is the set of bridge operations served over HTTP.
type Backend interface {
	ListObjects(ctx context.Context) ([]core.NamedObject, error)
	Lookup(ctx context.Context, name string) (core.NamedObject, error)
	GetTable(ctx context.Context, name string) (*core.Table, error)
	Preview(ctx context.Context, name string, limit int) (*core.Table, error)
	Tree(ctx context.Context) (*core.Tree, error)
	RunImport(ctx context.Context, spec core.ImportSpec, staged *core.Table) (*importer.Result, error)
	LoadWorkspace(ctx context.Context, path string) error
	SaveWorkspace(ctx context.Context, path string) error
	CloseWorkspace(ctx context.Context) error
	CurrentWorkspace() string
	WorkspaceName() string
	Status() session.Status
	History(limit int) ([]*core.HistoryEntry, error)
	Subscribe() chan notifier.Event
	Unsubscribe(ch chan notifier.Event)
	Broadcast(ev notifier.Event)
}

// Config holds configuration for the HTTP server.
type Config struct {
	Backend         Backend
	Port            int
	ShutdownTimeout time.Duration
	// MaxConnections caps concurrently accepted connections; 0 means no cap.
	MaxConnections int
	// Watch enables the workspace file watcher.
	Watch  bool
	Logger *slog.Logger
}

// Server serves the HTTP API.
type Server struct {
	backend         Backend
	port            int
	shutdownTimeout time.Duration
	maxConns        int
	watch           bool
	logger          *slog.Logger
}

// New creates a server instance.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{
		backend:         cfg.Backend,
		port:            cfg.Port,
		shutdownTimeout: timeout,
		maxConns:        cfg.MaxConnections,
		watch:           cfg.Watch,
		logger:          logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
			NoColor: true,
		}),
		middleware.Recoverer,
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Get("/status", s.handleStatus)
			r.Get("/objects", s.handleObjects)
			r.Get("/objects/{name}", s.handleObject)
			r.Get("/objects/{name}/table", s.handleTable)
			r.Get("/tree", s.handleTree)
			r.Post("/imports", s.handleImport)
			r.Get("/workspace", s.handleWorkspace)
			r.Post("/workspace/load", s.handleLoad)
			r.Post("/workspace/save", s.handleSave)
			r.Post("/workspace/close", s.handleClose)
			r.Get("/history", s.handleHistory)
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Serve listens on the configured port and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	s.logger.Info("starting server", "addr", ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch {
		w := newWatcher(s.backend, s.logger)
		eg.Go(func() error {
			return w.run(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
