// Package session owns the single connection to the embedded engine.
//
// A Session serializes every evaluation through a one-slot gate: the engine
// is not reentrant, so at most one statement runs at a time. Callers that need
// several statements to run without interleaving use Exclusive.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	"golang.org/x/sync/semaphore"

	"github.com/leapstack-labs/dante/internal/expr"
	"github.com/leapstack-labs/dante/pkg/core"
)

// Options configures Start.
type Options struct {
	// Path is the engine database file. Empty means in-memory.
	Path string
	// Threads caps engine worker threads; 0 keeps the engine default.
	Threads int
	Logger  *slog.Logger
}

// Evaluator runs statements on a session. Inside Exclusive it runs them
// without re-acquiring the gate.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string) (Value, error)
	Append(ctx context.Context, table string, rows [][]string) error
}

// Status is a snapshot of what the session is doing.
type Status struct {
	Busy  bool      `json:"busy"`
	Expr  string    `json:"expr,omitempty"`
	Since time.Time `json:"since,omitempty"`
}

type running struct {
	expr  string
	since time.Time
}

// Session is one live engine connection.
type Session struct {
	db      *sql.DB
	conn    *sql.Conn
	catalog string
	logger  *slog.Logger

	gate    *semaphore.Weighted
	held    atomic.Bool
	closed  atomic.Bool
	running atomic.Pointer[running]

	shutdownOnce sync.Once
	shutdownErr  error
}

// Start opens the engine and pins the connection every evaluation runs on.
func Start(ctx context.Context, opts Options) (*Session, error) {
	path := opts.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, &core.EngineUnavailableError{Err: fmt.Errorf("failed to open duckdb: %w", err)}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &core.EngineUnavailableError{Err: fmt.Errorf("failed to ping duckdb: %w", err)}
	}

	s, err := NewFromDB(ctx, db, opts.Logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if opts.Threads > 0 {
		if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("SET threads = %d", opts.Threads)); err != nil {
			_ = s.Shutdown()
			return nil, &core.EngineUnavailableError{Err: fmt.Errorf("failed to set threads: %w", err)}
		}
	}

	s.logger.Debug("engine session started", "path", path, "catalog", s.catalog)
	return s, nil
}

// NewFromDB builds a session on an already opened database handle.
// The session takes ownership of db.
func NewFromDB(ctx context.Context, db *sql.DB, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, &core.EngineUnavailableError{Err: fmt.Errorf("failed to pin connection: %w", err)}
	}

	var catalog string
	if err := conn.QueryRowContext(ctx, expr.CurrentCatalog()).Scan(&catalog); err != nil {
		_ = conn.Close()
		return nil, &core.EngineUnavailableError{Err: fmt.Errorf("failed to resolve catalog: %w", err)}
	}

	return &Session{
		db:      db,
		conn:    conn,
		catalog: catalog,
		logger:  logger,
		gate:    semaphore.NewWeighted(1),
	}, nil
}

// Catalog is the name of the session's default database.
func (s *Session) Catalog() string { return s.catalog }

// Evaluate runs one statement list and decodes the result of its last statement.
// Waiting for the gate honours ctx; a statement already running does not.
func (s *Session) Evaluate(ctx context.Context, expr string) (Value, error) {
	var v Value
	err := s.Exclusive(ctx, func(ev Evaluator) error {
		var err error
		v, err = ev.Evaluate(ctx, expr)
		return err
	})
	return v, err
}

// AppendRows bulk-inserts text rows into an existing table.
func (s *Session) AppendRows(ctx context.Context, table string, rows [][]string) error {
	return s.Exclusive(ctx, func(ev Evaluator) error {
		return ev.Append(ctx, table, rows)
	})
}

// Exclusive holds the gate while fn runs. fn must use the Evaluator it is
// given; calling back into the Session from fn deadlocks.
func (s *Session) Exclusive(ctx context.Context, fn func(Evaluator) error) error {
	if s.closed.Load() {
		return errShutdown()
	}
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for engine: %w", err)
	}
	s.held.Store(true)
	gateHeld.Set(1)
	defer func() {
		s.held.Store(false)
		gateHeld.Set(0)
		s.gate.Release(1)
	}()

	return fn(heldEvaluator{s})
}

// Status reports whether the gate is held and which statement is running.
// It never blocks.
func (s *Session) Status() Status {
	st := Status{Busy: s.held.Load()}
	if r := s.running.Load(); r != nil {
		st.Expr = r.expr
		st.Since = r.since
	}
	return st
}

// Shutdown releases the engine. It is safe to call more than once.
func (s *Session) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.closed.Store(true)
		s.shutdownErr = errors.Join(s.conn.Close(), s.db.Close())
		s.logger.Debug("engine session shut down")
	})
	return s.shutdownErr
}

func errShutdown() error {
	return &core.EngineUnavailableError{Err: errors.New("session is shut down")}
}

// heldEvaluator evaluates on a session whose gate the caller already holds.
type heldEvaluator struct {
	s *Session
}

func (h heldEvaluator) Evaluate(ctx context.Context, expr string) (Value, error) {
	return h.s.eval(ctx, expr)
}

func (h heldEvaluator) Append(ctx context.Context, table string, rows [][]string) error {
	return h.s.appendRows(ctx, table, rows)
}

func (s *Session) eval(ctx context.Context, expr string) (Value, error) {
	if s.closed.Load() {
		return nil, errShutdown()
	}

	start := time.Now()
	s.running.Store(&running{expr: expr, since: start})
	defer s.running.Store(nil)

	v, err := s.query(context.WithoutCancel(ctx), expr)
	evaluationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		evaluationsTotal.WithLabelValues("error").Inc()
		s.logger.Debug("evaluation failed", "expr", expr, "error", err)
		return nil, &core.EvaluationError{Expr: expr, Message: err.Error()}
	}
	evaluationsTotal.WithLabelValues("ok").Inc()
	return v, nil
}

func (s *Session) query(ctx context.Context, expr string) (Value, error) {
	//nolint:rowserrcheck // decode checks rows.Err()
	rows, err := s.conn.QueryContext(ctx, expr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return decode(rows)
}
