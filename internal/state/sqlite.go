// Package state records import runs and workspace actions in a SQLite database.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/leapstack-labs/dante/pkg/core"
)

// SQLiteStore implements core.HistoryStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ core.HistoryStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite history store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Open opens the database at path and applies pending migrations.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path

	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// Begin records the start of an action.
func (s *SQLiteStore) Begin(kind core.HistoryKind, target, source string) (*core.HistoryEntry, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	entry := &core.HistoryEntry{
		ID:        generateID(),
		Kind:      kind,
		Target:    target,
		Source:    source,
		Status:    core.HistoryRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO history (id, kind, target, source, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Kind, entry.Target, entry.Source, entry.Status, entry.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record history: %w", err)
	}

	return entry, nil
}

// Finish marks an action as completed with the given status.
func (s *SQLiteStore) Finish(id string, status core.HistoryStatus, failedStep, errMsg string) error {
	if s.db == nil {
		return errNotOpened
	}

	result, err := s.db.Exec(
		`UPDATE history SET status = ?, completed_at = ?, failed_step = ?, error = ? WHERE id = ?`,
		status, time.Now().UTC(), nullable(failedStep), nullable(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete history entry: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("history entry not found: %s", id)
	}

	return nil
}

// Get retrieves an entry by ID.
func (s *SQLiteStore) Get(id string) (*core.HistoryEntry, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	entry, err := scanEntry(s.db.QueryRow(selectHistory+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history entry not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}
	return entry, nil
}

// List returns the most recent entries first. limit <= 0 returns all.
func (s *SQLiteStore) List(limit int) ([]*core.HistoryEntry, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(selectHistory+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*core.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const selectHistory = `SELECT id, kind, target, source, status, failed_step, error, started_at, completed_at FROM history`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*core.HistoryEntry, error) {
	entry := &core.HistoryEntry{}
	var failedStep, errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&entry.ID, &entry.Kind, &entry.Target, &entry.Source, &entry.Status,
		&failedStep, &errMsg, &entry.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	entry.FailedStep = failedStep.String
	entry.Error = errMsg.String
	if completedAt.Valid {
		entry.CompletedAt = &completedAt.Time
	}
	return entry, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
