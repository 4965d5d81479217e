package session

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/leapstack-labs/dante/pkg/core"
)

// appendRows streams rows into table through the engine's appender.
// Every cell is appended as text; the table's columns must be VARCHAR.
func (s *Session) appendRows(_ context.Context, table string, rows [][]string) error {
	if s.closed.Load() {
		return errShutdown()
	}

	desc := fmt.Sprintf("APPEND %d rows TO %s", len(rows), table)
	start := time.Now()
	s.running.Store(&running{expr: desc, since: start})
	defer s.running.Store(nil)

	err := s.conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		appender, err := duckdb.NewAppenderFromConn(dc, "", table)
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		values := make([]driver.Value, 0)
		for i, row := range rows {
			values = values[:0]
			for _, cell := range row {
				values = append(values, cell)
			}
			if err := appender.AppendRow(values...); err != nil {
				_ = appender.Close()
				return fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		return appender.Close()
	})
	evaluationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		evaluationsTotal.WithLabelValues("error").Inc()
		return &core.EvaluationError{Expr: desc, Message: err.Error()}
	}
	evaluationsTotal.WithLabelValues("ok").Inc()
	return nil
}
