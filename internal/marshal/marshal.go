// Package marshal converts tabular engine objects into core.Table snapshots.
package marshal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/leapstack-labs/dante/internal/expr"
	"github.com/leapstack-labs/dante/internal/namespace"
	"github.com/leapstack-labs/dante/internal/session"
	"github.com/leapstack-labs/dante/pkg/core"
)

// Marshaller reads named tables out of the session.
type Marshaller struct {
	gate   namespace.Gate
	logger *slog.Logger
}

// New creates a Marshaller.
func New(gate namespace.Gate, logger *slog.Logger) *Marshaller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Marshaller{gate: gate, logger: logger}
}

// GetTable returns the full contents of a tabular object. The first column
// of the result is always the row label column.
func (m *Marshaller) GetTable(ctx context.Context, name string) (*core.Table, error) {
	var t *core.Table
	err := m.gate.Exclusive(ctx, func(ev session.Evaluator) error {
		var err error
		t, err = m.GetTableWith(ctx, ev, name)
		return err
	})
	return t, err
}

// Preview returns at most limit rows of a tabular object.
func (m *Marshaller) Preview(ctx context.Context, name string, limit int) (*core.Table, error) {
	t, err := m.GetTable(ctx, name)
	if err != nil {
		return nil, err
	}
	return t.Head(limit), nil
}

// GetTableWith is GetTable for callers that already hold the gate.
func (m *Marshaller) GetTableWith(ctx context.Context, ev session.Evaluator, name string) (*core.Table, error) {
	class, err := namespace.ClassOf(ctx, ev, name)
	if err != nil {
		return nil, err
	}
	if !core.IsTabularClass(class) {
		return nil, &core.NotTabularError{Name: name, Class: class}
	}

	rowCount, err := evalInt(ctx, ev, expr.RowCount(name))
	if err != nil {
		return nil, err
	}

	v, err := ev.Evaluate(ctx, expr.Columns(name))
	if err != nil {
		return nil, err
	}
	all := session.Strings(v)
	hasLabels := slices.Contains(all, core.RowLabelColumn)
	columns := slices.DeleteFunc(slices.Clone(all), func(c string) bool { return c == core.RowLabelColumn })

	var payload []string
	switch {
	case len(columns) > 0:
		payload, err = m.payload(ctx, ev, name, columns, rowCount)
	case !hasLabels:
		// No column names reported: read everything and name columns by position.
		payload, err = m.payload(ctx, ev, name, nil, rowCount)
		if err == nil && rowCount > 0 {
			columns = syntheticColumns(len(payload) / rowCount)
		}
	}
	if err != nil {
		return nil, err
	}
	if want := rowCount * len(columns); len(payload) != want {
		return nil, &core.EvaluationError{
			Expr:    expr.Payload(name, columns),
			Message: fmt.Sprintf("payload has %d cells, want %d", len(payload), want),
		}
	}

	labels, err := m.rowLabels(ctx, ev, name, hasLabels, rowCount)
	if err != nil {
		return nil, err
	}

	t := &core.Table{
		Columns: append([]string{core.RowLabelColumn}, columns...),
		Rows:    make([][]string, rowCount),
	}
	for r := 0; r < rowCount; r++ {
		row := make([]string, 0, len(columns)+1)
		row = append(row, labels[r])
		for c := range columns {
			// The payload is flattened column by column.
			row = append(row, payload[c*rowCount+r])
		}
		t.Rows[r] = row
	}
	return t, nil
}

// payload fetches the data cells flattened column-major.
func (m *Marshaller) payload(ctx context.Context, ev session.Evaluator, name string, columns []string, rowCount int) ([]string, error) {
	v, err := ev.Evaluate(ctx, expr.Payload(name, columns))
	if err != nil {
		return nil, err
	}
	switch p := v.(type) {
	case session.StringArray:
		return p, nil
	case session.Text:
		return []string{string(p)}, nil
	case session.Empty:
		if rowCount == 1 && len(columns) == 1 {
			return []string{session.NA}, nil
		}
		return nil, nil
	default:
		// Numeric storage: format every number.
		m.logger.Debug("formatting numeric payload", "name", name)
		return session.Strings(v), nil
	}
}

// rowLabels returns one label per row, falling back to 1-based indices.
func (m *Marshaller) rowLabels(ctx context.Context, ev session.Evaluator, name string, hasLabels bool, rowCount int) ([]string, error) {
	if hasLabels {
		v, err := ev.Evaluate(ctx, expr.RowLabels(name))
		if err != nil {
			return nil, err
		}
		labels := session.Strings(v)
		if _, isEmpty := v.(session.Empty); isEmpty && rowCount == 1 {
			labels = []string{session.NA}
		}
		if len(labels) == rowCount {
			return labels, nil
		}
		m.logger.Debug("row labels do not match row count", "name", name, "labels", len(labels), "rows", rowCount)
	}
	labels := make([]string, rowCount)
	for i := range labels {
		labels[i] = strconv.Itoa(i + 1)
	}
	return labels, nil
}

func syntheticColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = "Field" + strconv.Itoa(i+1)
	}
	return cols
}

func evalInt(ctx context.Context, ev session.Evaluator, q string) (int, error) {
	v, err := ev.Evaluate(ctx, q)
	if err != nil {
		return 0, err
	}
	n, err := session.Int(v)
	if err != nil {
		return 0, &core.EvaluationError{Expr: q, Message: err.Error()}
	}
	return n, nil
}
