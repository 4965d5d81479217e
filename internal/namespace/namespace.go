// Package namespace enumerates and classifies the objects living in an engine session.
package namespace

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/leapstack-labs/dante/internal/expr"
	"github.com/leapstack-labs/dante/internal/session"
	"github.com/leapstack-labs/dante/pkg/core"
)

// Gate grants exclusive use of the session.
type Gate interface {
	Exclusive(ctx context.Context, fn func(session.Evaluator) error) error
}

// Inspector lists and describes named objects.
type Inspector struct {
	gate   Gate
	logger *slog.Logger
}

// New creates an Inspector.
func New(gate Gate, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Inspector{gate: gate, logger: logger}
}

// List returns every named object in listing order. An object whose class or
// dimensions cannot be determined is still listed, with unknown dimensions.
func (i *Inspector) List(ctx context.Context) ([]core.NamedObject, error) {
	var out []core.NamedObject
	err := i.gate.Exclusive(ctx, func(ev session.Evaluator) error {
		var err error
		out, err = i.ListWith(ctx, ev)
		return err
	})
	return out, err
}

// ListWith is List for callers that already hold the gate.
func (i *Inspector) ListWith(ctx context.Context, ev session.Evaluator) ([]core.NamedObject, error) {
	names, err := Names(ctx, ev)
	if err != nil {
		return nil, err
	}

	out := make([]core.NamedObject, 0, len(names))
	for _, name := range names {
		out = append(out, i.describe(ctx, ev, name))
	}
	return out, nil
}

// Lookup describes a single object. Unknown names fail with an EvaluationError.
func (i *Inspector) Lookup(ctx context.Context, name string) (core.NamedObject, error) {
	var obj core.NamedObject
	err := i.gate.Exclusive(ctx, func(ev session.Evaluator) error {
		class, err := ClassOf(ctx, ev, name)
		if err != nil {
			return err
		}
		obj = core.NamedObject{Name: name, Class: class}
		i.dimensions(ctx, ev, &obj)
		return nil
	})
	return obj, err
}

// Names lists object names in engine order.
func Names(ctx context.Context, ev session.Evaluator) ([]string, error) {
	v, err := ev.Evaluate(ctx, expr.ListNames())
	if err != nil {
		return nil, fmt.Errorf("failed to list names: %w", err)
	}
	return session.Strings(v), nil
}

// Objects lists every object together with its engine kind.
func Objects(ctx context.Context, ev session.Evaluator) ([]expr.Object, error) {
	v, err := ev.Evaluate(ctx, expr.ListObjectKinds())
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	cells := session.Strings(v)
	n := len(cells) / 2
	objects := make([]expr.Object, n)
	for r := 0; r < n; r++ {
		objects[r] = expr.Object{Name: cells[r], Kind: expr.ObjectKind(cells[n+r])}
	}
	return objects, nil
}

// ClassOf resolves the class of name, failing when no such object exists.
func ClassOf(ctx context.Context, ev session.Evaluator, name string) (string, error) {
	q := expr.ClassOf(name)
	v, err := ev.Evaluate(ctx, q)
	if err != nil {
		return "", err
	}
	class, ok := session.TextOf(v)
	if !ok {
		return "", &core.EvaluationError{Expr: q, Message: fmt.Sprintf("object %q not found", name), Err: core.ErrObjectNotFound}
	}
	return class, nil
}

func (i *Inspector) describe(ctx context.Context, ev session.Evaluator, name string) core.NamedObject {
	obj := core.NamedObject{Name: name}
	class, err := ClassOf(ctx, ev, name)
	if err != nil {
		i.logger.Debug("class lookup failed", "name", name, "error", err)
		return obj
	}
	obj.Class = class
	i.dimensions(ctx, ev, &obj)
	return obj
}

// dimensions fills Rows and Cols, leaving both nil when either lookup fails.
func (i *Inspector) dimensions(ctx context.Context, ev session.Evaluator, obj *core.NamedObject) {
	var rows, cols int
	var err error
	if core.IsTabularClass(obj.Class) {
		rows, err = count(ctx, ev, expr.RowCount(obj.Name))
		if err == nil {
			cols, err = count(ctx, ev, expr.ColumnCount(obj.Name))
		}
	} else {
		// Opaque objects read as a single unnamed column.
		rows, err = count(ctx, ev, expr.LengthOf(obj.Name, obj.Class))
	}
	if err != nil {
		i.logger.Debug("dimension lookup failed", "name", obj.Name, "class", obj.Class, "error", err)
		return
	}
	obj.Rows, obj.Cols = &rows, &cols
}

func count(ctx context.Context, ev session.Evaluator, q string) (int, error) {
	v, err := ev.Evaluate(ctx, q)
	if err != nil {
		return 0, err
	}
	return session.Int(v)
}
