// Package importer materializes import specs as named objects in the session.
//
// A run is a fixed sequence of engine statements executed under one hold of
// the session gate. The first failing step ends the run. Objects created by
// earlier steps are left in place.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/dante/internal/expr"
	"github.com/leapstack-labs/dante/internal/session"
	"github.com/leapstack-labs/dante/pkg/core"
)

// Step names one stage of an import run.
type Step string

// Import steps, in execution order.
const (
	StepValidate        Step = "validate"
	StepBindSource      Step = "bind source"
	StepRowMetadata     Step = "row metadata"
	StepColumnSubset    Step = "column subset"
	StepRowLabels       Step = "row labels"
	StepDropLabelColumn Step = "drop label column"
)

// StepError reports the step at which a run stopped.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("import failed at step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Result describes a completed run.
type Result struct {
	Target  string          `json:"target"`
	Kind    core.ImportKind `json:"kind"`
	Created []string        `json:"created"`
	Steps   []Step          `json:"steps"`
}

// Gate grants exclusive use of the session.
type Gate interface {
	Exclusive(ctx context.Context, fn func(session.Evaluator) error) error
}

// Runner executes import specs.
type Runner struct {
	gate   Gate
	logger *slog.Logger
}

// New creates a Runner.
func New(gate Gate, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{gate: gate, logger: logger}
}

// Run validates spec against staged and, when valid, issues the statements
// that create spec.TargetName (and the row metadata table, if requested).
func (r *Runner) Run(ctx context.Context, spec core.ImportSpec, staged *core.Table) (*Result, error) {
	spec, err := Validate(spec, staged)
	if err != nil {
		return nil, &StepError{Step: StepValidate, Err: err}
	}

	res := &Result{Target: spec.TargetName, Kind: spec.Kind, Steps: []Step{StepValidate}}
	run := &run{spec: spec, staged: staged, res: res, logger: r.logger}

	err = r.gate.Exclusive(ctx, func(ev session.Evaluator) error {
		run.ev = ev
		return run.execute(ctx)
	})
	if err != nil {
		r.logger.Warn("import failed", "target", spec.TargetName, "error", err)
		return res, err
	}
	r.logger.Info("import completed", "target", spec.TargetName, "kind", spec.Kind, "created", res.Created)
	return res, nil
}

type run struct {
	spec   core.ImportSpec
	staged *core.Table
	ev     session.Evaluator
	res    *Result
	logger *slog.Logger
}

func (r *run) execute(ctx context.Context) error {
	spec := r.spec
	target := spec.TargetName

	if err := r.step(ctx, StepBindSource, r.bindSource); err != nil {
		return err
	}
	r.created(target)

	switch spec.Kind {
	case core.KindRowMetadata:
		if err := r.eval(ctx, StepRowMetadata, expr.UniqueRows(target, target, r.idFirst(spec.RowMetadataColumns))); err != nil {
			return err
		}
	default:
		if spec.IncludeRowMetadata {
			if err := r.eval(ctx, StepRowMetadata,
				expr.UniqueRows(spec.RowMetadataTableName, target, spec.RowMetadataColumns)); err != nil {
				return err
			}
			r.created(spec.RowMetadataTableName)
		}
		keep := spec.ColumnsToKeep
		if len(keep) == 0 {
			// Every staged column except the row id, which subset puts first.
			keep = slices.DeleteFunc(slices.Clone(r.staged.Columns), func(c string) bool {
				return c == spec.UniqueRowIDColumn
			})
		}
		if err := r.eval(ctx, StepColumnSubset, expr.SubsetColumns(target, r.subset(keep))); err != nil {
			return err
		}
	}

	if id := spec.UniqueRowIDColumn; id != "" {
		if err := r.eval(ctx, StepRowLabels, expr.SetRowLabels(target, id)); err != nil {
			return err
		}
		if err := r.eval(ctx, StepDropLabelColumn, expr.DropColumn(target, id)); err != nil {
			return err
		}
	}
	return nil
}

// bindSource binds the source file contents to the target name.
func (r *run) bindSource(ctx context.Context) error {
	spec := r.spec
	switch spec.Format() {
	case core.FormatTab:
		return r.evalRaw(ctx, expr.Bind(spec.TargetName, expr.ReadDelimited(spec.SourceFile, '\t')))
	case core.FormatComma:
		return r.evalRaw(ctx, expr.Bind(spec.TargetName, expr.ReadDelimited(spec.SourceFile, ',')))
	default:
		// Rows read from a database source are appended as text.
		if err := r.evalRaw(ctx, expr.CreateTable(spec.TargetName, r.staged.Columns)); err != nil {
			return err
		}
		return r.ev.Append(ctx, spec.TargetName, r.staged.Rows)
	}
}

// subset builds the column list for the subset step: the row id column
// (as text) first, then keep in order. keep never names the row id.
func (r *run) subset(keep []string) []expr.Column {
	var cols []expr.Column
	if id := r.spec.UniqueRowIDColumn; id != "" {
		cols = append(cols, expr.Column{Source: id, AsText: true})
	}
	for _, c := range keep {
		cols = append(cols, expr.Column{Source: c})
	}
	return cols
}

// idFirst prepends the row id column to columns unless already present.
func (r *run) idFirst(columns []string) []string {
	id := r.spec.UniqueRowIDColumn
	if id == "" {
		return columns
	}
	out := []string{id}
	for _, c := range columns {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}

func (r *run) step(ctx context.Context, step Step, fn func(context.Context) error) error {
	r.logger.Debug("import step", "target", r.spec.TargetName, "step", step)
	if err := fn(ctx); err != nil {
		return &StepError{Step: step, Err: err}
	}
	r.res.Steps = append(r.res.Steps, step)
	return nil
}

func (r *run) eval(ctx context.Context, step Step, q string) error {
	return r.step(ctx, step, func(ctx context.Context) error { return r.evalRaw(ctx, q) })
}

func (r *run) evalRaw(ctx context.Context, q string) error {
	_, err := r.ev.Evaluate(ctx, q)
	return err
}

func (r *run) created(name string) {
	r.res.Created = append(r.res.Created, name)
}
