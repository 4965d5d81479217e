// Package bridge is the boundary between the session components and their
// callers (CLI, HTTP API). It owns the engine session for its lifetime.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/leapstack-labs/dante/internal/importer"
	"github.com/leapstack-labs/dante/internal/marshal"
	"github.com/leapstack-labs/dante/internal/namespace"
	"github.com/leapstack-labs/dante/internal/notifier"
	"github.com/leapstack-labs/dante/internal/session"
	"github.com/leapstack-labs/dante/internal/stage"
	"github.com/leapstack-labs/dante/internal/state"
	"github.com/leapstack-labs/dante/internal/workspace"
	"github.com/leapstack-labs/dante/pkg/core"
)

// Options configures Open.
type Options struct {
	Engine session.Options
	// HistoryPath is the SQLite file recording imports and workspace actions.
	// Empty disables history.
	HistoryPath string
	Logger      *slog.Logger
}

// Bridge composes the session components behind one set of operations.
type Bridge struct {
	sess    *session.Session
	names   *namespace.Inspector
	tables  *marshal.Marshaller
	imports *importer.Runner
	store   *workspace.Store
	history core.HistoryStore
	notify  *notifier.Notifier
	logger  *slog.Logger
}

// Open starts the engine and, when configured, the history store.
func Open(ctx context.Context, opts Options) (*Bridge, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	engine := opts.Engine
	if engine.Logger == nil {
		engine.Logger = logger
	}

	sess, err := session.Start(ctx, engine)
	if err != nil {
		return nil, err
	}

	var history core.HistoryStore
	if opts.HistoryPath != "" {
		store := state.NewSQLiteStore()
		if err := store.Open(opts.HistoryPath); err != nil {
			_ = sess.Shutdown()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		history = store
	}

	return New(sess, history, logger), nil
}

// New wires a bridge around an existing session. history may be nil.
func New(sess *session.Session, history core.HistoryStore, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{
		sess:    sess,
		names:   namespace.New(sess, logger),
		tables:  marshal.New(sess, logger),
		imports: importer.New(sess, logger),
		store:   workspace.New(sess, sess.Catalog(), logger),
		history: history,
		notify:  notifier.New(),
		logger:  logger,
	}
}

// Close shuts down the engine and the history store.
func (b *Bridge) Close() error {
	var errs []error
	errs = append(errs, b.sess.Shutdown())
	if b.history != nil {
		errs = append(errs, b.history.Close())
	}
	return errors.Join(errs...)
}

// ListObjects lists every named object in the session.
func (b *Bridge) ListObjects(ctx context.Context) ([]core.NamedObject, error) {
	return b.names.List(ctx)
}

// Lookup describes one named object.
func (b *Bridge) Lookup(ctx context.Context, name string) (core.NamedObject, error) {
	return b.names.Lookup(ctx, name)
}

// GetTable returns the full contents of a tabular object.
func (b *Bridge) GetTable(ctx context.Context, name string) (*core.Table, error) {
	return b.tables.GetTable(ctx, name)
}

// Preview returns at most limit rows of a tabular object.
func (b *Bridge) Preview(ctx context.Context, name string, limit int) (*core.Table, error) {
	return b.tables.Preview(ctx, name, limit)
}

// StageFile reads a source file for inspection before import.
func (b *Bridge) StageFile(ctx context.Context, path, sourceTable string) (*core.Table, error) {
	return stage.Read(ctx, path, sourceTable)
}

// RunImport materializes spec in the session. A nil staged table is read
// from spec.SourceFile first.
func (b *Bridge) RunImport(ctx context.Context, spec core.ImportSpec, staged *core.Table) (*importer.Result, error) {
	var res *importer.Result
	err := b.record(core.HistoryImport, spec.TargetName, spec.SourceFile, func() error {
		if staged == nil && spec.SourceFile != "" {
			var err error
			staged, err = stage.Read(ctx, spec.SourceFile, spec.SourceTable)
			if err != nil {
				var mismatch *core.ColumnCountMismatchError
				if !errors.As(err, &mismatch) {
					err = &core.InvalidSpecError{Problems: []string{"source: " + err.Error()}}
				}
				return &importer.StepError{Step: importer.StepValidate, Err: err}
			}
		}
		var err error
		res, err = b.imports.Run(ctx, spec, staged)
		return err
	})
	if err != nil {
		b.notify.Broadcast(notifier.Event{Type: notifier.ImportFailed, Target: spec.TargetName, Error: err.Error()})
		return res, err
	}
	b.notify.Broadcast(notifier.Event{Type: notifier.ImportCompleted, Target: spec.TargetName})
	return res, nil
}

// LoadWorkspace merges the image at path into the session.
func (b *Bridge) LoadWorkspace(ctx context.Context, path string) error {
	err := b.record(core.HistoryWorkspaceLoad, "", path, func() error {
		return b.store.Load(ctx, path)
	})
	if err != nil {
		return err
	}
	b.notify.Broadcast(notifier.Event{Type: notifier.WorkspaceLoaded, Target: b.store.DisplayName()})
	return nil
}

// SaveWorkspace writes the session to path, or to the current workspace when path is empty.
func (b *Bridge) SaveWorkspace(ctx context.Context, path string) error {
	target := path
	if target == "" {
		target = b.store.CurrentPath()
	}
	err := b.record(core.HistoryWorkspaceSave, "", target, func() error {
		return b.store.Save(ctx, path)
	})
	if err != nil {
		return err
	}
	b.notify.Broadcast(notifier.Event{Type: notifier.WorkspaceSaved, Target: b.store.DisplayName()})
	return nil
}

// CloseWorkspace removes every object from the session.
func (b *Bridge) CloseWorkspace(ctx context.Context) error {
	name := b.store.DisplayName()
	err := b.record(core.HistoryWorkspaceClose, name, b.store.CurrentPath(), func() error {
		return b.store.Close(ctx)
	})
	if err != nil {
		return err
	}
	b.notify.Broadcast(notifier.Event{Type: notifier.WorkspaceClosed, Target: name})
	return nil
}

// CurrentWorkspace is the path of the image last loaded or saved, or "".
func (b *Bridge) CurrentWorkspace() string { return b.store.CurrentPath() }

// WorkspaceName is the display name of the current workspace.
func (b *Bridge) WorkspaceName() string { return b.store.DisplayName() }

// Evaluate runs an arbitrary engine statement under the session gate.
func (b *Bridge) Evaluate(ctx context.Context, expr string) (session.Value, error) {
	return b.sess.Evaluate(ctx, expr)
}

// Status reports whether the engine is busy. It never blocks.
func (b *Bridge) Status() session.Status { return b.sess.Status() }

// Subscribe returns a channel of change events. Release it with Unsubscribe.
func (b *Bridge) Subscribe() chan notifier.Event { return b.notify.Subscribe() }

// Unsubscribe releases a channel returned by Subscribe.
func (b *Bridge) Unsubscribe(ch chan notifier.Event) { b.notify.Unsubscribe(ch) }

// Broadcast publishes ev to subscribers. Used by watchers outside the bridge.
func (b *Bridge) Broadcast(ev notifier.Event) { b.notify.Broadcast(ev) }

// History returns the most recent recorded actions, newest first.
func (b *Bridge) History(limit int) ([]*core.HistoryEntry, error) {
	if b.history == nil {
		return nil, nil
	}
	return b.history.List(limit)
}

// ObjectsTable renders the namespace listing as a table with the columns
// Name, Class, Rows and Columns. Unknown dimensions read NA.
func (b *Bridge) ObjectsTable(ctx context.Context) (*core.Table, error) {
	objects, err := b.ListObjects(ctx)
	if err != nil {
		return nil, err
	}
	t := &core.Table{Columns: []string{"Name", "Class", "Rows", "Columns"}}
	for _, o := range objects {
		t.Rows = append(t.Rows, []string{o.Name, o.Class, dim(o.Rows), dim(o.Cols)})
	}
	return t, nil
}

// Tree renders the namespace as a tree rooted at the workspace name, with
// one node per object and its dimensions beneath it.
func (b *Bridge) Tree(ctx context.Context) (*core.Tree, error) {
	objects, err := b.ListObjects(ctx)
	if err != nil {
		return nil, err
	}
	root := &core.Tree{Label: b.store.DisplayName()}
	for _, o := range objects {
		node := root.Add(o.Name)
		if o.Rows != nil && o.Cols != nil {
			node.Add(fmt.Sprintf("%d rows; %d columns", *o.Rows, *o.Cols))
		}
	}
	return root, nil
}

func dim(n *int) string {
	if n == nil {
		return session.NA
	}
	return strconv.Itoa(*n)
}

// record runs fn as one history entry. History failures are logged only.
func (b *Bridge) record(kind core.HistoryKind, target, source string, fn func() error) error {
	if b.history == nil {
		return fn()
	}

	entry, herr := b.history.Begin(kind, target, source)
	if herr != nil {
		b.logger.Warn("failed to record history", "kind", kind, "error", herr)
	}

	err := fn()
	if entry == nil {
		return err
	}

	status, step, msg := core.HistorySucceeded, "", ""
	if err != nil {
		status, msg = core.HistoryFailed, err.Error()
		var stepErr *importer.StepError
		if errors.As(err, &stepErr) {
			step = string(stepErr.Step)
		}
	}
	if herr := b.history.Finish(entry.ID, status, step, msg); herr != nil {
		b.logger.Warn("failed to complete history entry", "id", entry.ID, "error", herr)
	}
	return err
}
