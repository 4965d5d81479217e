// Package workspace loads, saves and clears session images.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/dante/internal/expr"
	"github.com/leapstack-labs/dante/internal/namespace"
	"github.com/leapstack-labs/dante/internal/session"
	"github.com/leapstack-labs/dante/pkg/core"
)

// DefaultName is the display name of a workspace that was never saved or loaded.
const DefaultName = "NewProject"

// Gate grants exclusive use of the session.
type Gate interface {
	Exclusive(ctx context.Context, fn func(session.Evaluator) error) error
}

// Store moves the session namespace to and from image files. It tracks the
// current image path; callers refresh their own views after each call.
type Store struct {
	gate    Gate
	catalog string
	logger  *slog.Logger

	mu      sync.Mutex
	current string
}

// New creates a Store for the session whose default catalog is catalog.
func New(gate Gate, catalog string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{gate: gate, catalog: catalog, logger: logger}
}

// Load copies every object of the image at path into the session and makes
// path the current workspace. Session objects named like an image object are
// replaced; all others are kept.
func (s *Store) Load(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &core.LoadError{Path: path, Err: err}
	}
	if _, err := os.Stat(abs); err != nil {
		return &core.LoadError{Path: path, Err: err}
	}

	err = s.gate.Exclusive(ctx, func(ev session.Evaluator) error {
		if err := s.loadWith(ctx, ev, abs); err != nil {
			_, _ = ev.Evaluate(ctx, expr.DetachImage())
			return err
		}
		return nil
	})
	if err != nil {
		return &core.LoadError{Path: path, Err: err}
	}

	s.setCurrent(abs)
	s.logger.Info("workspace loaded", "path", abs)
	return nil
}

func (s *Store) loadWith(ctx context.Context, ev session.Evaluator, path string) error {
	if _, err := ev.Evaluate(ctx, expr.AttachImage(path)); err != nil {
		return err
	}
	v, err := ev.Evaluate(ctx, expr.ImageTables())
	if err != nil {
		return err
	}
	incoming := session.Strings(v)
	v, err = ev.Evaluate(ctx, expr.ImageVariables())
	if err != nil {
		return err
	}
	variables := session.Strings(v)

	existing, err := namespace.Objects(ctx, ev)
	if err != nil {
		return err
	}
	replaced := slices.DeleteFunc(existing, func(o expr.Object) bool {
		return !slices.Contains(incoming, o.Name) && !slices.Contains(variables, o.Name)
	})
	if q := expr.ClearNamespace(replaced); q != "" {
		s.logger.Debug("replacing objects from image", "path", path, "count", len(replaced))
		if _, err := ev.Evaluate(ctx, q); err != nil {
			return fmt.Errorf("failed to replace existing objects: %w", err)
		}
	}

	_, err = ev.Evaluate(ctx, expr.LoadImage(s.catalog, variables))
	return err
}

// Save writes every table, view and variable to path, replacing any existing file only
// once the new image is complete. An empty path saves to the current workspace.
func (s *Store) Save(ctx context.Context, path string) error {
	if path == "" {
		path = s.CurrentPath()
	}
	if path == "" {
		return &core.SaveError{Path: path, Err: errors.New("no workspace path")}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return &core.SaveError{Path: path, Err: err}
	}

	tmp, err := tempSibling(abs)
	if err != nil {
		return &core.SaveError{Path: path, Err: err}
	}
	defer removeImage(tmp)

	err = s.gate.Exclusive(ctx, func(ev session.Evaluator) error {
		objects, err := namespace.Objects(ctx, ev)
		if err != nil {
			return err
		}
		var variables []string
		for _, o := range objects {
			if o.Kind == expr.KindVariable {
				variables = append(variables, o.Name)
			}
		}
		if _, err := ev.Evaluate(ctx, expr.SaveImage(s.catalog, tmp, variables)); err != nil {
			_, _ = ev.Evaluate(ctx, expr.DetachImage())
			return err
		}
		return nil
	})
	if err != nil {
		return &core.SaveError{Path: path, Err: err}
	}

	if err := os.Rename(tmp, abs); err != nil {
		return &core.SaveError{Path: path, Err: fmt.Errorf("failed to replace image: %w", err)}
	}

	s.setCurrent(abs)
	s.logger.Info("workspace saved", "path", abs)
	return nil
}

// Close drops every object in the session and forgets the current path.
func (s *Store) Close(ctx context.Context) error {
	err := s.gate.Exclusive(ctx, func(ev session.Evaluator) error {
		return s.CloseWith(ctx, ev)
	})
	if err != nil {
		return err
	}
	s.logger.Info("workspace closed")
	return nil
}

// CloseWith is Close for callers that already hold the gate.
func (s *Store) CloseWith(ctx context.Context, ev session.Evaluator) error {
	objects, err := namespace.Objects(ctx, ev)
	if err != nil {
		return err
	}
	if q := expr.ClearNamespace(objects); q != "" {
		if _, err := ev.Evaluate(ctx, q); err != nil {
			return fmt.Errorf("failed to clear namespace: %w", err)
		}
	}
	s.setCurrent("")
	return nil
}

// CurrentPath is the image last loaded or saved, or "".
func (s *Store) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// DisplayName is the current image's base name without extension.
func (s *Store) DisplayName() string {
	p := s.CurrentPath()
	if p == "" {
		return DefaultName
	}
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (s *Store) setCurrent(path string) {
	s.mu.Lock()
	s.current = path
	s.mu.Unlock()
}

// tempSibling reserves an unused file name next to path. The file itself is
// removed again: the engine creates the image from scratch.
func tempSibling(path string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary image: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return "", fmt.Errorf("failed to prepare temporary image: %w", err)
	}
	return name, nil
}

func removeImage(path string) {
	_ = os.Remove(path)
	_ = os.Remove(path + ".wal")
}
