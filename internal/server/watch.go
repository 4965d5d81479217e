package server

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/dante/internal/notifier"
)

const (
	// watchDebounce coalesces the bursts of writes an engine checkpoint makes.
	watchDebounce = 200 * time.Millisecond
	// saveQuiet suppresses file events caused by our own saves.
	saveQuiet = time.Second
)

// watcher broadcasts WorkspaceModified when the current image file is
// changed by another process.
type watcher struct {
	backend Backend
	logger  *slog.Logger
	// started is closed once the initial watch is in place.
	started chan struct{}
}

func newWatcher(backend Backend, logger *slog.Logger) *watcher {
	return &watcher{backend: backend, logger: logger, started: make(chan struct{})}
}

func (w *watcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	events := w.backend.Subscribe()
	defer w.backend.Unsubscribe(events)

	var watched string
	rewatch := func() {
		path := w.backend.CurrentWorkspace()
		if path == watched {
			return
		}
		if watched != "" {
			_ = fw.Remove(filepath.Dir(watched))
		}
		watched = path
		if path == "" {
			return
		}
		if err := fw.Add(filepath.Dir(path)); err != nil {
			w.logger.Warn("failed to watch workspace", "path", path, "error", err)
		}
	}
	rewatch()
	close(w.started)

	var (
		pending  <-chan time.Time
		lastSave time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case notifier.WorkspaceSaved:
				lastSave = time.Now()
				rewatch()
			case notifier.WorkspaceLoaded, notifier.WorkspaceClosed:
				rewatch()
			}

		case fe, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if watched == "" || filepath.Clean(fe.Name) != watched {
				continue
			}
			if fe.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(watchDebounce)

		case <-pending:
			pending = nil
			if time.Since(lastSave) < saveQuiet {
				continue
			}
			w.logger.Debug("workspace changed on disk", "path", watched)
			w.backend.Broadcast(notifier.Event{Type: notifier.WorkspaceModified, Target: watched})

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}
