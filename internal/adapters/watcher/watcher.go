// Package watcher provides debounced file system watching for directories
// of region manifests.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event represents a file system event.
type Event struct {
	Path      string
	Operation Operation
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called when a relevant file event occurs.
type Handler func(ctx context.Context, event Event) error

// Filter selects the files whose events reach the handler.
type Filter func(path string) bool

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration
	Filter   Filter // nil accepts every file
}

// pending is a debounced event waiting for its timer.
type pending struct {
	op    Operation
	timer *time.Timer
}

// Watcher watches directories and reports settled file changes. Bursts of
// events for one file within the debounce window collapse into one event.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	filter    Filter
	logger    *slog.Logger
	paths     []string
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]*pending
	stopped bool
	running sync.WaitGroup
}

// New creates a new file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Filter == nil {
		cfg.Filter = func(string) bool { return true }
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		filter:    cfg.Filter,
		logger:    logger,
		paths:     cfg.Paths,
		debounce:  cfg.Debounce,
		pending:   make(map[string]*pending),
	}, nil
}

// Start starts watching the configured paths. Paths that cannot be watched
// are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			w.logger.Warn("invalid watch path", "path", path, "error", err)
			continue
		}

		if err := w.fsWatcher.Add(absPath); err != nil {
			w.logger.Warn("failed to watch path", "path", absPath, "error", err)
			continue
		}

		w.logger.Info("watching directory", "path", absPath)
	}

	go w.eventLoop(ctx)
	return nil
}

// Stop stops the watcher, drops pending events and waits for running
// handlers.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	w.stopped = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.fsWatcher.Close()
	w.running.Wait()
	return err
}

// eventLoop processes fsnotify events.
func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(ctx, event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFsEvent schedules or extends the debounce window for a file.
func (w *Watcher) handleFsEvent(ctx context.Context, event fsnotify.Event) {
	if !w.filter(event.Name) {
		return
	}

	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())
	op := fsnotifyOpToOperation(event.Op)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	if p, ok := w.pending[event.Name]; ok {
		p.op = mergeOperations(p.op, op)
		p.timer.Reset(w.debounce)
		return
	}

	path := event.Name
	w.pending[path] = &pending{
		op:    op,
		timer: time.AfterFunc(w.debounce, func() { w.fire(ctx, path) }),
	}
}

// fire dispatches the settled event for path.
func (w *Watcher) fire(ctx context.Context, path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok || w.stopped {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.running.Add(1)
	w.mu.Unlock()

	defer w.running.Done()

	event := Event{Path: path, Operation: p.op}
	w.logger.Info("processing file event", "path", path, "operation", p.op.String())

	if err := w.handler(ctx, event); err != nil {
		w.logger.Error("handler error",
			"path", path,
			"operation", p.op.String(),
			"error", err,
		)
	}
}

// mergeOperations combines a pending operation with a newer one.
func mergeOperations(existing, next Operation) Operation {
	switch {
	case existing == OpDelete && next != OpDelete:
		// Deleted then recreated or rewritten
		return OpCreate
	case next == OpDelete:
		return OpDelete
	default:
		// A modify after create is still a create
		return existing
	}
}

// fsnotifyOpToOperation converts fsnotify.Op to our Operation type.
func fsnotifyOpToOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove):
		return OpDelete
	case op.Has(fsnotify.Rename):
		// The file is gone from its original name
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}
