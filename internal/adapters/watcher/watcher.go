// Package watcher follows the output directory so that artifacts removed
// by hand drop out of the catalog.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event represents a settled change to one artifact file.
type Event struct {
	Name      string // Base file name
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

// Handler is called once per settled event.
type Handler func(ctx context.Context, event Event) error

// Config holds watcher configuration.
type Config struct {
	Dir       string
	Extension string        // Artifact extension, default .tif
	Debounce  time.Duration // Quiet period before an event is delivered
}

type pendingEvent struct {
	seen time.Time
	op   Operation
}

// Watcher watches the output directory for artifact changes. Staging files
// (.part) and retained archives are ignored.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	dir       string
	extension string
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a new watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Extension == "" {
		cfg.Extension = ".tif"
	}
	if !strings.HasPrefix(cfg.Extension, ".") {
		cfg.Extension = "." + cfg.Extension
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		dir:       cfg.Dir,
		extension: strings.ToLower(cfg.Extension),
		debounce:  cfg.Debounce,
		pending:   make(map[string]*pendingEvent),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. Events are delivered until ctx is canceled or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	absPath, err := filepath.Abs(w.dir)
	if err != nil {
		return err
	}
	if err := w.fsWatcher.Add(absPath); err != nil {
		return err
	}
	w.logger.Info("watching output directory", "path", absPath)

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutines.
func (w *Watcher) Stop() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.record(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// record folds a raw event into the pending set.
func (w *Watcher) record(event fsnotify.Event) {
	if !w.isArtifact(event.Name) {
		return
	}

	op := fsnotifyOpToOperation(event.Op)

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[event.Name]
	if !ok {
		w.pending[event.Name] = &pendingEvent{seen: time.Now(), op: op}
		return
	}

	p.seen = time.Now()
	switch {
	case p.op == OpDelete && op == OpCreate:
		// Replaced, e.g. by a forced re-download.
		p.op = OpCreate
	case op == OpDelete:
		p.op = OpDelete
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	tick := w.debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			for _, e := range w.settled() {
				w.deliver(ctx, e)
			}
		}
	}
}

// settled removes and returns the events that have been quiet for the
// debounce period.
func (w *Watcher) settled() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []Event
	now := time.Now()
	for path, p := range w.pending {
		if now.Sub(p.seen) < w.debounce {
			continue
		}
		delete(w.pending, path)
		ready = append(ready, Event{Name: filepath.Base(path), Path: path, Operation: p.op})
	}
	return ready
}

func (w *Watcher) deliver(ctx context.Context, e Event) {
	w.logger.Debug("artifact file event", "name", e.Name, "operation", e.Operation.String())
	if err := w.handler(ctx, e); err != nil {
		w.logger.Error("handler error",
			"name", e.Name,
			"operation", e.Operation.String(),
			"error", err,
		)
	}
}

func (w *Watcher) isArtifact(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), w.extension)
}

// fsnotifyOpToOperation converts fsnotify.Op to our Operation type.
func fsnotifyOpToOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove):
		return OpDelete
	case op.Has(fsnotify.Rename):
		// The file is gone from this name.
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}
