package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/nocmatch/internal/logging"
)

// FileWatcher reports changes to a fixed set of files as debounced batches.
type FileWatcher struct {
	targets map[string]struct{}
	paths   []string
	opts    Options

	fsWatcher *fsnotify.Watcher
	poll      *poller
	debouncer *Debouncer

	events chan []FileEvent
	errors chan error
	stopCh chan struct{}

	mu      sync.Mutex
	stopped bool
	logger  *slog.Logger
}

// New creates a watcher for paths. It falls back to polling when fsnotify
// cannot be initialized or opts.ForcePolling is set.
func New(paths []string, opts Options) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	opts = opts.WithDefaults()

	w := &FileWatcher{
		targets:   make(map[string]struct{}, len(paths)),
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		logger:    logging.Component("watcher"),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve absolute path: %w", err)
		}
		if _, dup := w.targets[abs]; dup {
			continue
		}
		w.targets[abs] = struct{}{}
		w.paths = append(w.paths, abs)
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
		} else {
			w.logger.Warn("fsnotify unavailable, polling instead", slog.String("error", err.Error()))
		}
	}
	if w.fsWatcher == nil {
		w.poll = newPoller(w.paths, opts.PollInterval)
	}
	return w, nil
}

// Polling reports whether the watcher runs in polling mode.
func (w *FileWatcher) Polling() bool {
	return w.poll != nil
}

// Start watches until ctx is cancelled or Stop is called. It blocks.
func (w *FileWatcher) Start(ctx context.Context) error {
	go w.forward()

	if w.poll != nil {
		w.poll.run(ctx, w.stopCh, w.debouncer.Add)
		_ = w.Stop()
		return ctx.Err()
	}

	dirs := make(map[string]struct{})
	for _, p := range w.paths {
		dir := filepath.Dir(p)
		if _, ok := dirs[dir]; ok {
			continue
		}
		dirs[dir] = struct{}{}
		if err := w.fsWatcher.Add(dir); err != nil {
			_ = w.Stop()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.logger.Debug("watching files", slog.Any("paths", w.paths))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *FileWatcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if _, ok := w.targets[path]; !ok {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename moves the file away from the watched name.
		op = OpDelete
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
}

// forward copies debounced batches to Events until the debouncer stops.
func (w *FileWatcher) forward() {
	defer close(w.events)
	for batch := range w.debouncer.Output() {
		select {
		case w.events <- batch:
		case <-w.stopCh:
			return
		}
	}
}

// Events returns debounced batches. It is closed after Stop.
func (w *FileWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal fsnotify errors. It is never closed.
func (w *FileWatcher) Errors() <-chan error {
	return w.errors
}

// Stop releases the watcher. Safe to call multiple times.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
