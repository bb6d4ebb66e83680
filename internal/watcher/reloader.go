package watcher

import (
	"context"
	"log/slog"
	"sync/atomic"

	nocerrors "github.com/Aman-CERP/nocmatch/internal/errors"
	"github.com/Aman-CERP/nocmatch/internal/logging"
)

// Rebuilder is implemented by *matcher.Service.
type Rebuilder interface {
	RebuildIndex(ctx context.Context, force bool) (int, error)
}

// Reloader rebuilds the index once per batch of file changes.
type Reloader struct {
	rebuilder Rebuilder
	logger    *slog.Logger

	rebuilds atomic.Int64
	failures atomic.Int64
}

// NewReloader creates a Reloader for r.
func NewReloader(r Rebuilder) *Reloader {
	return &Reloader{
		rebuilder: r,
		logger:    logging.Component("reloader"),
	}
}

// Run consumes batches until ctx is done or events is closed. A failed
// rebuild is logged and the current index keeps serving.
func (r *Reloader) Run(ctx context.Context, events <-chan []FileEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			r.handle(ctx, batch)
		}
	}
}

func (r *Reloader) handle(ctx context.Context, batch []FileEvent) {
	if len(batch) == 0 {
		return
	}

	removed := true
	for _, e := range batch {
		if e.Operation != OpDelete {
			removed = false
			break
		}
	}
	if removed {
		r.logger.Warn("taxonomy file removed, keeping current index",
			slog.String("path", batch[0].Path))
		return
	}

	r.logger.Info("taxonomy changed, rebuilding index",
		slog.String("path", batch[0].Path),
		slog.String("op", batch[0].Operation.String()))

	n, err := r.rebuilder.RebuildIndex(ctx, false)
	if err != nil {
		r.failures.Add(1)
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("rebuild after file change failed",
			slog.String("code", nocerrors.GetCode(err)),
			slog.String("error", err.Error()))
		return
	}
	r.rebuilds.Add(1)
	r.logger.Info("index reloaded", slog.Int("entries", n))
}

// Rebuilds returns the number of successful rebuilds.
func (r *Reloader) Rebuilds() int64 {
	return r.rebuilds.Load()
}

// Failures returns the number of failed rebuilds.
func (r *Reloader) Failures() int64 {
	return r.failures.Load()
}
