// Package watcher reloads the matcher when the taxonomy file changes.
//
// A FileWatcher observes a fixed set of files. It watches their parent
// directories with fsnotify, so editors that save through a temp file and
// rename are seen, and falls back to polling when fsnotify is unavailable.
// Bursts of events are debounced into batches; a Reloader turns each batch
// into one index rebuild.
//
// Usage:
//
//	w, err := watcher.New([]string{cfg.Taxonomy.Path}, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Start(ctx)
//	return watcher.NewReloader(svc).Run(ctx, w.Events())
package watcher
