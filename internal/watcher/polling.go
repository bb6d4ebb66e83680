package watcher

import (
	"context"
	"os"
	"time"
)

type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

// poller stats the watched files on an interval.
type poller struct {
	interval time.Duration
	paths    []string
	state    map[string]fileState
}

func newPoller(paths []string, interval time.Duration) *poller {
	p := &poller{
		interval: interval,
		paths:    paths,
		state:    make(map[string]fileState, len(paths)),
	}
	for _, path := range paths {
		p.state[path] = statFile(path)
	}
	return p
}

// run emits changes until ctx is done or stop is closed.
func (p *poller) run(ctx context.Context, stop <-chan struct{}, emit func(FileEvent)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			for _, e := range p.detect() {
				emit(e)
			}
		}
	}
}

func (p *poller) detect() []FileEvent {
	var events []FileEvent
	now := time.Now()
	for _, path := range p.paths {
		prev, cur := p.state[path], statFile(path)
		p.state[path] = cur

		var op Operation
		switch {
		case !prev.exists && cur.exists:
			op = OpCreate
		case prev.exists && !cur.exists:
			op = OpDelete
		case cur.exists && (!cur.modTime.Equal(prev.modTime) || cur.size != prev.size):
			op = OpModify
		default:
			continue
		}
		events = append(events, FileEvent{Path: path, Operation: op, Timestamp: now})
	}
	return events
}

func statFile(path string) fileState {
	// Unreadable counts as missing.
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}
}
