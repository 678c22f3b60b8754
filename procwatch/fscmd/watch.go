package fscmd

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watcher sends on Wake (coalesced, non-blocking) whenever the watched
// directory changes. It is never authoritative: Sink's per-tick poll is
// what observes and acts on a file. The supervisor loop does not create
// a Watcher or select on Wake, so rendezvous files are picked up at the
// ordinary tick cadence.
type Watcher struct {
	Wake chan struct{}
	w    *fsnotify.Watcher
}

// TryWatch attempts to watch dir, returning nil if the watch could not be
// established (e.g. inotify instance limits exhausted). The watch stops
// when ctx is done.
func TryWatch(ctx context.Context, dir string) *Watcher {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil
	}

	w := &Watcher{Wake: make(chan struct{}, 1), w: fw}
	go w.run(ctx)
	return w
}

func (w *Watcher) run(ctx context.Context) {
	defer w.w.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.w.Errors:
			if !ok {
				return
			}
		case _, ok := <-w.w.Events:
			if !ok {
				return
			}
			select {
			case w.Wake <- struct{}{}:
			default:
			}
		}
	}
}
