package cache

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// watch attaches an fsnotify.Watcher to the cache's namespace
// directories so externally removed files (operator cleanup, disk
// pressure eviction outside this process) invalidate the index promptly
// instead of waiting for the next Get or sweep. It is purely additive:
// if it can't be constructed, the cache still self-heals via Get and
// sweepOnce.
type watch struct {
	w       *fsnotify.Watcher
	cache   *Cache
	mu      sync.Mutex
	watched map[string]bool
	done    chan struct{}
}

func newWatch(c *Cache) (*watch, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	watcher := &watch{
		w:       w,
		cache:   c,
		watched: make(map[string]bool),
		done:    make(chan struct{}),
	}
	go watcher.loop()
	return watcher, nil
}

// track adds dir to the watch set, once.
func (w *watch) track(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[dir] {
		return
	}
	if err := w.w.Add(dir); err == nil {
		w.watched[dir] = true
	}
}

func (w *watch) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			id := filepath.Base(ev.Name)
			w.cache.mu.Lock()
			delete(w.cache.index, id)
			w.cache.mu.Unlock()
		case _, ok := <-w.w.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *watch) close() {
	w.w.Close()
	<-w.done
}
