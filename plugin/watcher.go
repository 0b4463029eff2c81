package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kbukum/switchyard/logger"
)

const reloadTimeout = time.Minute

// Watcher reloads a plugin when files in its directory change. Bursts of
// events for one plugin are coalesced into a single reload after the
// debounce interval.
type Watcher struct {
	host     *Host
	debounce time.Duration
	fsw      *fsnotify.Watcher
	log      *logger.Logger

	mu      sync.Mutex
	dirs    map[string]string // directory -> plugin id
	timers  map[string]*time.Timer
	stopped bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher for host. A zero debounce uses DefaultDebounce.
func NewWatcher(host *Host, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("plugin: creating fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		host:     host,
		debounce: debounce,
		fsw:      fsw,
		log:      logger.Get("plugin"),
		dirs:     make(map[string]string),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the directories of the plugins loaded so far and begins
// processing events.
func (w *Watcher) Start() error {
	for _, hd := range w.host.List() {
		w.track(hd.ID(), hd.Descriptor().BaseDir())
	}
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop cancels pending reloads, waits for running ones and releases the
// fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// Watched returns the watched directories.
func (w *Watcher) Watched() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.dirs))
	for d, id := range w.dirs {
		out[d] = id
	}
	return out
}

func (w *Watcher) track(id, dir string) {
	if dir == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		w.log.Warn("cannot watch plugin directory", logger.Fields(
			logger.FieldPlugin, id,
			"dir", dir,
			logger.FieldError, err.Error(),
		))
		return
	}
	w.dirs[dir] = id
}

func (w *Watcher) untrack(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir, owner := range w.dirs {
		if owner == id {
			delete(w.dirs, dir)
			if !w.stopped {
				_ = w.fsw.Remove(dir)
			}
		}
	}
	if t, ok := w.timers[id]; ok {
		t.Stop()
		delete(w.timers, id)
	}
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if isRelevantEvent(ev) {
				w.schedule(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("plugin watcher error", logger.Fields(logger.FieldError, err.Error()))
		case <-w.done:
			return
		}
	}
}

// schedule starts or pushes back the reload of the plugin owning path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	id, ok := w.dirs[filepath.Dir(path)]
	if !ok {
		if id, ok = w.dirs[path]; !ok {
			return
		}
	}
	if t, ok := w.timers[id]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[id] = time.AfterFunc(w.debounce, func() { w.fire(id) })
}

func (w *Watcher) fire(id string) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	delete(w.timers, id)
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()
	start := time.Now()
	if _, err := w.host.Reload(ctx, id); err != nil {
		w.log.Warn("plugin reload failed", logger.ErrorFields("reload", err), logger.Fields(logger.FieldPlugin, id))
		return
	}
	w.log.Info("plugin reloaded after change", logger.DurationFields("reload", time.Since(start)), logger.Fields(logger.FieldPlugin, id))
}

// isRelevantEvent ignores chmod-only events and editor scratch files.
func isRelevantEvent(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(ev.Name)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~") && !strings.HasSuffix(base, ".swp")
}
