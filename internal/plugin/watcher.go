package plugin

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of filesystem events an editor save
// produces into one reload per plugin.
const watchDebounce = 300 * time.Millisecond

// Watcher reloads plugins when their files change on disk. It watches
// the loader's search paths and maps each event back to the plugin id
// owning the touched file.
type Watcher struct {
	manager *Manager
	logger  *slog.Logger

	fsw   *fsnotify.Watcher
	roots []string

	mu      sync.Mutex
	pending map[string]*time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher creates a watcher over the loader's search paths. Missing
// paths are skipped; a path created later is not picked up.
func NewWatcher(manager *Manager, loader *Loader, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		manager: manager,
		logger:  logger,
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}

	for _, root := range loader.Paths() {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if err := fsw.Add(abs); err != nil {
			continue
		}
		w.roots = append(w.roots, abs)

		// fsnotify does not recurse; watch each plugin directory too.
		for _, info := range loader.IDs() {
			if p, ok := loader.Get(info); ok && strings.HasPrefix(p.Path, abs) {
				_ = fsw.Add(p.Path)
			}
		}
	}

	return w, nil
}

// Run processes filesystem events until the context is canceled or the
// watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("plugin watch error", "error", err)
		}
	}
}

// handle maps one filesystem event to a debounced plugin reload.
func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	id := w.pluginID(event.Name)
	if id == "" {
		return
	}
	if _, known := w.manager.Get(id); !known {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[id]; ok {
		timer.Stop()
	}
	w.pending[id] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()

		w.logger.Info("plugin changed on disk, reloading", "plugin", id)
		if err := w.manager.Reload(ctx, id); err != nil {
			w.logger.Error("plugin reload failed", "plugin", id, "error", err)
		}
	})
}

// pluginID derives the owning plugin id from an event path: either the
// first directory below a search root, or a standalone {id}.lua file.
func (w *Watcher) pluginID(path string) string {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) == 1 {
			return strings.TrimSuffix(parts[0], ".lua")
		}
		return parts[0]
	}
	return ""
}

// Close stops the watcher. Pending debounced reloads are dropped.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		for id, timer := range w.pending {
			timer.Stop()
			delete(w.pending, id)
		}
		w.mu.Unlock()

		err = w.fsw.Close()
	})
	return err
}
