package loaderconf

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ehrlich-b/glycin-go/internal/logger"
)

// Registry resolves a MIME type to the LoaderDescriptor that handles it,
// built by scanning a precedence-ordered list of directories — later
// directories override earlier ones on MIME collision, matching the
// config-precedence style used throughout this codebase.
type Registry struct {
	mu      sync.RWMutex
	byMime  map[string]*LoaderDescriptor
	dirs    []string
	watcher *fsnotify.Watcher
}

// NewRegistry scans dirs in order and builds the MIME -> descriptor map.
func NewRegistry(dirs []string) *Registry {
	r := &Registry{dirs: dirs}
	r.reload()
	return r
}

func (r *Registry) reload() {
	byMime := make(map[string]*LoaderDescriptor)
	for _, dir := range r.dirs {
		descs, errs := LoadDir(dir)
		for path, err := range errs {
			logger.Warn("loaderconf: skipping malformed descriptor", "path", path, "error", err)
		}
		for _, d := range descs {
			for _, mime := range d.MimeTypes {
				if prev, ok := byMime[mime]; ok && prev.Exec != d.Exec {
					logger.Info("loaderconf: overriding loader", "mime", mime, "from", prev.Exec, "to", d.Exec)
				}
				byMime[mime] = d
			}
		}
	}
	r.mu.Lock()
	r.byMime = byMime
	r.mu.Unlock()
}

// Resolve returns the loader descriptor for a MIME type, or nil if none
// is configured.
func (r *Registry) Resolve(mime string) *LoaderDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byMime[mime]
}

// Watch starts an fsnotify watch on all registry directories, reloading
// the MIME map whenever a .conf file is created, written, or removed.
// Callers should defer Close() on the Registry.
func (r *Registry) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range r.dirs {
		if err := w.Add(dir); err != nil {
			logger.Debug("loaderconf: not watching missing directory", "dir", dir)
			continue
		}
	}
	r.watcher = w
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				logger.Info("loaderconf: reloading after change", "path", ev.Name, "op", ev.Op.String())
				r.reload()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("loaderconf: watch error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the directory watch, if active.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Close()
}
