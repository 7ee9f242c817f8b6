package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// TenantsWatcher hot-reloads the tenants file when it changes on
// disk. Reload failures keep the last good set.
type TenantsWatcher struct {
	path          string
	defaultTenant string
	logger        *zap.Logger

	mu        sync.RWMutex
	tenants   []Tenant
	callbacks []func([]Tenant)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewTenantsWatcher loads the initial tenant set and starts watching
// the file. With an empty path no watcher runs and only the default
// tenant exists.
func NewTenantsWatcher(path, defaultTenant string, logger *zap.Logger) (*TenantsWatcher, error) {
	tenants, err := LoadTenants(path, defaultTenant)
	if err != nil {
		return nil, err
	}

	w := &TenantsWatcher{
		path:          path,
		defaultTenant: defaultTenant,
		logger:        logger,
		tenants:       tenants,
		done:          make(chan struct{}),
	}
	if path == "" {
		return w, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(path); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	w.watcher = fsWatcher
	go w.loop()

	logger.Info("tenants file watcher started", zap.String("path", path))
	return w, nil
}

// Tenants returns the current tenant set.
func (w *TenantsWatcher) Tenants() []Tenant {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Tenant, len(w.tenants))
	copy(out, w.tenants)
	return out
}

// Lookup finds a tenant by name.
func (w *TenantsWatcher) Lookup(name string) (Tenant, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, t := range w.tenants {
		if t.Name == name {
			return t, true
		}
	}
	return Tenant{}, false
}

// OnChange registers a callback invoked after every successful reload.
func (w *TenantsWatcher) OnChange(fn func([]Tenant)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Close stops the watcher.
func (w *TenantsWatcher) Close() error {
	close(w.done)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *TenantsWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("tenants watcher error", zap.Error(err))
		}
	}
}

func (w *TenantsWatcher) reload() {
	tenants, err := LoadTenants(w.path, w.defaultTenant)
	if err != nil {
		w.logger.Warn("tenants reload failed, keeping previous set", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.tenants = tenants
	callbacks := make([]func([]Tenant), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("tenants reloaded", zap.Int("count", len(tenants)))
	for _, fn := range callbacks {
		fn(tenants)
	}
}
