package cache

import (
	"context"
	"sync"
	"time"

	"scnotify.dev/datamodel"
)

// windowEntry pairs a cached object with its last-touched timestamp.
type windowEntry struct {
	obj        datamodel.Object
	lastAccess time.Time
}

// Window is the time-window bounded variant of Cache: entries older than
// the configured window (measured from last access) are swept on every
// Feed/Find, grounded on statemanager/manager.go's bounded-map-with-
// eviction shape since golang-lru has no time-window mode.
type Window struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	ttl     time.Duration
	loader  Loader
	onEvict func(datamodel.Object)
	now     func() time.Time
}

// NewWindow creates a Window evicting entries untouched for longer than
// ttl. now defaults to time.Now; tests may override it.
func NewWindow(ttl time.Duration, loader Loader, onEvict func(datamodel.Object)) *Window {
	return &Window{
		entries: make(map[string]*windowEntry),
		ttl:     ttl,
		loader:  loader,
		onEvict: onEvict,
		now:     time.Now,
	}
}

// sweep removes every entry whose lastAccess is older than ttl. Caller
// must hold w.mu.
func (w *Window) sweep() {
	cutoff := w.now().Add(-w.ttl)
	for id, e := range w.entries {
		if e.lastAccess.Before(cutoff) {
			delete(w.entries, id)
			if w.onEvict != nil {
				w.onEvict(e.obj)
			}
		}
	}
}

// Feed pushes-or-touches obj, sweeping expired entries first.
func (w *Window) Feed(publicID string, obj datamodel.Object) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sweep()
	w.entries[publicID] = &windowEntry{obj: obj, lastAccess: w.now()}
}

// Find sweeps expired entries, then looks up publicID in its own table,
// then in live registrations, then through the loader. Unlike Cache.Find,
// which never consults its own table, cached is true only for a hit in
// the Window's own table.
func (w *Window) Find(ctx context.Context, class, publicID string) (obj datamodel.Object, cached bool, err error) {
	w.mu.Lock()
	w.sweep()
	if e, ok := w.entries[publicID]; ok {
		e.lastAccess = w.now()
		w.mu.Unlock()
		return e.obj, true, nil
	}
	w.mu.Unlock()

	if live := datamodel.Find(publicID); live != nil {
		w.Feed(publicID, live)
		return live, false, nil
	}

	if w.loader == nil {
		return nil, false, nil
	}

	loaded, ok, err := w.loader(ctx, class, publicID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	w.Feed(publicID, loaded)
	return loaded, false, nil
}

// Remove evicts publicID, invoking the pop callback if configured.
func (w *Window) Remove(publicID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[publicID]
	if !ok {
		return
	}
	delete(w.entries, publicID)
	if w.onEvict != nil {
		w.onEvict(e.obj)
	}
}

// Len reports the number of entries currently held, without sweeping.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Oldest returns the last-access timestamp of the least-recently-touched
// entry, and false if the window is empty (spec: "oldest() returns the
// front node's timestamp").
func (w *Window) Oldest() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var oldest time.Time
	found := false
	for _, e := range w.entries {
		if !found || e.lastAccess.Before(oldest) {
			oldest = e.lastAccess
			found = true
		}
	}
	return oldest, found
}
