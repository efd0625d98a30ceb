// Package cache implements the Public-Object Cache (spec C6): a
// bounded publicID -> object table, optionally backed by a database
// archive for miss-loads. notifier.Scope.Apply can populate one while
// replaying notifiers; the broker processor does not use it.
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"scnotify.dev/datamodel"
)

// Loader resolves a cache miss against durable storage. dbarchive.Archive's
// NewLoader builds one backed by GetObject, since Archive needs a concrete
// newFn per class that cache has no business knowing about.
type Loader func(ctx context.Context, class, publicID string) (datamodel.Object, bool, error)

// Cache is the ring-buffer (fixed-count) variant, built directly on
// golang-lru's doubly-linked-list + hash-map implementation (spec §4.6:
// "its internal structure *is* the invariant the spec describes").
type Cache struct {
	lru     *lru.Cache[string, datamodel.Object]
	loader  Loader
	onEvict func(datamodel.Object)
}

// New creates a Cache holding at most size entries. onEvict, if non-nil,
// is invoked for every entry the LRU pushes out (spec: "pop callback").
// loader, if non-nil, is consulted on a Find miss.
func New(size int, loader Loader, onEvict func(datamodel.Object)) (*Cache, error) {
	c := &Cache{loader: loader, onEvict: onEvict}
	l, err := lru.NewWithEvict[string, datamodel.Object](size, func(key string, value datamodel.Object) {
		if c.onEvict != nil {
			c.onEvict(value)
		}
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Feed pushes obj into the cache (or touches it if already present, moving
// it to the most-recently-used end), evicting the oldest entry if this
// push would exceed the configured bound (spec: "push-or-touch; evict
// until the bound holds").
func (c *Cache) Feed(publicID string, obj datamodel.Object) {
	c.lru.Add(publicID, obj)
}

// Find looks up publicID, first against live registrations
// (datamodel.Find), then — on a registry miss — against the configured
// loader, per spec: "first check PublicObject::Find (live registrations),
// then the archive if configured; on hit, feed into cache." The cache's own
// LRU is never consulted as a fast path ahead of the registry: it only
// records what Find/Feed have already resolved, for eviction bookkeeping.
// cached reports whether the hit came from the live registry, as opposed to
// a loader round-trip.
func (c *Cache) Find(ctx context.Context, class, publicID string) (obj datamodel.Object, cached bool, err error) {
	if live := datamodel.Find(publicID); live != nil {
		c.Feed(publicID, live)
		return live, true, nil
	}

	if c.loader == nil {
		return nil, false, nil
	}

	loaded, ok, err := c.loader(ctx, class, publicID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	c.Feed(publicID, loaded)
	return loaded, false, nil
}

// Remove evicts publicID, invoking the pop callback if configured (spec:
// "O(1) removal; invokes the configured pop callback").
func (c *Cache) Remove(publicID string) {
	c.lru.Remove(publicID)
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge empties the cache, invoking the pop callback for every entry.
func (c *Cache) Purge() { c.lru.Purge() }
