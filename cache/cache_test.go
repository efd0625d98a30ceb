package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scnotify.dev/cache"
	"scnotify.dev/datamodel"
)

type stubObj struct {
	datamodel.Base
	name string
}

func (s *stubObj) ClassName() string                { return "Stub" }
func (s *stubObj) Accept(v datamodel.Visitor) bool   { return datamodel.Accept(s, nil, v) }

func TestCacheFeedAndFindHitsWithoutLoader(t *testing.T) {
	c, err := cache.New(10, nil, nil)
	require.NoError(t, err)

	obj := &stubObj{name: "a"}
	require.NoError(t, datamodel.Register(obj, "pub:1"))
	defer datamodel.Unregister("pub:1")
	c.Feed("pub:1", obj)

	got, cached, err := c.Find(context.Background(), "Stub", "pub:1")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, obj, got)
}

func TestCacheEvictsOldestOnOverflow(t *testing.T) {
	var evicted []datamodel.Object
	c, err := cache.New(2, nil, func(o datamodel.Object) { evicted = append(evicted, o) })
	require.NoError(t, err)

	first := &stubObj{name: "a"}
	second := &stubObj{name: "b"}
	third := &stubObj{name: "c"}

	c.Feed("pub:1", first)
	c.Feed("pub:2", second)
	c.Feed("pub:3", third)

	assert.Equal(t, 2, c.Len())
	require.Len(t, evicted, 1)
	assert.Same(t, first, evicted[0])
}

func TestCacheFindFallsBackToLoader(t *testing.T) {
	loaded := &stubObj{name: "loaded"}
	var loaderCalls int
	loader := func(ctx context.Context, class, publicID string) (datamodel.Object, bool, error) {
		loaderCalls++
		if publicID == "pub:missing" {
			return loaded, true, nil
		}
		return nil, false, nil
	}

	c, err := cache.New(10, loader, nil)
	require.NoError(t, err)

	got, cached, err := c.Find(context.Background(), "Stub", "pub:missing")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Same(t, loaded, got)
	assert.Equal(t, 1, loaderCalls)

	// Second lookup is not live-registered, so Find consults the loader
	// again rather than short-circuiting on the LRU (spec order: registry,
	// then loader; the LRU is bookkeeping, not a lookup path).
	got2, cached2, err := c.Find(context.Background(), "Stub", "pub:missing")
	require.NoError(t, err)
	assert.False(t, cached2)
	assert.Same(t, loaded, got2)
	assert.Equal(t, 2, loaderCalls)
}

// TestCacheLRUOrderWithTouch is scenario E6: feed A,B,C,D into a size-3
// ring (A is evicted on D's insert), touch B by re-feeding it (moving it to
// the back), then feed E. The oldest two entries at that point, C and then
// A before it, must have popped in creation order: A first (pushed out by
// D), then C (pushed out by E because B's touch moved it ahead of C).
func TestCacheLRUOrderWithTouch(t *testing.T) {
	var evicted []string
	c, err := cache.New(3, nil, func(o datamodel.Object) { evicted = append(evicted, o.(*stubObj).name) })
	require.NoError(t, err)

	a := &stubObj{name: "A"}
	b := &stubObj{name: "B"}
	cc := &stubObj{name: "C"}
	d := &stubObj{name: "D"}
	e := &stubObj{name: "E"}

	c.Feed("A", a)
	c.Feed("B", b)
	c.Feed("C", cc)
	c.Feed("D", d) // evicts A, ring is now {B,C,D}

	c.Feed("B", b) // touch: moves B to the back, ring is now {C,D,B}

	c.Feed("E", e) // evicts C (oldest after the touch), ring is now {D,B,E}

	require.Equal(t, []string{"A", "C"}, evicted)
	assert.Equal(t, 3, c.Len())
}

func TestCacheRemoveInvokesPopCallback(t *testing.T) {
	var popped datamodel.Object
	c, err := cache.New(10, nil, func(o datamodel.Object) { popped = o })
	require.NoError(t, err)

	obj := &stubObj{name: "a"}
	c.Feed("pub:1", obj)
	c.Remove("pub:1")

	assert.Equal(t, 0, c.Len())
	assert.Same(t, obj, popped)
}

func TestWindowFindHitsFedEntryAndTracksOldest(t *testing.T) {
	now := time.Now()
	w := cache.NewWindow(time.Minute, nil, nil)

	obj := &stubObj{name: "a"}
	w.Feed("pub:1", obj)

	_, cached, err := w.Find(context.Background(), "Stub", "pub:1")
	require.NoError(t, err)
	assert.True(t, cached)

	oldest, ok := w.Oldest()
	require.True(t, ok)
	assert.WithinDuration(t, now, oldest, time.Second)
}

func TestWindowRemoveInvokesPopCallback(t *testing.T) {
	var popped datamodel.Object
	w := cache.NewWindow(time.Minute, nil, func(o datamodel.Object) { popped = o })

	obj := &stubObj{name: "a"}
	w.Feed("pub:1", obj)
	w.Remove("pub:1")

	assert.Equal(t, 0, w.Len())
	assert.Same(t, obj, popped)
}

func TestWindowOldestEmptyReportsFalse(t *testing.T) {
	w := cache.NewWindow(time.Minute, nil, nil)
	_, ok := w.Oldest()
	assert.False(t, ok)
}
