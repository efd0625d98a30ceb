package notifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scnotify.dev/cache"
	"scnotify.dev/datamodel"
)

// stubObject is the minimal concrete datamodel.Object used to exercise the
// coalescing table; notifier only ever compares subjects by interface
// identity and never inspects their fields.
type stubObject struct {
	datamodel.Base
}

func (s *stubObject) ClassName() string { return "Stub" }
func (s *stubObject) Accept(v datamodel.Visitor) bool {
	return datamodel.Accept(s, nil, v)
}

func TestScopeCreateCoalescing(t *testing.T) {
	sub := &stubObject{}

	t.Run("duplicate ADD is dropped", func(t *testing.T) {
		s := NewScope()
		s.Create("parent1", OpAdd, sub)
		s.Create("parent1", OpAdd, sub)
		assert.Equal(t, 1, s.Size())
	})

	t.Run("ADD then REMOVE are different, both kept", func(t *testing.T) {
		s := NewScope()
		s.Create("parent1", OpAdd, sub)
		s.Create("parent1", OpRemove, sub)
		assert.Equal(t, 2, s.Size())
	})

	t.Run("REMOVE then ADD are different, both kept", func(t *testing.T) {
		s := NewScope()
		s.Create("parent1", OpRemove, sub)
		s.Create("parent1", OpAdd, sub)
		assert.Equal(t, 2, s.Size())
	})

	t.Run("ADD then UPDATE collapses to ADD", func(t *testing.T) {
		s := NewScope()
		s.Create("parent1", OpAdd, sub)
		s.Create("parent1", OpUpdate, sub)
		require.Equal(t, 1, s.Size())
		msg := s.GetMessage(true)
		assert.Equal(t, OpAdd, msg.Notifiers[0].Op)
	})

	t.Run("UPDATE then ADD overrides to ADD", func(t *testing.T) {
		s := NewScope()
		s.Create("parent1", OpUpdate, sub)
		s.Create("parent1", OpAdd, sub)
		require.Equal(t, 1, s.Size())
		msg := s.GetMessage(true)
		assert.Equal(t, OpAdd, msg.Notifiers[0].Op)
	})

	t.Run("REMOVE then UPDATE collapses to REMOVE", func(t *testing.T) {
		s := NewScope()
		s.Create("parent1", OpRemove, sub)
		s.Create("parent1", OpUpdate, sub)
		require.Equal(t, 1, s.Size())
		msg := s.GetMessage(true)
		assert.Equal(t, OpRemove, msg.Notifiers[0].Op)
	})

	t.Run("UPDATE then REMOVE overrides to REMOVE", func(t *testing.T) {
		s := NewScope()
		s.Create("parent1", OpUpdate, sub)
		s.Create("parent1", OpRemove, sub)
		require.Equal(t, 1, s.Size())
		msg := s.GetMessage(true)
		assert.Equal(t, OpRemove, msg.Notifiers[0].Op)
	})

	t.Run("duplicate UPDATE is dropped", func(t *testing.T) {
		s := NewScope()
		s.Create("parent1", OpUpdate, sub)
		s.Create("parent1", OpUpdate, sub)
		assert.Equal(t, 1, s.Size())
	})

	t.Run("different parents never coalesce", func(t *testing.T) {
		s := NewScope()
		s.Create("parent1", OpAdd, sub)
		s.Create("parent2", OpAdd, sub)
		assert.Equal(t, 2, s.Size())
	})

	t.Run("different subjects never coalesce", func(t *testing.T) {
		s := NewScope()
		other := &stubObject{}
		s.Create("parent1", OpAdd, sub)
		s.Create("parent1", OpAdd, other)
		assert.Equal(t, 2, s.Size())
	})
}

func TestScopeDisabledCreateIsNoop(t *testing.T) {
	s := NewScope()
	s.Disable()
	s.Create("parent1", OpAdd, &stubObject{})
	assert.Equal(t, 0, s.Size())
}

func TestScopeCheckOnCreateDisabledAppendsAll(t *testing.T) {
	s := NewScope()
	s.SetCheckEnabled(false)
	sub := &stubObject{}
	s.Create("parent1", OpAdd, sub)
	s.Create("parent1", OpAdd, sub)
	assert.Equal(t, 2, s.Size())
}

func TestGetMessageSingleFlushesOldestOnly(t *testing.T) {
	s := NewScope()
	s.SetCheckEnabled(false)
	first := &stubObject{}
	second := &stubObject{}
	s.Create("parent1", OpAdd, first)
	s.Create("parent2", OpAdd, second)

	msg := s.GetMessage(false)
	require.Len(t, msg.Notifiers, 1)
	assert.Same(t, first, msg.Notifiers[0].Subject)
	assert.Equal(t, 1, s.Size())
}

func TestGetMessageAllFlushesEverythingAndClearsPool(t *testing.T) {
	s := NewScope()
	s.SetCheckEnabled(false)
	s.Create("parent1", OpAdd, &stubObject{})
	s.Create("parent2", OpAdd, &stubObject{})

	msg := s.GetMessage(true)
	assert.Len(t, msg.Notifiers, 2)
	assert.Equal(t, 0, s.Size())
}

func TestClearDiscardsPending(t *testing.T) {
	s := NewScope()
	s.Create("parent1", OpAdd, &stubObject{})
	s.Clear()
	assert.Equal(t, 0, s.Size())
}

// stubContainer is the minimal Container a replayed ADD/REMOVE can attach
// to, standing in for a concrete catalogue parent.
type stubContainer struct {
	datamodel.Base
	children []datamodel.Object
}

func (c *stubContainer) ClassName() string { return "StubContainer" }
func (c *stubContainer) Accept(v datamodel.Visitor) bool {
	return datamodel.Accept(c, c.children, v)
}
func (c *stubContainer) AddChild(property string, child datamodel.Object) bool {
	c.children = append(c.children, child)
	return true
}
func (c *stubContainer) RemoveChild(property string, child datamodel.Object) bool {
	for i, existing := range c.children {
		if existing == child {
			c.children = append(c.children[:i], c.children[i+1:]...)
			return true
		}
	}
	return false
}
func (c *stubContainer) UpdateChild(child datamodel.Object) bool { return true }

// stubPublicObject is a PublicObject-embedding leaf, the minimal subject a
// cache can key by publicID.
type stubPublicObject struct {
	datamodel.PublicObject
}

func (s *stubPublicObject) ClassName() string { return "StubPublicObject" }
func (s *stubPublicObject) Accept(v datamodel.Visitor) bool {
	return datamodel.Accept(s, nil, v)
}

// TestApplyFeedsAndEvictsCacheOnReplay is the consumer-side replay path
// spec's data-flow line describes: "Consumers ... replay it into their own
// in-memory graph ... optionally populating (C6)". ADD/UPDATE feed the
// cache, REMOVE evicts from it, driven entirely by Apply rather than by a
// test calling Cache.Feed/Remove directly.
func TestApplyFeedsAndEvictsCacheOnReplay(t *testing.T) {
	parent := &stubContainer{}
	require.NoError(t, datamodel.Register(parent, "parent:1"))
	defer datamodel.Unregister("parent:1")

	c, err := cache.New(4, nil, nil)
	require.NoError(t, err)

	s := NewScope()
	child := &stubPublicObject{PublicObject: datamodel.NewPublicObject("child:1")}

	addResult := s.Apply(context.Background(), &Notifier{ParentID: "parent:1", Op: OpAdd, Subject: child}, "child", c)
	require.True(t, addResult.Applied)
	assert.Equal(t, 1, c.Len())

	removeResult := s.Apply(context.Background(), &Notifier{ParentID: "parent:1", Op: OpRemove, Subject: child}, "child", c)
	require.True(t, removeResult.Applied)
	assert.Equal(t, 0, c.Len())
}
