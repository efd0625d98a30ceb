// Package datamodel implements the Object Base Layer (spec C2): the
// reference-counted-in-C++, plain-GC-owned-in-Go object graph with
// non-owning parent back-references, visitor traversal, and the
// PublicObject registration table. Struct embedding stands in for the
// original's base-class inheritance, the same idiom this codebase uses
// for its own action/event type hierarchies.
package datamodel

import (
	"context"
	"fmt"
	"sync"
)

// Object is the minimal contract every catalogue node implements.
type Object interface {
	ClassName() string
	Parent() Object
	setParent(Object)
	Accept(v Visitor) bool
}

// Visitor traverses the object tree. TopDown reports the traversal order
// this visitor requires; Visit may return false to abort the walk: Accept
// then visits nothing further and returns false up the whole tree.
type Visitor interface {
	TopDown() bool
	Visit(o Object) bool
}

// Base is embedded by every concrete Object type and implements the
// non-owning parent back-reference plus the observer registry.
type Base struct {
	parent    Object
	mu        sync.RWMutex
	observers []Observer
}

func (b *Base) Parent() Object { return b.parent }

func (b *Base) setParent(p Object) { b.parent = p }

// Observer receives notification of structural changes to a parent's
// children.
type Observer interface {
	ChildAdded(parent, child Object)
	ChildRemoved(parent, child Object)
}

// Subscribe registers an observer. Safe for concurrent use.
func (b *Base) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Unsubscribe removes a previously-registered observer. Safe to call from
// within a dispatched callback (self-unsubscription), per spec §9: dispatch
// always iterates over a snapshot taken under lock.
func (b *Base) Unsubscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.observers {
		if existing == o {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			return
		}
	}
}

func (b *Base) snapshotObservers() []Observer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Observer, len(b.observers))
	copy(out, b.observers)
	return out
}

func (b *Base) notifyChildAdded(parent, child Object) {
	for _, o := range b.snapshotObservers() {
		o.ChildAdded(parent, child)
	}
}

func (b *Base) notifyChildRemoved(parent, child Object) {
	for _, o := range b.snapshotObservers() {
		o.ChildRemoved(parent, child)
	}
}

// Container is implemented by any Object capable of owning typed children
// of a given class (an "array of nested class" property in spec terms).
// attachTo/detachFrom dispatch through this interface rather than a
// concrete struct field so any concrete class can adopt children.
type Container interface {
	Object
	// AddChild adopts child under the named array property, rejecting it
	// (returning false) on an index-attribute collision.
	AddChild(property string, child Object) bool
	// RemoveChild detaches child from the named array property.
	RemoveChild(property string, child Object) bool
	// UpdateChild overlays field updates from an already-detached replica
	// onto the attached child located by index or publicID (spec §4.2).
	UpdateChild(child Object) bool
}

// AttachTo requests parent to adopt child under the given array property
// name. Returns false if parent does not implement Container or rejects
// the child (e.g. duplicate index tuple, spec §3 "Index"). On success it
// emits a Create/ADD notifier through ctx's installed NotifierSink, mirroring
// the generated routing layer's auto-wiring of attach -> Notifier::Create.
func AttachTo(ctx context.Context, child Object, parent Container, property string) bool {
	if parent == nil || child == nil {
		return false
	}
	if !parent.AddChild(property, child) {
		return false
	}
	child.setParent(parent)
	if sink := notifierSinkFrom(ctx); sink != nil {
		sink.NotifyMutation(publicIDOf(parent), NotifierAdd, child)
	}
	if base, ok := parent.(interface{ notifyChildAdded(Object, Object) }); ok {
		base.notifyChildAdded(parent, child)
	}
	return true
}

// DetachFrom removes child from parent's named array property. Safe if
// child is already detached (returns true, a no-op). On a real detach it
// emits a Create/REMOVE notifier through ctx's installed NotifierSink,
// mirroring the generated routing layer's auto-wiring of detach ->
// Notifier::Create.
func DetachFrom(ctx context.Context, child Object, parent Container, property string) bool {
	if parent == nil || child == nil {
		return true
	}
	if child.Parent() != Object(parent) {
		return true
	}
	if !parent.RemoveChild(property, child) {
		return false
	}
	child.setParent(nil)
	if sink := notifierSinkFrom(ctx); sink != nil {
		sink.NotifyMutation(publicIDOf(parent), NotifierRemove, child)
	}
	if base, ok := parent.(interface{ notifyChildRemoved(Object, Object) }); ok {
		base.notifyChildRemoved(parent, child)
	}
	return true
}

// NotifyUpdate emits a Create/UPDATE notifier for obj through ctx's
// installed NotifierSink (spec §4.3: scalar setters produce an UPDATE the
// same way attach/detach produce ADD/REMOVE). The parentID is obj's own
// parent, if any, matching the UPDATE notifier's addressing in spec §3.
func NotifyUpdate(ctx context.Context, obj Object) {
	sink := notifierSinkFrom(ctx)
	if sink == nil {
		return
	}
	parentID := ""
	if p := obj.Parent(); p != nil {
		parentID = publicIDOf(p)
	}
	sink.NotifyMutation(parentID, NotifierUpdate, obj)
}

// NotifierOp mirrors notifier.Operation without importing the notifier
// package, which itself depends on datamodel; NotifierSink is the seam that
// lets notifier wire itself back in without an import cycle.
type NotifierOp int

const (
	NotifierAdd NotifierOp = iota
	NotifierRemove
	NotifierUpdate
)

// NotifierSink receives a mutation as it happens, in the same goroutine
// that performed it. *notifier.Scope implements this by translating op
// into an Operation and calling Scope.Create.
type NotifierSink interface {
	NotifyMutation(parentID string, op NotifierOp, subject Object)
}

// notifierSinkKey is the context key carrying the installed NotifierSink
// for the calling goroutine's task scope, following the same per-task
// discipline as registrationKey.
type notifierSinkKey struct{}

// WithNotifierSink returns a derived context that routes AttachTo/
// DetachFrom/NotifyUpdate mutations to sink.
func WithNotifierSink(ctx context.Context, sink NotifierSink) context.Context {
	return context.WithValue(ctx, notifierSinkKey{}, sink)
}

func notifierSinkFrom(ctx context.Context) NotifierSink {
	if ctx == nil {
		return nil
	}
	sink, _ := ctx.Value(notifierSinkKey{}).(NotifierSink)
	return sink
}

// publicIDOf returns obj's publicID, or "" if obj does not carry one (a
// non-PublicObject root such as EventParameters, the legitimate "empty if
// the root" case from spec §3).
func publicIDOf(obj Object) string {
	if obj == nil {
		return ""
	}
	if pub, ok := obj.(interface{ PublicID() string }); ok {
		return pub.PublicID()
	}
	return ""
}

// Accept performs a tree walk over obj rooted at the given children,
// honoring the visitor's declared order (spec §4.2: "TOP-DOWN ... otherwise
// BOTTOM-UP"; visitors may short-circuit by returning false).
func Accept(obj Object, children []Object, v Visitor) bool {
	if v.TopDown() {
		if !v.Visit(obj) {
			return false
		}
		for _, c := range children {
			if !c.Accept(v) {
				return false
			}
		}
		return true
	}

	for _, c := range children {
		if !c.Accept(v) {
			return false
		}
	}
	return v.Visit(obj)
}

var (
	// ErrTypeMismatch is returned by assign/clone helpers when the two
	// operands are not the same concrete class.
	ErrTypeMismatch = fmt.Errorf("datamodel: type mismatch")
)

// registrationKey is the context key carrying a per-goroutine
// public-object registration flag (spec §9: "thread-local notifier
// state... per task, not per process"). Register takes no context and
// does not consult this flag; the flag only reports what was set.
type registrationKey struct{}

// WithRegistrationEnabled returns a derived context carrying the
// registration-enabled flag for the calling goroutine's task scope.
func WithRegistrationEnabled(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, registrationKey{}, enabled)
}

// RegistrationEnabled reports whether ctx has registration enabled.
// Defaults to true when unset, matching the spec's default-enabled
// behavior.
func RegistrationEnabled(ctx context.Context) bool {
	v := ctx.Value(registrationKey{})
	if v == nil {
		return true
	}
	return v.(bool)
}
