// Package notifier implements the Notifier Engine (spec C3): capture of
// ADD/REMOVE/UPDATE mutations, per-task (goroutine) enable/suppress state,
// EQUAL/OPPOSITE/OVERRIDE coalescing, and replay on a consumer graph.
//
// Grounded on original_source/libs/seiscomp/datamodel/notifier.cpp for the
// exact coalescing table and apply() fallback logic, and on db/listener.go's
// handler-snapshot dispatch pattern for Scope's pool handling.
package notifier

import (
	"context"
	"fmt"
	"sync"

	"scnotify.dev/cache"
	"scnotify.dev/datamodel"
	"scnotify.dev/scmlog"
)

// Operation is one of ADD, REMOVE, UPDATE (or Unknown, which the spec
// treats as always "different" when compared).
type Operation int

const (
	OpUnknown Operation = iota
	OpAdd
	OpRemove
	OpUpdate
)

func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "ADD"
	case OpRemove:
		return "REMOVE"
	case OpUpdate:
		return "UPDATE"
	default:
		return "UNKNOWN"
	}
}

// Notifier records a single mutation: the publicID of the affected parent
// (empty if root), the operation, and the subject object (spec §3).
type Notifier struct {
	ParentID string
	Op       Operation
	Subject  datamodel.Object
}

// Message is an ordered batch of notifiers published on the broker (spec
// glossary: NotifierMessage).
type Message struct {
	Notifiers []*Notifier
}

// compareResult is the outcome of comparing two notifiers under the
// spec's 4x4 table: different, equal, opposite, or override.
type compareResult int

const (
	cmpDifferent compareResult = iota
	cmpEqual
	cmpOpposite
	cmpOverride
)

// resultTable is the exact 4x4 table from spec §4.3 (rows = stored op,
// cols = new op), reproduced verbatim from
// original_source/libs/seiscomp/datamodel/notifier.cpp's
// ResultTable[Operation::Quantity][Operation::Quantity].
var resultTable = [4][4]compareResult{
	// new:      Unknown        Add            Remove         Update
	/*Unknown*/ {cmpDifferent, cmpDifferent, cmpDifferent, cmpDifferent},
	/*Add*/ {cmpDifferent, cmpEqual, cmpDifferent, cmpEqual},
	/*Remove*/ {cmpDifferent, cmpDifferent, cmpEqual, cmpEqual},
	/*Update*/ {cmpDifferent, cmpOverride, cmpOverride, cmpEqual},
}

func compare(stored, candidate *Notifier) compareResult {
	if stored.ParentID != candidate.ParentID || stored.Subject != candidate.Subject {
		return cmpDifferent
	}
	return resultTable[stored.Op][candidate.Op]
}

// Scope holds the per-goroutine notifier state standing in for the
// original's thread-local enabled/checkOnCreate/pool trio (spec §9: "any
// implementation must keep the toggles per task, not per process"). Each
// producing goroutine owns exactly one *Scope; it must never be shared
// across goroutines performing unrelated mutations.
type Scope struct {
	mu            sync.Mutex
	enabled       bool
	checkOnCreate bool
	pool          []*Notifier
	log           *scmlog.ContextLogger
}

// NewScope creates a Scope with notifiers enabled and suppression checking
// on, the spec's documented defaults.
func NewScope() *Scope {
	return &Scope{
		enabled:       true,
		checkOnCreate: true,
		log:           scmlog.NewContextLogger(nil, map[string]any{"component": "notifier"}),
	}
}

// Enable turns on notifier capture.
func (s *Scope) Enable() { s.mu.Lock(); s.enabled = true; s.mu.Unlock() }

// Disable turns off notifier capture; Create becomes a no-op.
func (s *Scope) Disable() { s.mu.Lock(); s.enabled = false; s.mu.Unlock() }

// SetEnabled sets the enabled flag explicitly and returns the previous
// value, so callers (notably Apply) can restore it afterward.
func (s *Scope) SetEnabled(enabled bool) (previous bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous = s.enabled
	s.enabled = enabled
	return previous
}

// IsEnabled reports the current enabled state.
func (s *Scope) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetCheckEnabled toggles the duplicate/opposite suppression scan.
func (s *Scope) SetCheckEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkOnCreate = enabled
}

// Size reports the number of pending notifiers.
func (s *Scope) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// Clear discards all pending notifiers without producing a Message.
func (s *Scope) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = nil
}

// Create records a mutation, applying the suppression/coalescing rules of
// spec §4.3. It is a no-op if the scope is disabled. parentID is not
// validated: an empty parentID (a mutation directly under the tree root)
// is queued like any other, and whether the parent is registered is not
// checked.
func (s *Scope) Create(parentID string, op Operation, subject datamodel.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return
	}

	candidate := &Notifier{ParentID: parentID, Op: op, Subject: subject}

	if !s.checkOnCreate {
		s.pool = append(s.pool, candidate)
		return
	}

	for i, existing := range s.pool {
		switch compare(existing, candidate) {
		case cmpEqual:
			return // duplicate: drop the new one
		case cmpOpposite:
			s.pool = append(s.pool[:i], s.pool[i+1:]...)
			return // ADD/REMOVE annihilate: drop both
		case cmpOverride:
			s.pool = append(s.pool[:i], s.pool[i+1:]...)
			s.pool = append(s.pool, candidate)
			return
		}
	}

	s.pool = append(s.pool, candidate)
}

// NotifyMutation implements datamodel.NotifierSink, translating the
// package-neutral NotifierOp into this package's Operation and forwarding
// to Create. A *Scope installed on a context via datamodel.WithNotifierSink
// is how AttachTo/DetachFrom/NotifyUpdate reach back into the notifier
// engine without datamodel importing this package.
func (s *Scope) NotifyMutation(parentID string, op datamodel.NotifierOp, subject datamodel.Object) {
	var nop Operation
	switch op {
	case datamodel.NotifierAdd:
		nop = OpAdd
	case datamodel.NotifierRemove:
		nop = OpRemove
	case datamodel.NotifierUpdate:
		nop = OpUpdate
	default:
		nop = OpUnknown
	}
	s.Create(parentID, nop, subject)
}

// GetMessage flushes pending notifiers into a Message. If all is false,
// only the single oldest notifier is flushed (spec §4.3).
func (s *Scope) GetMessage(all bool) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pool) == 0 {
		return &Message{}
	}

	if !all {
		n := s.pool[0]
		s.pool = s.pool[1:]
		return &Message{Notifiers: []*Notifier{n}}
	}

	msg := &Message{Notifiers: s.pool}
	s.pool = nil
	return msg
}

// Container is the subset of datamodel's Container interface Apply needs:
// attach/detach/update-child dispatch plus the array property name under
// which subject should be adopted. The notifier package does not import
// the concrete class registry; callers supply the property name via
// Apply's property argument since a bare Operation carries no schema.
type Container = datamodel.Container

// ApplyResult reports the outcome of replaying one notifier.
type ApplyResult struct {
	Applied bool
	Err     error
}

// Apply replays a single notifier against the consumer's in-memory graph,
// per spec §4.3's replay contract. scope is disabled for the duration of
// the call so that applying a notifier never re-emits one; ctx is still
// threaded with this scope installed as the NotifierSink, since disabling
// only suppresses Create, not the AttachTo/DetachFrom call itself. property
// names the array property on the resolved parent that subject belongs
// under (the consumer must know its own schema to supply this; the dbstore
// processor instead talks to dbarchive directly and never calls Apply).
// populate, if non-nil, is fed (on ADD/UPDATE) or evicted from (on REMOVE)
// as the graph changes, per spec's data-flow line: consumers replay a
// notifier into their graph "optionally populating" the object cache.
func (s *Scope) Apply(ctx context.Context, n *Notifier, property string, populate *cache.Cache) ApplyResult {
	previous := s.SetEnabled(false)
	defer s.SetEnabled(previous)
	ctx = datamodel.WithNotifierSink(ctx, s)

	parentObj := datamodel.Find(n.ParentID)

	if parentObj == nil {
		if n.Op == OpUpdate {
			if subjectPublic, ok := n.Subject.(interface{ PublicID() string }); ok {
				if existing := datamodel.Find(subjectPublic.PublicID()); existing != nil {
					return applyUpdateFallback(existing, n.Subject)
				}
			}
		}
		return ApplyResult{Applied: false, Err: fmt.Errorf("notifier: parent %q not found", n.ParentID)}
	}

	parent, ok := parentObj.(Container)
	if !ok {
		return ApplyResult{Applied: false, Err: fmt.Errorf("notifier: parent %q is not a container", n.ParentID)}
	}

	switch n.Op {
	case OpAdd:
		if !datamodel.AttachTo(ctx, n.Subject, parent, property) {
			return ApplyResult{Applied: false, Err: fmt.Errorf("notifier: attach failed")}
		}
		feedCache(populate, n.Subject)
	case OpRemove:
		if !datamodel.DetachFrom(ctx, n.Subject, parent, property) {
			return ApplyResult{Applied: false, Err: fmt.Errorf("notifier: detach failed")}
		}
		removeFromCache(populate, n.Subject)
	case OpUpdate:
		if !parent.UpdateChild(n.Subject) {
			return ApplyResult{Applied: false, Err: fmt.Errorf("notifier: updateChild failed")}
		}
		feedCache(populate, n.Subject)
	default:
		return ApplyResult{Applied: false, Err: fmt.Errorf("notifier: unknown operation")}
	}

	return ApplyResult{Applied: true}
}

// feedCache pushes subject into populate under its own publicID, a no-op if
// populate is nil or subject is not a PublicObject.
func feedCache(populate *cache.Cache, subject datamodel.Object) {
	if populate == nil {
		return
	}
	if pub, ok := subject.(interface{ PublicID() string }); ok {
		populate.Feed(pub.PublicID(), subject)
	}
}

// removeFromCache evicts subject's entry from populate, a no-op if populate
// is nil or subject is not a PublicObject.
func removeFromCache(populate *cache.Cache, subject datamodel.Object) {
	if populate == nil {
		return
	}
	if pub, ok := subject.(interface{ PublicID() string }); ok {
		populate.Remove(pub.PublicID())
	}
}

// applyUpdateFallback implements the UPDATE-without-parent path: it copies
// the subject's fields onto the already-registered object through that
// object's Assign method. No further update step runs after Assign. An
// object without an Assign method, or an Assign that returns false, gives
// a failed ApplyResult with an error.
func applyUpdateFallback(existing datamodel.Object, subject datamodel.Object) ApplyResult {
	type assigner interface {
		Assign(other datamodel.Object) bool
	}
	a, ok := existing.(assigner)
	if !ok {
		return ApplyResult{Applied: false, Err: fmt.Errorf("notifier: object does not support assign")}
	}
	if !a.Assign(subject) {
		return ApplyResult{Applied: false, Err: fmt.Errorf("notifier: assign failed (type mismatch)")}
	}
	return ApplyResult{Applied: true}
}
