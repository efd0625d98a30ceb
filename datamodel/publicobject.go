package datamodel

import (
	"fmt"
	"sync"
)

// PublicObject is an Object carrying a process-wide unique publicID (spec
// §3). Concrete classes embed PublicObject instead of Base.
type PublicObject struct {
	Base
	publicID string
}

// NewPublicObject constructs a PublicObject with the given publicID. It
// does not register the object; call Register explicitly to control
// bulk-load behavior.
func NewPublicObject(publicID string) PublicObject {
	return PublicObject{publicID: publicID}
}

func (p *PublicObject) PublicID() string { return p.publicID }

// publicObjectRegistry is the process-wide name -> object table (spec §3,
// §5 "must be protected if multiple threads register concurrently").
type publicObjectRegistry struct {
	mu      sync.RWMutex
	objects map[string]Object
}

var registry = &publicObjectRegistry{objects: make(map[string]Object)}

// Register inserts obj into the process-wide publicID table. Returns an
// error if the publicID is already registered to a different object,
// preserving spec I1 (no two registered objects share a publicID).
func Register(obj Object, publicID string) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if existing, ok := registry.objects[publicID]; ok && existing != obj {
		return fmt.Errorf("datamodel: publicID %q already registered", publicID)
	}
	registry.objects[publicID] = obj
	return nil
}

// Unregister removes publicID from the process-wide table, if present.
func Unregister(publicID string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.objects, publicID)
}

// Find returns the registered object for publicID, or nil.
func Find(publicID string) Object {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.objects[publicID]
}

// FindPublicObject is a typed convenience wrapper over Find for call sites
// that only ever expect a PublicObject-embedding type back.
func FindPublicObject(publicID string) (Object, bool) {
	o := Find(publicID)
	return o, o != nil
}

// ClearRegistry empties the process-wide table. Exposed for tests only;
// production code should never need to clear every registration at once.
func ClearRegistry() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.objects = make(map[string]Object)
}

// RegistrySize reports how many publicIDs are currently registered.
func RegistrySize() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return len(registry.objects)
}
