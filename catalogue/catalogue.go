// Package catalogue provides a minimal set of concrete classes —
// EventParameters, Event, Origin, Pick, Arrival — exercising every layer
// built so far (core registry, datamodel containment, notifier capture,
// serialization archives, the database archive, and the broker processor)
// against a small but real object graph.
package catalogue

import "scnotify.dev/core"

func init() {
	core.MustRegister(pickDescriptor())
	core.MustRegister(arrivalDescriptor())
	core.MustRegister(originDescriptor())
	core.MustRegister(eventDescriptor())
	core.MustRegister(eventParametersDescriptor())
}
