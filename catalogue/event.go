package catalogue

import (
	"fmt"

	"scnotify.dev/core"
	"scnotify.dev/datamodel"
)

// Event groups the Origins associated with a single seismic event (spec
// scenario E3's cascade chain "EventParameters -> Event(e1) -> Origin(o1)").
type Event struct {
	datamodel.PublicObject
	Origins []*Origin
}

func NewEvent(publicID string) *Event {
	e := &Event{}
	e.PublicObject = datamodel.NewPublicObject(publicID)
	return e
}

func (e *Event) ClassName() string { return "Event" }

func (e *Event) Accept(v datamodel.Visitor) bool {
	children := make([]datamodel.Object, len(e.Origins))
	for i, o := range e.Origins {
		children[i] = o
	}
	return datamodel.Accept(e, children, v)
}

func (e *Event) AddChild(property string, child datamodel.Object) bool {
	if property != "origin" {
		return false
	}
	o, ok := child.(*Origin)
	if !ok {
		return false
	}
	for _, existing := range e.Origins {
		if existing.PublicID() == o.PublicID() {
			return false
		}
	}
	e.Origins = append(e.Origins, o)
	return true
}

func (e *Event) RemoveChild(property string, child datamodel.Object) bool {
	if property != "origin" {
		return false
	}
	o, ok := child.(*Origin)
	if !ok {
		return false
	}
	for i, existing := range e.Origins {
		if existing == o {
			e.Origins = append(e.Origins[:i], e.Origins[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Event) UpdateChild(child datamodel.Object) bool {
	o, ok := child.(*Origin)
	if !ok {
		return false
	}
	for _, existing := range e.Origins {
		if existing.PublicID() == o.PublicID() {
			return existing.Assign(o)
		}
	}
	return false
}

func (e *Event) Assign(other datamodel.Object) bool {
	_, ok := other.(*Event)
	return ok
}

func eventDescriptor() *core.ClassDescriptor {
	meta := &core.MetaObject{
		ClassName:      "Event",
		IsPublicObject: true,
		Properties: []core.MetaProperty{
			{
				Name:    "origin",
				Kind:    core.KindClass,
				IsArray: true,
				IsClass: true,
				Type:    "Origin",
				Count:   func(o any) int { return len(o.(*Event).Origins) },
				At:      func(o any, i int) any { return o.(*Event).Origins[i] },
				Add: func(o any, v any) error {
					origin, ok := v.(*Origin)
					if !ok {
						return fmt.Errorf("catalogue: expected *Origin, got %T", v)
					}
					e := o.(*Event)
					e.Origins = append(e.Origins, origin)
					return nil
				},
			},
		},
	}
	return &core.ClassDescriptor{Name: "Event", New: func() any { return &Event{} }, Meta: meta}
}
