package catalogue

import (
	"fmt"

	"scnotify.dev/core"
	"scnotify.dev/datamodel"
)

// EventParameters is the tree root: every Event and top-level Pick in a
// bulletin hangs off exactly one EventParameters instance (spec scenario
// E1/E2/E3's attach/detach/cascade-delete root).
type EventParameters struct {
	datamodel.Base
	Events []*Event
	Picks  []*Pick
}

func NewEventParameters() *EventParameters { return &EventParameters{} }

func (e *EventParameters) ClassName() string { return "EventParameters" }

func (e *EventParameters) Accept(v datamodel.Visitor) bool {
	children := make([]datamodel.Object, 0, len(e.Events)+len(e.Picks))
	for _, ev := range e.Events {
		children = append(children, ev)
	}
	for _, p := range e.Picks {
		children = append(children, p)
	}
	return datamodel.Accept(e, children, v)
}

func (e *EventParameters) AddChild(property string, child datamodel.Object) bool {
	switch property {
	case "event":
		ev, ok := child.(*Event)
		if !ok {
			return false
		}
		for _, existing := range e.Events {
			if existing.PublicID() == ev.PublicID() {
				return false
			}
		}
		e.Events = append(e.Events, ev)
		return true
	case "pick":
		p, ok := child.(*Pick)
		if !ok {
			return false
		}
		for _, existing := range e.Picks {
			if existing.PublicID() == p.PublicID() {
				return false
			}
		}
		e.Picks = append(e.Picks, p)
		return true
	default:
		return false
	}
}

func (e *EventParameters) RemoveChild(property string, child datamodel.Object) bool {
	switch property {
	case "event":
		ev, ok := child.(*Event)
		if !ok {
			return false
		}
		for i, existing := range e.Events {
			if existing == ev {
				e.Events = append(e.Events[:i], e.Events[i+1:]...)
				return true
			}
		}
		return false
	case "pick":
		p, ok := child.(*Pick)
		if !ok {
			return false
		}
		for i, existing := range e.Picks {
			if existing == p {
				e.Picks = append(e.Picks[:i], e.Picks[i+1:]...)
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (e *EventParameters) UpdateChild(child datamodel.Object) bool {
	switch c := child.(type) {
	case *Event:
		for _, existing := range e.Events {
			if existing.PublicID() == c.PublicID() {
				return existing.Assign(c)
			}
		}
	case *Pick:
		for _, existing := range e.Picks {
			if existing.PublicID() == c.PublicID() {
				return existing.Assign(c)
			}
		}
	}
	return false
}

func eventParametersDescriptor() *core.ClassDescriptor {
	meta := &core.MetaObject{
		ClassName: "EventParameters",
		Properties: []core.MetaProperty{
			{
				Name:    "event",
				Kind:    core.KindClass,
				IsArray: true,
				IsClass: true,
				Type:    "Event",
				Count:   func(o any) int { return len(o.(*EventParameters).Events) },
				At:      func(o any, i int) any { return o.(*EventParameters).Events[i] },
				Add: func(o any, v any) error {
					ev, ok := v.(*Event)
					if !ok {
						return fmt.Errorf("catalogue: expected *Event, got %T", v)
					}
					e := o.(*EventParameters)
					e.Events = append(e.Events, ev)
					return nil
				},
			},
			{
				Name:    "pick",
				Kind:    core.KindClass,
				IsArray: true,
				IsClass: true,
				Type:    "Pick",
				Count:   func(o any) int { return len(o.(*EventParameters).Picks) },
				At:      func(o any, i int) any { return o.(*EventParameters).Picks[i] },
				Add: func(o any, v any) error {
					p, ok := v.(*Pick)
					if !ok {
						return fmt.Errorf("catalogue: expected *Pick, got %T", v)
					}
					e := o.(*EventParameters)
					e.Picks = append(e.Picks, p)
					return nil
				},
			},
		},
	}
	return &core.ClassDescriptor{Name: "EventParameters", New: func() any { return &EventParameters{} }, Meta: meta}
}
