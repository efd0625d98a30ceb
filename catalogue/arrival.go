package catalogue

import (
	"scnotify.dev/core"
	"scnotify.dev/datamodel"
)

// Arrival associates a Pick with an Origin via the pick's publicID (spec:
// "public-object references by publicID string, not by pointer"). It is
// itself registered as a PublicObject so the generic database archive can
// map it onto its own table and participate in cascade delete like any
// other nested class.
type Arrival struct {
	datamodel.PublicObject
	PickID string
	Phase  string
}

func NewArrival(publicID, pickID, phase string) *Arrival {
	a := &Arrival{PickID: pickID, Phase: phase}
	a.PublicObject = datamodel.NewPublicObject(publicID)
	return a
}

func (a *Arrival) ClassName() string { return "Arrival" }

func (a *Arrival) Accept(v datamodel.Visitor) bool {
	return datamodel.Accept(a, nil, v)
}

func (a *Arrival) Assign(other datamodel.Object) bool {
	o, ok := other.(*Arrival)
	if !ok {
		return false
	}
	a.PickID = o.PickID
	a.Phase = o.Phase
	return true
}

func arrivalDescriptor() *core.ClassDescriptor {
	meta := &core.MetaObject{
		ClassName:      "Arrival",
		IsPublicObject: true,
		Properties: []core.MetaProperty{
			{
				Name: "pickID",
				Kind: core.KindString,
				Get:  func(o any) any { return o.(*Arrival).PickID },
				Set: func(o any, v any) error {
					o.(*Arrival).PickID = v.(string)
					return nil
				},
			},
			{
				Name: "phase",
				Kind: core.KindString,
				Get:  func(o any) any { return o.(*Arrival).Phase },
				Set: func(o any, v any) error {
					o.(*Arrival).Phase = v.(string)
					return nil
				},
			},
		},
	}
	return &core.ClassDescriptor{Name: "Arrival", New: func() any { return &Arrival{} }, Meta: meta}
}
