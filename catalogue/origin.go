package catalogue

import (
	"context"
	"fmt"
	"time"

	"scnotify.dev/core"
	"scnotify.dev/datamodel"
)

// Origin is a hypocenter estimate, owning zero or more Arrivals (spec
// scenario E1: "Origin(id=O1) ... setLatitude(10.0)"; E3's cascade chain
// "Event(e1) -> Origin(o1) -> Arrival(a1)").
type Origin struct {
	datamodel.PublicObject
	Latitude  float64
	Longitude float64
	Time      datamodel.Time
	Arrivals  []*Arrival
}

func NewOrigin(publicID string) *Origin {
	o := &Origin{}
	o.PublicObject = datamodel.NewPublicObject(publicID)
	return o
}

func (o *Origin) ClassName() string { return "Origin" }

func (o *Origin) Accept(v datamodel.Visitor) bool {
	children := make([]datamodel.Object, len(o.Arrivals))
	for i, a := range o.Arrivals {
		children[i] = a
	}
	return datamodel.Accept(o, children, v)
}

// SetLatitude sets the origin's latitude, in degrees, and emits an UPDATE
// notifier through ctx's installed sink (spec §4.3).
func (o *Origin) SetLatitude(ctx context.Context, v float64) {
	o.Latitude = v
	datamodel.NotifyUpdate(ctx, o)
}

// SetLongitude sets the origin's longitude, in degrees, and emits an
// UPDATE notifier through ctx's installed sink (spec §4.3).
func (o *Origin) SetLongitude(ctx context.Context, v float64) {
	o.Longitude = v
	datamodel.NotifyUpdate(ctx, o)
}

func (o *Origin) AddChild(property string, child datamodel.Object) bool {
	if property != "arrival" {
		return false
	}
	a, ok := child.(*Arrival)
	if !ok {
		return false
	}
	for _, existing := range o.Arrivals {
		if existing.PublicID() == a.PublicID() {
			return false
		}
	}
	o.Arrivals = append(o.Arrivals, a)
	return true
}

func (o *Origin) RemoveChild(property string, child datamodel.Object) bool {
	if property != "arrival" {
		return false
	}
	a, ok := child.(*Arrival)
	if !ok {
		return false
	}
	for i, existing := range o.Arrivals {
		if existing == a {
			o.Arrivals = append(o.Arrivals[:i], o.Arrivals[i+1:]...)
			return true
		}
	}
	return false
}

func (o *Origin) UpdateChild(child datamodel.Object) bool {
	a, ok := child.(*Arrival)
	if !ok {
		return false
	}
	for _, existing := range o.Arrivals {
		if existing.PublicID() == a.PublicID() {
			return existing.Assign(a)
		}
	}
	return false
}

func (o *Origin) Assign(other datamodel.Object) bool {
	src, ok := other.(*Origin)
	if !ok {
		return false
	}
	o.Latitude = src.Latitude
	o.Longitude = src.Longitude
	o.Time = src.Time
	return true
}

func originDescriptor() *core.ClassDescriptor {
	meta := &core.MetaObject{
		ClassName:      "Origin",
		IsPublicObject: true,
		Properties: []core.MetaProperty{
			{
				Name: "latitude",
				Kind: core.KindFloat,
				Get:  func(o any) any { return o.(*Origin).Latitude },
				Set: func(o any, v any) error {
					o.(*Origin).Latitude = v.(float64)
					return nil
				},
			},
			{
				Name: "longitude",
				Kind: core.KindFloat,
				Get:  func(o any) any { return o.(*Origin).Longitude },
				Set: func(o any, v any) error {
					o.(*Origin).Longitude = v.(float64)
					return nil
				},
			},
			{
				Name: "time",
				Kind: core.KindDateTime,
				Get:  func(o any) any { return o.(*Origin).Time.Std() },
				Set: func(o any, v any) error {
					o.(*Origin).Time = datamodel.FromTime(v.(time.Time))
					return nil
				},
			},
			{
				Name:    "arrival",
				Kind:    core.KindClass,
				IsArray: true,
				IsClass: true,
				Type:    "Arrival",
				Count:   func(o any) int { return len(o.(*Origin).Arrivals) },
				At:      func(o any, i int) any { return o.(*Origin).Arrivals[i] },
				Add: func(o any, v any) error {
					a, ok := v.(*Arrival)
					if !ok {
						return fmt.Errorf("catalogue: expected *Arrival, got %T", v)
					}
					origin := o.(*Origin)
					origin.Arrivals = append(origin.Arrivals, a)
					return nil
				},
			},
		},
	}
	return &core.ClassDescriptor{Name: "Origin", New: func() any { return &Origin{} }, Meta: meta}
}
