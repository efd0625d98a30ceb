package catalogue

import (
	"context"
	"time"

	"scnotify.dev/core"
	"scnotify.dev/datamodel"
)

// Pick is a phase pick, owned by an EventParameters (spec scenario E2: "Pick
// then attach/detach").
type Pick struct {
	datamodel.PublicObject
	Phase string
	Time  datamodel.Time
}

// NewPick allocates a detached Pick. Callers attach it via datamodel.AttachTo.
func NewPick(publicID string) *Pick {
	p := &Pick{}
	p.PublicObject = datamodel.NewPublicObject(publicID)
	return p
}

func (p *Pick) ClassName() string { return "Pick" }

func (p *Pick) Accept(v datamodel.Visitor) bool {
	return datamodel.Accept(p, nil, v)
}

// SetPhase sets the pick's phase hint and emits an UPDATE notifier through
// ctx's installed sink (spec §4.3).
func (p *Pick) SetPhase(ctx context.Context, phase string) {
	p.Phase = phase
	datamodel.NotifyUpdate(ctx, p)
}

// Assign overwrites p's fields from other, used by notifier's UPDATE replay
// fallback when the parent cannot be resolved.
func (p *Pick) Assign(other datamodel.Object) bool {
	o, ok := other.(*Pick)
	if !ok {
		return false
	}
	p.Phase = o.Phase
	p.Time = o.Time
	return true
}

func pickDescriptor() *core.ClassDescriptor {
	meta := &core.MetaObject{
		ClassName:      "Pick",
		IsPublicObject: true,
		Properties: []core.MetaProperty{
			{
				Name: "phase",
				Kind: core.KindString,
				Get:  func(o any) any { return o.(*Pick).Phase },
				Set: func(o any, v any) error {
					o.(*Pick).Phase = v.(string)
					return nil
				},
			},
			{
				Name: "time",
				Kind: core.KindDateTime,
				Get:  func(o any) any { return o.(*Pick).Time.Std() },
				Set: func(o any, v any) error {
					o.(*Pick).Time = datamodel.FromTime(v.(time.Time))
					return nil
				},
			},
		},
	}
	return &core.ClassDescriptor{Name: "Pick", New: func() any { return &Pick{} }, Meta: meta}
}
