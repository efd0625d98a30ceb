package dbarchive

import (
	"context"
	"errors"
	"fmt"

	"scnotify.dev/cache"
	"scnotify.dev/datamodel"
)

// NewLoader builds a cache.Loader backed by GetObject, instantiating each
// class through the same registry GetObject itself recurses with (spec
// §4.6: "optionally backed by a database archive for miss-loads").
func (a *Archive) NewLoader() cache.Loader {
	return func(ctx context.Context, class, publicID string) (datamodel.Object, bool, error) {
		className := class
		obj, _, err := a.GetObject(ctx, className, publicID, func() any { return a.reg.Create(className) })
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		dmObj, ok := obj.(datamodel.Object)
		if !ok {
			return nil, false, fmt.Errorf("dbarchive: %s does not implement datamodel.Object", className)
		}
		return dmObj, true, nil
	}
}
