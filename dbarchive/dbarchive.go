// Package dbarchive implements the Database Archive (spec C5): a generic
// relational mapping of the object graph onto Object/PublicObject/
// per-class tables, keyed by core.MetaObject reflection the same way
// db/repository/postgres.go's typed extractors walk a map[string]any —
// except keyed by MetaProperty, not a fixed struct shape.
package dbarchive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scnotify.dev/archive"
	"scnotify.dev/core"
	"scnotify.dev/datamodel"
	"scnotify.dev/dbdriver"
	"scnotify.dev/scmlog"
)

// ErrDuplicateID is returned by Write when the caller demands publicID
// uniqueness and the database already holds a row for it (spec §4.5:
// "fails if publicID collision and caller demands uniqueness").
var ErrDuplicateID = errors.New("dbarchive: duplicate publicID")

// ErrQuery wraps any underlying driver failure surfaced by a write,
// update, remove, or read operation.
var ErrQuery = errors.New("dbarchive: query failed")

// ErrNotFound is returned by GetObject when no row matches the requested
// publicID.
var ErrNotFound = errors.New("dbarchive: object not found")

// Archive is the generic relational mapping described in spec §4.5.
type Archive struct {
	drv     dbdriver.Interface
	reg     *core.Registry
	version archive.Version
	log     *scmlog.ContextLogger
}

// New wraps drv with reg's class metadata. version is the schema version
// recorded in the connected database (as reported by Version()).
func New(drv dbdriver.Interface, reg *core.Registry, version archive.Version) *Archive {
	return &Archive{
		drv:     drv,
		reg:     reg,
		version: version,
		log:     scmlog.NewContextLogger(nil, map[string]any{"component": "dbarchive"}),
	}
}

// Driver returns the underlying DB interface (spec: "driver()").
func (a *Archive) Driver() dbdriver.Interface { return a.drv }

// Version returns the schema version recorded in the connected database
// (spec: "version()").
func (a *Archive) Version() archive.Version { return a.version }

func classOf(v any) (string, error) {
	classer, ok := v.(interface{ ClassName() string })
	if !ok {
		return "", fmt.Errorf("dbarchive: %T has no ClassName()", v)
	}
	return classer.ClassName(), nil
}

func publicIDOf(v any) (string, bool) {
	p, ok := v.(interface{ PublicID() string })
	if !ok {
		return "", false
	}
	return p.PublicID(), true
}

// scalarColumns returns the column names and bound values for v's own
// (non-array) properties, in stable declaration order.
func scalarColumns(meta *core.MetaObject, v any) ([]string, []any) {
	props := meta.AllProperties()
	cols := make([]string, 0, len(props))
	vals := make([]any, 0, len(props))
	for _, p := range props {
		if p.IsArray || p.Get == nil {
			continue
		}
		cols = append(cols, p.Name)
		vals = append(vals, p.Get(v))
	}
	return cols, vals
}

// Write inserts rows for obj and, recursively, every nested class-array
// child, under parentOID (spec §4.5: "write(obj, parentID?)"). requireUnique
// enforces publicID uniqueness for PublicObject classes.
func (a *Archive) Write(ctx context.Context, obj any, parentOID datamodel.OID, requireUnique bool) (datamodel.OID, error) {
	className, err := classOf(obj)
	if err != nil {
		return datamodel.InvalidOID, err
	}
	meta := a.reg.Meta(className)
	if meta == nil {
		return datamodel.InvalidOID, fmt.Errorf("dbarchive: class %q not registered", className)
	}

	if meta.IsPublicObject && requireUnique {
		if publicID, ok := publicIDOf(obj); ok {
			var existing int64
			err := a.drv.QueryRow(ctx, `SELECT _oid FROM "PublicObject" WHERE publicID=$1`, publicID).Scan(&existing)
			if err == nil {
				return datamodel.InvalidOID, ErrDuplicateID
			}
		}
	}

	oid, err := a.insertRow(ctx, className, meta, obj, parentOID)
	if err != nil {
		return datamodel.InvalidOID, err
	}

	if meta.IsPublicObject {
		if publicID, ok := publicIDOf(obj); ok {
			if _, err := a.drv.Exec(ctx, `INSERT INTO "PublicObject" (_oid, publicID) VALUES ($1, $2)`, int64(oid), publicID); err != nil {
				return datamodel.InvalidOID, fmt.Errorf("%w: insert PublicObject: %v", ErrQuery, err)
			}
		}
	}

	for _, p := range meta.ArrayClassProperties() {
		if p.Count == nil || p.At == nil {
			continue
		}
		n := p.Count(obj)
		for i := 0; i < n; i++ {
			child := p.At(obj, i)
			if _, err := a.Write(ctx, child, oid, requireUnique); err != nil {
				return datamodel.InvalidOID, err
			}
		}
	}

	return oid, nil
}

func (a *Archive) insertRow(ctx context.Context, className string, meta *core.MetaObject, obj any, parentOID datamodel.OID) (datamodel.OID, error) {
	if _, err := a.drv.Exec(ctx, `INSERT INTO "Object" (_parent_oid) VALUES ($1)`, int64(parentOID)); err != nil {
		return datamodel.InvalidOID, fmt.Errorf("%w: insert Object: %v", ErrQuery, err)
	}
	oid, err := a.drv.LastInsertID(ctx, "Object")
	if err != nil {
		return datamodel.InvalidOID, fmt.Errorf("%w: lastInsertID: %v", ErrQuery, err)
	}

	cols, vals := scalarColumns(meta, obj)
	if len(cols) > 0 {
		placeholders := make([]string, len(cols)+1)
		placeholders[0] = "$1"
		args := make([]any, 0, len(vals)+1)
		args = append(args, oid)
		for i, v := range vals {
			placeholders[i+1] = fmt.Sprintf("$%d", i+2)
			args = append(args, v)
		}
		query := fmt.Sprintf(
			`INSERT INTO %q (_oid, %s) VALUES (%s)`,
			className, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		)
		if _, err := a.drv.Exec(ctx, query, args...); err != nil {
			return datamodel.InvalidOID, fmt.Errorf("%w: insert %s: %v", ErrQuery, className, err)
		}
	}

	return datamodel.OID(oid), nil
}

// Update writes obj's own scalar fields to its existing row; children are
// untouched (spec §4.5: "update(obj, parentID?)"). oid identifies the row.
func (a *Archive) Update(ctx context.Context, obj any, oid datamodel.OID) error {
	className, err := classOf(obj)
	if err != nil {
		return err
	}
	meta := a.reg.Meta(className)
	if meta == nil {
		return fmt.Errorf("dbarchive: class %q not registered", className)
	}

	cols, vals := scalarColumns(meta, obj)
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(vals)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s=$%d", c, i+1)
		args = append(args, vals[i])
	}
	args = append(args, int64(oid))

	query := fmt.Sprintf(`UPDATE %q SET %s WHERE _oid=$%d`, className, strings.Join(sets, ", "), len(args))
	if _, err := a.drv.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: update %s: %v", ErrQuery, className, err)
	}
	return nil
}

// Remove deletes the single row for obj (spec §4.5: "remove(obj,
// parentID?)"); database-level FK ON DELETE is not assumed, so the caller
// is responsible for invoking DeleteTree first if cascading is required.
func (a *Archive) Remove(ctx context.Context, className string, oid datamodel.OID) error {
	meta := a.reg.Meta(className)
	if meta == nil {
		return fmt.Errorf("dbarchive: class %q not registered", className)
	}

	if _, err := a.drv.Exec(ctx, fmt.Sprintf(`DELETE FROM %q WHERE _oid=$1`, className), int64(oid)); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrQuery, className, err)
	}
	if meta.IsPublicObject {
		if _, err := a.drv.Exec(ctx, `DELETE FROM "PublicObject" WHERE _oid=$1`, int64(oid)); err != nil {
			return fmt.Errorf("%w: delete PublicObject: %v", ErrQuery, err)
		}
	}
	if _, err := a.drv.Exec(ctx, `DELETE FROM "Object" WHERE _oid=$1`, int64(oid)); err != nil {
		return fmt.Errorf("%w: delete Object: %v", ErrQuery, err)
	}
	return nil
}

// ResolveOID resolves a publicID to its row OID via the PublicObject table.
func (a *Archive) ResolveOID(ctx context.Context, publicID string) (datamodel.OID, error) {
	var oid int64
	err := a.drv.QueryRow(ctx, `SELECT _oid FROM "PublicObject" WHERE publicID=$1`, publicID).Scan(&oid)
	if err != nil {
		return datamodel.InvalidOID, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return datamodel.OID(oid), nil
}

// GetObject reads an object of the given class identified by publicID,
// populating scalar fields via newFn's allocated instance and, recursively,
// every nested class-array property reachable from it via _parent_oid
// (spec §4.5: "getObject(type, publicID) ... with nested children per
// property metadata"). Each descendant class is instantiated through the
// same registry newFn was drawn from, so the caller need only know the
// root class.
func (a *Archive) GetObject(ctx context.Context, className, publicID string, newFn func() any) (any, datamodel.OID, error) {
	meta := a.reg.Meta(className)
	if meta == nil {
		return nil, datamodel.InvalidOID, fmt.Errorf("dbarchive: class %q not registered", className)
	}

	oid, err := a.ResolveOID(ctx, publicID)
	if err != nil {
		return nil, datamodel.InvalidOID, err
	}

	obj, err := a.loadScalar(ctx, className, meta, oid, newFn)
	if err != nil {
		return nil, datamodel.InvalidOID, err
	}

	if err := a.loadChildren(ctx, className, meta, obj, oid); err != nil {
		return nil, datamodel.InvalidOID, err
	}

	return obj, oid, nil
}

// loadScalar allocates obj via newFn and populates its own (non-array)
// columns from the row identified by oid.
func (a *Archive) loadScalar(ctx context.Context, className string, meta *core.MetaObject, oid datamodel.OID, newFn func() any) (any, error) {
	props := meta.AllProperties()
	cols := make([]string, 0, len(props))
	for _, p := range props {
		if p.IsArray || p.Set == nil {
			continue
		}
		cols = append(cols, p.Name)
	}

	obj := newFn()
	if len(cols) == 0 {
		return obj, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %q WHERE _oid=$1`, strings.Join(cols, ", "), className)
	row := a.drv.QueryRow(ctx, query, int64(oid))

	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrQuery, className, err)
	}

	colIdx := 0
	for _, p := range props {
		if p.IsArray || p.Set == nil {
			continue
		}
		if err := p.Set(obj, dest[colIdx]); err != nil {
			return nil, fmt.Errorf("dbarchive: set %s.%s: %w", className, p.Name, err)
		}
		colIdx++
	}

	return obj, nil
}

// loadChildren populates each of obj's array-class properties with the
// rows whose _parent_oid is oid, recursing into each child's own nested
// children before adopting it via the property's Add function — the read
// side of Write's recursive descent, mirroring dumpPath's depth-first
// walk over ArrayClassProperties.
func (a *Archive) loadChildren(ctx context.Context, className string, meta *core.MetaObject, obj any, oid datamodel.OID) error {
	for _, p := range meta.ArrayClassProperties() {
		if p.Add == nil {
			return fmt.Errorf("dbarchive: %s.%s has no Add function registered", className, p.Name)
		}

		childMeta := a.reg.Meta(p.Type)
		if childMeta == nil {
			return fmt.Errorf("dbarchive: class %q not registered", p.Type)
		}

		query := fmt.Sprintf(`SELECT _oid FROM %q WHERE _parent_oid=$1`, p.Type)
		rows, err := a.drv.Query(ctx, query, int64(oid))
		if err != nil {
			return fmt.Errorf("%w: query %s children: %v", ErrQuery, p.Type, err)
		}

		var childOIDs []datamodel.OID
		for rows.Next() {
			var childOID int64
			if err := rows.Scan(&childOID); err != nil {
				rows.Close()
				return fmt.Errorf("%w: scan %s child oid: %v", ErrQuery, p.Type, err)
			}
			childOIDs = append(childOIDs, datamodel.OID(childOID))
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("%w: %s children: %v", ErrQuery, p.Type, err)
		}

		for _, childOID := range childOIDs {
			childType := p.Type
			child, err := a.loadScalar(ctx, childType, childMeta, childOID, func() any { return a.reg.Create(childType) })
			if err != nil {
				return err
			}
			if err := a.loadChildren(ctx, childType, childMeta, child, childOID); err != nil {
				return err
			}
			if err := p.Add(obj, child); err != nil {
				return fmt.Errorf("dbarchive: add %s to %s.%s: %w", childType, className, p.Name, err)
			}
		}
	}

	return nil
}
