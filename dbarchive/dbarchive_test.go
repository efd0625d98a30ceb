package dbarchive_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scnotify.dev/archive"
	"scnotify.dev/cache"
	"scnotify.dev/core"
	"scnotify.dev/datamodel"
	"scnotify.dev/dbarchive"
	"scnotify.dev/dbdriver"
)

func testVersion() archive.Version { return archive.Version{Major: 0, Minor: 13} }

// fakeRow is a pgx.Row stub that assigns a canned value slice into
// whatever pointer types Scan receives, generically via reflection
// (dbarchive only ever scans *int64 and *any).
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if i >= len(r.values) {
			continue
		}
		rv := reflect.ValueOf(d).Elem()
		v := r.values[i]
		if v == nil {
			continue
		}
		rv.Set(reflect.ValueOf(v))
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

// fakeRows is a pgx.Rows stub serving a fixed set of rows, each a []any of
// column values assigned into Scan's destination pointers by reflection.
type fakeRows struct {
	idx    int
	values [][]any
	err    error
}

func (r *fakeRows) Close()                                      {}
func (r *fakeRows) Err() error                                  { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag               { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                      { return r.values[r.idx-1], nil }
func (r *fakeRows) RawValues() [][]byte                         { return nil }
func (r *fakeRows) Conn() *pgx.Conn                             { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.values) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.values[r.idx-1]
	for i, d := range dest {
		if i >= len(row) || row[i] == nil {
			continue
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

// fakeDriver is a minimal dbdriver.Interface recording every Exec call and
// serving scripted QueryRow/Query/LastInsertID responses, since no real
// Postgres is available to drive these tests against.
type fakeDriver struct {
	dialect      dbdriver.Dialect
	execCalls    []execCall
	execErr      error
	nextOID      int64
	queryRowFunc func(sql string, args []any) fakeRow
	queryFunc    func(sql string, args []any) (pgx.Rows, error)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{dialect: dbdriver.DialectPostgres, nextOID: 1}
}

func (f *fakeDriver) Connect(ctx context.Context, dsn string) error { return nil }
func (f *fakeDriver) Disconnect() error                             { return nil }
func (f *fakeDriver) IsConnected() bool                             { return true }

func (f *fakeDriver) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	f.execCalls = append(f.execCalls, execCall{sql: sql, args: args})
	if f.execErr != nil {
		return 0, f.execErr
	}
	return 1, nil
}

func (f *fakeDriver) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.queryFunc != nil {
		return f.queryFunc(sql, args)
	}
	return nil, errors.New("fakeDriver: Query not scripted")
}

func (f *fakeDriver) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.queryRowFunc != nil {
		return f.queryRowFunc(sql, args)
	}
	return fakeRow{}
}

func (f *fakeDriver) LastInsertID(ctx context.Context, table string) (int64, error) {
	oid := f.nextOID
	f.nextOID++
	return oid, nil
}

func (f *fakeDriver) Escape(s string) string   { return s }
func (f *fakeDriver) Dialect() dbdriver.Dialect { return f.dialect }

type event struct {
	PublicIDVal string
	Name        string
	Picks       []*pick
}

func (e *event) ClassName() string { return "Event" }
func (e *event) PublicID() string  { return e.PublicIDVal }

type pick struct {
	PublicIDVal string
	Phase       string
}

func (p *pick) ClassName() string { return "Pick" }
func (p *pick) PublicID() string  { return p.PublicIDVal }

func testRegistry() *core.Registry {
	reg := core.NewRegistry()
	pickMeta := &core.MetaObject{
		ClassName:      "Pick",
		IsPublicObject: true,
		Properties: []core.MetaProperty{
			{
				Name: "phase",
				Kind: core.KindString,
				Get:  func(o any) any { return o.(*pick).Phase },
				Set: func(o any, v any) error {
					o.(*pick).Phase = v.(string)
					return nil
				},
			},
		},
	}
	eventMeta := &core.MetaObject{
		ClassName:      "Event",
		IsPublicObject: true,
		Properties: []core.MetaProperty{
			{
				Name: "name",
				Kind: core.KindString,
				Get:  func(o any) any { return o.(*event).Name },
				Set: func(o any, v any) error {
					o.(*event).Name = v.(string)
					return nil
				},
			},
			{
				Name:    "pick",
				Kind:    core.KindClass,
				IsArray: true,
				IsClass: true,
				Type:    "Pick",
				Count:   func(o any) int { return len(o.(*event).Picks) },
				At:      func(o any, i int) any { return o.(*event).Picks[i] },
				Add: func(o any, v any) error {
					p, ok := v.(*pick)
					if !ok {
						return errors.New("testRegistry: expected *pick")
					}
					e := o.(*event)
					e.Picks = append(e.Picks, p)
					return nil
				},
			},
		},
	}
	reg.MustRegister(&core.ClassDescriptor{Name: "Pick", New: func() any { return &pick{} }, Meta: pickMeta})
	reg.MustRegister(&core.ClassDescriptor{Name: "Event", New: func() any { return &event{} }, Meta: eventMeta})
	return reg
}

func TestWriteInsertsObjectPublicObjectAndClassRows(t *testing.T) {
	drv := newFakeDriver()
	reg := testRegistry()
	arc := dbarchive.New(drv, reg, testVersion())

	ev := &event{PublicIDVal: "evt:1", Name: "M5.0"}
	oid, err := arc.Write(context.Background(), ev, 0, false)
	require.NoError(t, err)
	assert.NotEqual(t, 0, int64(oid))

	var sqls []string
	for _, c := range drv.execCalls {
		sqls = append(sqls, c.sql)
	}
	assert.Contains(t, sqls[0], `INSERT INTO "Object"`)
	assert.Contains(t, sqls[1], `INSERT INTO "Event"`)
	assert.Contains(t, sqls[2], `INSERT INTO "PublicObject"`)
}

func TestWriteRecursesIntoArrayChildren(t *testing.T) {
	drv := newFakeDriver()
	reg := testRegistry()
	arc := dbarchive.New(drv, reg, testVersion())

	ev := &event{
		PublicIDVal: "evt:1",
		Name:        "M5.0",
		Picks:       []*pick{{PublicIDVal: "pick:1", Phase: "P"}, {PublicIDVal: "pick:2", Phase: "S"}},
	}
	_, err := arc.Write(context.Background(), ev, 0, false)
	require.NoError(t, err)

	var pickInserts int
	for _, c := range drv.execCalls {
		if strings.Contains(c.sql, `INSERT INTO "Pick"`) {
			pickInserts++
		}
	}
	assert.Equal(t, 2, pickInserts)
}

func TestWriteRejectsDuplicatePublicIDWhenUnique(t *testing.T) {
	drv := newFakeDriver()
	drv.queryRowFunc = func(sql string, args []any) fakeRow {
		return fakeRow{values: []any{int64(42)}} // simulates an existing row
	}
	reg := testRegistry()
	arc := dbarchive.New(drv, reg, testVersion())

	_, err := arc.Write(context.Background(), &event{PublicIDVal: "evt:1"}, 0, true)
	assert.ErrorIs(t, err, dbarchive.ErrDuplicateID)
}

func TestUpdateWritesOnlyScalarFields(t *testing.T) {
	drv := newFakeDriver()
	reg := testRegistry()
	arc := dbarchive.New(drv, reg, testVersion())

	err := arc.Update(context.Background(), &event{Name: "M5.2"}, 7)
	require.NoError(t, err)
	require.Len(t, drv.execCalls, 1)
	assert.Contains(t, drv.execCalls[0].sql, `UPDATE "Event" SET name=$1 WHERE _oid=$2`)
}

func TestDeleteTreeWalksDeepestFirst(t *testing.T) {
	drv := newFakeDriver()
	drv.queryRowFunc = func(sql string, args []any) fakeRow {
		return fakeRow{values: []any{int64(99)}} // ResolveOID
	}
	reg := testRegistry()
	arc := dbarchive.New(drv, reg, testVersion())

	err := arc.DeleteTree(context.Background(), "Event", "evt:1", dbarchive.DeleteTreeOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, drv.execCalls)
	// The Pick table (the nested class) must be deleted before Event's
	// own row is finally removed.
	pickIdx, eventIdx := -1, -1
	for i, c := range drv.execCalls {
		if pickIdx == -1 && strings.Contains(c.sql, `"Pick"`) {
			pickIdx = i
		}
		if strings.Contains(c.sql, `DELETE FROM "Event" WHERE _oid=$1`) {
			eventIdx = i
		}
	}
	require.NotEqual(t, -1, pickIdx)
	require.NotEqual(t, -1, eventIdx)
	assert.Less(t, pickIdx, eventIdx)
}

func TestDeleteTreeRejectsNonPostgresDialect(t *testing.T) {
	drv := newFakeDriver()
	drv.dialect = dbdriver.DialectMySQL
	reg := testRegistry()
	arc := dbarchive.New(drv, reg, testVersion())

	err := arc.DeleteTree(context.Background(), "Event", "evt:1", dbarchive.DeleteTreeOptions{})
	assert.ErrorIs(t, err, dbdriver.ErrUnsupportedDialect)
}

// TestGetObjectLoadsNestedChildren is the read-side counterpart to
// TestWriteRecursesIntoArrayChildren: an Event row with two Pick children
// must come back with both Picks populated, not left for the caller to
// fetch separately.
func TestGetObjectLoadsNestedChildren(t *testing.T) {
	drv := newFakeDriver()
	reg := testRegistry()
	arc := dbarchive.New(drv, reg, testVersion())

	drv.queryRowFunc = func(sql string, args []any) fakeRow {
		switch {
		case strings.Contains(sql, `FROM "PublicObject"`):
			return fakeRow{values: []any{int64(7)}}
		case strings.Contains(sql, `FROM "Event"`):
			return fakeRow{values: []any{"M5.0"}}
		case strings.Contains(sql, `FROM "Pick"`):
			if args[0].(int64) == 101 {
				return fakeRow{values: []any{"P"}}
			}
			return fakeRow{values: []any{"S"}}
		}
		return fakeRow{}
	}
	drv.queryFunc = func(sql string, args []any) (pgx.Rows, error) {
		if strings.Contains(sql, `SELECT _oid FROM "Pick" WHERE _parent_oid=$1`) {
			return &fakeRows{values: [][]any{{int64(101)}, {int64(102)}}}, nil
		}
		return nil, errors.New("fakeDriver: Query not scripted")
	}

	obj, oid, err := arc.GetObject(context.Background(), "Event", "evt:1", func() any { return reg.Create("Event") })
	require.NoError(t, err)
	assert.Equal(t, int64(7), int64(oid))

	ev := obj.(*event)
	assert.Equal(t, "M5.0", ev.Name)
	require.Len(t, ev.Picks, 2)
	assert.Equal(t, "P", ev.Picks[0].Phase)
	assert.Equal(t, "S", ev.Picks[1].Phase)
}

// loaderEvent embeds datamodel.PublicObject (unlike the bare event/pick
// fixtures above) so it satisfies datamodel.Object, the contract
// Archive.NewLoader's adapter returns.
type loaderEvent struct {
	datamodel.PublicObject
	Name string
}

func (e *loaderEvent) ClassName() string               { return "Event" }
func (e *loaderEvent) Accept(v datamodel.Visitor) bool { return datamodel.Accept(e, nil, v) }

// TestNewLoaderFeedsCacheFromArchive proves the cache.Loader NewLoader
// returns is the adapter cache.Loader's doc comment names: a
// cache miss on a publicID the process has never seen round-trips through
// this exact Archive's GetObject and lands in the cache.
func TestNewLoaderFeedsCacheFromArchive(t *testing.T) {
	drv := newFakeDriver()
	reg := core.NewRegistry()
	reg.MustRegister(&core.ClassDescriptor{
		Name: "Event",
		New:  func() any { return &loaderEvent{} },
		Meta: &core.MetaObject{
			ClassName:      "Event",
			IsPublicObject: true,
			Properties: []core.MetaProperty{
				{
					Name: "name",
					Kind: core.KindString,
					Get:  func(o any) any { return o.(*loaderEvent).Name },
					Set: func(o any, v any) error {
						o.(*loaderEvent).Name = v.(string)
						return nil
					},
				},
			},
		},
	})
	arc := dbarchive.New(drv, reg, testVersion())

	drv.queryRowFunc = func(sql string, args []any) fakeRow {
		switch {
		case strings.Contains(sql, `FROM "PublicObject"`):
			return fakeRow{values: []any{int64(9)}}
		case strings.Contains(sql, `FROM "Event"`):
			return fakeRow{values: []any{"M4.1"}}
		}
		return fakeRow{}
	}

	c, err := cache.New(4, arc.NewLoader(), nil)
	require.NoError(t, err)

	obj, cached, err := c.Find(context.Background(), "Event", "evt:1")
	require.NoError(t, err)
	assert.False(t, cached)
	require.NotNil(t, obj)
	assert.Equal(t, "M4.1", obj.(*loaderEvent).Name)
	assert.Equal(t, 1, c.Len())
}
