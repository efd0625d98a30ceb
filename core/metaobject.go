package core

// PropertyKind enumerates the semantic types a MetaProperty can describe,
// per spec §3 ("string, int, float, datetime, enum, blob, nested class,
// array of nested class").
type PropertyKind int

const (
	KindString PropertyKind = iota
	KindInt
	KindFloat
	KindBool
	KindDateTime
	KindEnum
	KindBlob
	KindClass
)

// MetaEnum maps an enumeration's int values to and from their string
// names, used by properties of KindEnum.
type MetaEnum struct {
	Name       string
	ToString   map[int]string
	FromString map[string]int
}

func NewMetaEnum(name string, names map[int]string) *MetaEnum {
	e := &MetaEnum{Name: name, ToString: names, FromString: make(map[string]int, len(names))}
	for i, n := range names {
		e.FromString[n] = i
	}
	return e
}

// MetaProperty describes one field of a class: its wire name, semantic
// kind, structural flags, and typed accessor closures standing in for the
// getter/setter callbacks the spec describes (§4.1, §9 — "a table of
// descriptors with typed getter/setter callbacks keyed by class name").
type MetaProperty struct {
	Name     string
	Kind     PropertyKind
	Index    bool // part of the class's natural key (spec's "Index attribute")
	Optional bool
	IsArray  bool
	IsClass  bool   // true when Kind == KindClass, or an array thereof
	Type     string // referenced class name, when IsClass

	Enum *MetaEnum // set when Kind == KindEnum

	// Get/Set operate on a single scalar or class-typed field.
	Get func(obj any) any
	Set func(obj any, v any) error

	// Array accessors, populated only when IsArray is true.
	Count  func(obj any) int
	At     func(obj any, i int) any
	Add    func(obj any, v any) error
	RemoveAt func(obj any, i int) error
}

// MetaObject is the reflective descriptor for one class: its own
// properties plus a link to its base class's descriptor, mirroring the
// spec's "MetaObject for a class lists its MetaProperty entries plus a
// link to its base class's MetaObject".
type MetaObject struct {
	ClassName      string
	Base           *MetaObject
	Properties     []MetaProperty
	IsPublicObject bool

	// VersionMajor/VersionMinor are the schema version this class was
	// declared at (spec §4.4: "every schema carries (Major, Minor)").
	// Classes that predate versioning leave both at 0,0; archives then
	// write and check them at archive.CompiledVersion.
	VersionMajor int
	VersionMinor int
}

// PropertyCount returns the number of properties declared directly on this
// MetaObject (not counting the base class's).
func (m *MetaObject) PropertyCount() int { return len(m.Properties) }

// Property returns the i-th directly-declared property.
func (m *MetaObject) Property(i int) *MetaProperty { return &m.Properties[i] }

// AllProperties walks from the root base class down to this MetaObject,
// yielding every property in base-to-derived order — the flattened view
// used by the database archive to build per-class table columns.
func (m *MetaObject) AllProperties() []MetaProperty {
	var chain []*MetaObject
	for mo := m; mo != nil; mo = mo.Base {
		chain = append(chain, mo)
	}
	var all []MetaProperty
	for i := len(chain) - 1; i >= 0; i-- {
		all = append(all, chain[i].Properties...)
	}
	return all
}

// ArrayClassProperties returns the subset of AllProperties that are arrays
// of nested classes — the set dbarchive.DeleteTree walks recursively to
// build a cascade-delete path, grounded on dbstore.cpp's dumpPath.
func (m *MetaObject) ArrayClassProperties() []MetaProperty {
	var out []MetaProperty
	for _, p := range m.AllProperties() {
		if p.IsArray && p.IsClass {
			out = append(out, p)
		}
	}
	return out
}
