// Package archive implements the Serialization Archives (spec C4):
// property-driven read/write of a catalogue object to an encoding-specific
// sink, all encodings sharing one MetaObject-reflected traversal instead of
// per-class marshal code.
package archive

import (
	"fmt"

	"scnotify.dev/core"
)

// Version is a schema (Major, Minor) pair, compared field-by-field (spec
// §4.4: "every schema carries (Major, Minor)").
type Version struct {
	Major int
	Minor int
}

// NewerThan reports whether v is strictly newer than other.
func (v Version) NewerThan(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor > other.Minor
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// CompiledVersion is the schema version this build was compiled against.
// Writers emit it for classes that declare no version of their own, and
// readers check such classes against it (see classWriteVersion).
var CompiledVersion = Version{Major: 0, Minor: 13}

// Archive is a polymorphic read/write target keyed by property name, driven
// by core.MetaObject reflection rather than struct tags (spec §9: "the
// metadata table is the single source of truth").
type Archive interface {
	// Read populates v (a pointer to a registered class) from the archive.
	// v's class must already be registered in reg.
	Read(reg *core.Registry, v any) error
	// Write serializes v into the archive.
	Write(reg *core.Registry, v any) error
	// Valid reports whether every Read so far succeeded without a
	// newer-than-compiled-schema skip (spec: "setValidity(false) is
	// raised on the archive").
	Valid() bool
	// SetValidity explicitly marks the archive invalid; Read calls this
	// when it skips a too-new class.
	SetValidity(valid bool)
}

// baseValidity is embedded by concrete archives to share the valid flag.
type baseValidity struct {
	valid bool
}

func newBaseValidity() baseValidity { return baseValidity{valid: true} }

func (b *baseValidity) Valid() bool           { return b.valid }
func (b *baseValidity) SetValidity(valid bool) { b.valid = valid }

// ErrSchemaTooNew is returned (and also reflected via SetValidity(false))
// when an archived class declares a version newer than the reading class's
// version (its declared one, else CompiledVersion).
var ErrSchemaTooNew = fmt.Errorf("archive: class version newer than compiled schema")

// declaredVersion returns a class's declared (Major, Minor), or the zero
// value if meta is nil or never set one.
func declaredVersion(meta *core.MetaObject) Version {
	if meta == nil {
		return Version{}
	}
	return Version{Major: meta.VersionMajor, Minor: meta.VersionMinor}
}

// classWriteVersion is the version a writer stamps onto a serialized
// instance: the class's own declared version, or CompiledVersion for
// classes that never declared one.
func classWriteVersion(meta *core.MetaObject) Version {
	if v := declaredVersion(meta); v != (Version{}) {
		return v
	}
	return CompiledVersion
}

// classReadVersion is what an incoming wire version is checked against:
// the reading class's own declared version, falling back to
// CompiledVersion the same way classWriteVersion does.
func classReadVersion(meta *core.MetaObject) Version {
	return classWriteVersion(meta)
}
