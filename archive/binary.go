package archive

import (
	"encoding/gob"
	"fmt"
	"io"

	"scnotify.dev/core"
)

// Binary is the gob-encoded sibling of JSON, sharing wireObject and the
// same MetaObject-driven traversal; only the primitive codec differs
// (spec §4.4: "the difference is encoding primitives only").
type Binary struct {
	baseValidity
	enc *gob.Encoder
	dec *gob.Decoder
}

func NewBinary(rw io.ReadWriter) *Binary {
	return &Binary{baseValidity: newBaseValidity(), enc: gob.NewEncoder(rw), dec: gob.NewDecoder(rw)}
}

func NewBinaryWriter(w io.Writer) *Binary {
	return &Binary{baseValidity: newBaseValidity(), enc: gob.NewEncoder(w)}
}

func NewBinaryReader(r io.Reader) *Binary {
	return &Binary{baseValidity: newBaseValidity(), dec: gob.NewDecoder(r)}
}

func (a *Binary) Write(reg *core.Registry, v any) error {
	classer, ok := v.(interface{ ClassName() string })
	if !ok {
		return fmt.Errorf("archive: %T has no ClassName()", v)
	}
	meta := reg.Meta(classer.ClassName())
	if meta == nil {
		return fmt.Errorf("archive: class %q not registered", classer.ClassName())
	}

	fields := make(map[string]any, meta.PropertyCount())
	for _, p := range meta.AllProperties() {
		if p.IsArray || p.Get == nil {
			continue
		}
		fields[p.Name] = p.Get(v)
	}

	return a.enc.Encode(wireObject{
		Class:   classer.ClassName(),
		Version: classWriteVersion(meta),
		Fields:  fields,
	})
}

func (a *Binary) Read(reg *core.Registry, v any) error {
	var wire wireObject
	if err := a.dec.Decode(&wire); err != nil {
		return fmt.Errorf("archive: decode: %w", err)
	}

	meta := reg.Meta(wire.Class)
	if meta == nil {
		return fmt.Errorf("archive: class %q not registered", wire.Class)
	}

	if wire.Version.NewerThan(classReadVersion(meta)) {
		a.SetValidity(false)
		return ErrSchemaTooNew
	}

	for _, p := range meta.AllProperties() {
		if p.IsArray || p.Set == nil {
			continue
		}
		raw, present := wire.Fields[p.Name]
		if !present {
			if !p.Optional {
				return fmt.Errorf("archive: missing mandatory field %q on %s", p.Name, wire.Class)
			}
			continue
		}
		if err := p.Set(v, raw); err != nil {
			return fmt.Errorf("archive: set %s.%s: %w", wire.Class, p.Name, err)
		}
	}

	return nil
}
