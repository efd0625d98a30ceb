package archive

import (
	"encoding/json"
	"fmt"
	"io"

	"scnotify.dev/core"
)

// wireObject is the on-the-wire shape for one serialized class instance:
// its class name (so the reader can look up the right MetaObject), its
// declared schema version, and a flat property-name -> value map built
// from MetaProperty reflection rather than Go struct tags.
type wireObject struct {
	Class   string         `json:"class"`
	Version Version        `json:"version"`
	Fields  map[string]any `json:"fields"`
}

// JSON is an Archive backed by a single io.ReadWriter, encoding each
// object as one newline-delimited wireObject (spec §4.4: "Binary, XML, and
// JSON encodings share the same property-driven traversal").
type JSON struct {
	baseValidity
	enc *json.Encoder
	dec *json.Decoder
}

// NewJSON wraps rw for both reading and writing.
func NewJSON(rw io.ReadWriter) *JSON {
	return &JSON{
		baseValidity: newBaseValidity(),
		enc:          json.NewEncoder(rw),
		dec:          json.NewDecoder(rw),
	}
}

// NewJSONWriter wraps a write-only sink.
func NewJSONWriter(w io.Writer) *JSON {
	return &JSON{baseValidity: newBaseValidity(), enc: json.NewEncoder(w)}
}

// NewJSONReader wraps a read-only source.
func NewJSONReader(r io.Reader) *JSON {
	return &JSON{baseValidity: newBaseValidity(), dec: json.NewDecoder(r)}
}

// Write serializes v property-by-property via reg's MetaObject for v's
// class, using v's ClassName() method to look up the descriptor.
func (a *JSON) Write(reg *core.Registry, v any) error {
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
		if p.IsArray {
			continue // child objects are written by the caller's own tree walk
		}
		if p.Get == nil {
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

// Read decodes one wireObject and applies its fields onto v via reg's
// MetaObject setters. If the wire version is newer than the reading
// class's version (its declared one, else CompiledVersion), the object is
// skipped (fields left untouched), SetValidity(false) is
// raised, and ErrSchemaTooNew is returned (spec §4.4: "the object is
// skipped ... the containing read continues").
func (a *JSON) Read(reg *core.Registry, v any) error {
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
