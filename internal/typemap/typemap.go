// Package typemap maps resolved schema nodes to structural type descriptors
// that the emitters render as source types.
package typemap

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mark3labs/swagger2client/internal/naming"
	"github.com/mark3labs/swagger2client/internal/spec"
)

// Kind is the structural kind of a descriptor.
type Kind string

const (
	Primitive Kind = "primitive"
	Array     Kind = "array"
	Map       Kind = "map"
	Struct    Kind = "struct"
	Enum      Kind = "enum"
	Union     Kind = "union"
	Any       Kind = "any"
)

// Repr is the value representation chosen for a primitive. The format hint
// selects it; it never changes the primitive kind.
type Repr string

const (
	ReprString  Repr = "string"
	ReprInt32   Repr = "int32"
	ReprInt64   Repr = "int64"
	ReprFloat32 Repr = "float32"
	ReprFloat64 Repr = "float64"
	ReprBool    Repr = "bool"
	ReprTime    Repr = "time"
	ReprBytes   Repr = "bytes"
)

// Descriptor describes a type. Descriptors with a Name are declarations and
// are referred to by name; all others are rendered inline. Descriptors may
// form cycles through named declarations.
type Descriptor struct {
	Kind Kind
	// Name is set for declarations.
	Name   string
	Origin spec.SchemaID

	// Primitive is the declared primitive type: string, integer, number or
	// boolean. Repr is its representation.
	Primitive string
	Format    string
	Repr      Repr

	// Elem is the array element or map value type.
	Elem *Descriptor
	// Fields are sorted by name.
	Fields []Field
	// Values holds enum literals verbatim; EnumBase is their representation.
	Values   []any
	EnumBase Repr
	// Variants of a union. Which one applies is decided by the caller.
	Variants []Variant

	Nullable    bool
	Description string
}

// Field is one struct member.
type Field struct {
	// Name is the wire name.
	Name        string
	Type        *Descriptor
	Required    bool
	Description string
}

// Variant is one branch of a union.
type Variant struct {
	// Tag names the branch, e.g. "Cat" or "String".
	Tag  string
	Type *Descriptor
}

// Context carries naming information for inline declarations.
type Context struct {
	// Hint is the name given to an inline declaration.
	Hint string
	// Operation and Tag qualify names that collide with another origin.
	Operation string
	Tag       string
}

// Mapper maps schema nodes to descriptors. Mapping is memoized by origin so
// a node shared by several references yields one descriptor.
type Mapper struct {
	resolver *spec.Resolver
	byID     map[spec.SchemaID]*Descriptor
	names    map[string]spec.SchemaID
	decls    []*Descriptor
}

// New returns a mapper over the nodes owned by r.
func New(r *spec.Resolver) *Mapper {
	return &Mapper{
		resolver: r,
		byID:     make(map[spec.SchemaID]*Descriptor),
		names:    make(map[string]spec.SchemaID),
	}
}

// Declarations returns every named descriptor produced so far, sorted by name.
func (m *Mapper) Declarations() []*Descriptor {
	out := append([]*Descriptor(nil), m.decls...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Map returns the descriptor of s.
func (m *Mapper) Map(s *spec.Schema, ctx Context) (*Descriptor, error) {
	if s == nil {
		return &Descriptor{Kind: Any}, nil
	}
	if d, ok := m.byID[s.ID]; ok {
		return d, nil
	}
	if len(s.Types) > 1 {
		return nil, unsupported(s, "type", fmt.Sprintf("conflicting types %v", s.Types))
	}

	d := &Descriptor{Origin: s.ID, Nullable: s.Nullable, Description: s.Description}
	m.byID[s.ID] = d

	base := ctx.Hint
	if s.Name != "" {
		base = naming.Pascal(s.Name)
		ctx = Context{}
	}
	if base == "" {
		base = "Anonymous"
	}
	if s.Name != "" || s.Kind == spec.KindObject || s.Kind == spec.KindEnum || s.Kind == spec.KindUnion {
		d.Name = m.claim(base, s.ID, ctx)
		base = d.Name
		m.decls = append(m.decls, d)
	}
	inner := Context{Operation: ctx.Operation, Tag: ctx.Tag}

	switch s.Kind {
	case spec.KindPrimitive:
		if len(s.Fields) > 0 {
			return nil, unsupported(s, "type", fmt.Sprintf("object properties on %s", s.Type()))
		}
		repr, err := primitiveRepr(s, s.Type(), s.Format)
		if err != nil {
			return nil, err
		}
		d.Kind, d.Primitive, d.Format, d.Repr = Primitive, s.Type(), s.Format, repr

	case spec.KindArray:
		d.Kind = Array
		elem, err := m.child(s.Items, withHint(inner, base+"Item"))
		if err != nil {
			return nil, err
		}
		d.Elem = elem

	case spec.KindMap:
		d.Kind = Map
		elem, err := m.child(s.AdditionalProperties, withHint(inner, base+"Value"))
		if err != nil {
			return nil, err
		}
		d.Elem = elem

	case spec.KindObject:
		d.Kind = Struct
		fields, required, err := m.collectFields(s, map[spec.SchemaID]bool{})
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ft, err := m.child(fields[name], withHint(inner, base+naming.Pascal(name)))
			if err != nil {
				return nil, err
			}
			f := Field{Name: name, Type: ft, Required: required[name]}
			if n, ok := m.resolver.Node(fields[name]); ok {
				f.Description = n.Description
			}
			d.Fields = append(d.Fields, f)
		}

	case spec.KindEnum:
		d.Kind = Enum
		repr, err := enumBase(s)
		if err != nil {
			return nil, err
		}
		d.Primitive, d.Format, d.EnumBase = s.Type(), s.Format, repr
		if d.Primitive == "" {
			d.Primitive = primitiveOf(s.Enum[0])
		}
		d.Values = append([]any(nil), s.Enum...)

	case spec.KindUnion:
		if len(s.AllOf) > 0 {
			return nil, unsupported(s, "composition", "allOf combined with "+string(s.UnionMode))
		}
		d.Kind = Union
		tags := make(map[string]bool)
		for i, id := range s.Variants {
			vt, err := m.child(id, withHint(inner, fmt.Sprintf("%sVariant%d", base, i+1)))
			if err != nil {
				return nil, err
			}
			tag := variantTag(vt, i)
			for n := 2; tags[tag]; n++ {
				tag = fmt.Sprintf("%s%d", variantTag(vt, i), n)
			}
			tags[tag] = true
			d.Variants = append(d.Variants, Variant{Tag: tag, Type: vt})
		}

	default:
		d.Kind = Any
	}
	return d, nil
}

func withHint(ctx Context, hint string) Context {
	ctx.Hint = hint
	return ctx
}

func (m *Mapper) child(id spec.SchemaID, ctx Context) (*Descriptor, error) {
	if id == "" {
		return &Descriptor{Kind: Any}, nil
	}
	s, ok := m.resolver.Node(id)
	if !ok {
		return nil, &spec.UnresolvedReferenceError{Ref: string(id), Reason: "schema was never resolved"}
	}
	return m.Map(s, ctx)
}

// collectFields merges the field sets of all allOf branches in order, then
// the node's own properties; later entries override same-named fields. A
// field is required when any contributor requires it.
func (m *Mapper) collectFields(s *spec.Schema, visiting map[spec.SchemaID]bool) (map[string]spec.SchemaID, map[string]bool, error) {
	if visiting[s.ID] {
		return nil, nil, unsupported(s, "composition", "cyclic allOf")
	}
	visiting[s.ID] = true
	defer delete(visiting, s.ID)

	fields := make(map[string]spec.SchemaID)
	required := make(map[string]bool)
	for _, id := range s.AllOf {
		branch, ok := m.resolver.Node(id)
		if !ok {
			return nil, nil, &spec.UnresolvedReferenceError{Ref: string(id), From: string(s.ID), Reason: "schema was never resolved"}
		}
		switch branch.Kind {
		case spec.KindObject:
		case spec.KindMap, spec.KindAny:
			// contributes no named fields
		default:
			return nil, nil, unsupported(branch, "composition", fmt.Sprintf("allOf branch of kind %s", branch.Kind))
		}
		bf, br, err := m.collectFields(branch, visiting)
		if err != nil {
			return nil, nil, err
		}
		for name, id := range bf {
			fields[name] = id
		}
		for name := range br {
			required[name] = true
		}
	}
	for _, f := range s.Fields {
		fields[f.Name] = f.Schema
		if f.Required {
			required[f.Name] = true
		}
	}
	for _, name := range s.Required {
		required[name] = true
	}
	return fields, required, nil
}

// claim reserves a declaration name for origin. A name taken by another
// origin is qualified with the enclosing operation, then the tag, then a
// numeric suffix.
func (m *Mapper) claim(base string, origin spec.SchemaID, ctx Context) string {
	candidates := []string{base}
	if ctx.Operation != "" {
		candidates = append(candidates, naming.Pascal(ctx.Operation)+base)
	}
	if ctx.Tag != "" {
		candidates = append(candidates, naming.Pascal(ctx.Tag)+base)
	}
	for _, c := range candidates {
		if owner, taken := m.names[c]; !taken || owner == origin {
			m.names[c] = origin
			return c
		}
	}
	for i := 2; ; i++ {
		c := fmt.Sprintf("%s%d", base, i)
		if _, taken := m.names[c]; !taken {
			m.names[c] = origin
			return c
		}
	}
}

func primitiveRepr(s *spec.Schema, typ, format string) (Repr, error) {
	switch typ {
	case "string":
		switch format {
		case "date-time":
			return ReprTime, nil
		case "byte", "binary":
			return ReprBytes, nil
		default:
			return ReprString, nil
		}
	case "integer":
		switch format {
		case "", "int64":
			return ReprInt64, nil
		case "int32":
			return ReprInt32, nil
		}
		return "", unsupported(s, "integer format", fmt.Sprintf("%q", format))
	case "number":
		switch format {
		case "", "double":
			return ReprFloat64, nil
		case "float":
			return ReprFloat32, nil
		}
		return "", unsupported(s, "number format", fmt.Sprintf("%q", format))
	case "boolean":
		return ReprBool, nil
	}
	return "", unsupported(s, "type", fmt.Sprintf("%q", typ))
}

// enumBase checks that every literal has the same kind and returns the
// representation shared by all of them.
func enumBase(s *spec.Schema) (Repr, error) {
	typ := s.Type()
	if typ == "" {
		typ = primitiveOf(s.Enum[0])
	}
	for _, v := range s.Enum {
		got := primitiveOf(v)
		if got == "integer" && typ == "number" {
			continue
		}
		if got != typ {
			return "", unsupported(s, "enum", fmt.Sprintf("literal %v is not a %s", v, typ))
		}
	}
	switch typ {
	case "string":
		return ReprString, nil
	case "boolean":
		return ReprBool, nil
	}
	return primitiveRepr(s, typ, s.Format)
}

func primitiveOf(v any) string {
	switch x := v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		if x == math.Trunc(x) {
			return "integer"
		}
		return "number"
	case int, int32, int64:
		return "integer"
	}
	return fmt.Sprintf("%T", v)
}

func variantTag(d *Descriptor, i int) string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Kind == Primitive:
		return naming.Pascal(string(d.Repr))
	case d.Kind == Array:
		return "List"
	case d.Kind == Map:
		return "Object"
	}
	return fmt.Sprintf("Variant%d", i+1)
}

func unsupported(s *spec.Schema, construct, detail string) error {
	return &spec.UnsupportedSchemaConstructError{Pointer: string(s.ID), Construct: construct, Detail: strings.TrimSpace(detail)}
}
