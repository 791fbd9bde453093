package spec

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/go-openapi/jsonpointer"
)

// SchemaID identifies a schema node by the canonical pointer it was built
// from, e.g. "#/components/schemas/Pet".
type SchemaID string

// SchemaKind is the structural kind of a resolved schema.
type SchemaKind string

const (
	KindPrimitive SchemaKind = "primitive"
	KindArray     SchemaKind = "array"
	KindObject    SchemaKind = "object"
	KindMap       SchemaKind = "map"
	KindEnum      SchemaKind = "enum"
	KindUnion     SchemaKind = "union"
	KindAny       SchemaKind = "any"
)

// UnionMode records which composition keyword produced a union.
type UnionMode string

const (
	OneOf UnionMode = "oneOf"
	AnyOf UnionMode = "anyOf"
)

// Field is one property of an object schema.
type Field struct {
	Name     string
	Schema   SchemaID
	Required bool
}

// Schema is a resolved schema node. Nodes refer to each other by SchemaID
// and live in the Resolver's arena, so cyclic graphs need no nesting.
type Schema struct {
	ID SchemaID
	// Name is the component name for nodes declared under
	// #/components/schemas, empty for inline schemas.
	Name string
	Kind SchemaKind
	// Types holds the declared non-null types in declaration order.
	Types    []string
	Format   string
	Nullable bool

	Items SchemaID
	// Fields are sorted by name.
	Fields []Field
	// Required is the schema's own required set, sorted. It may name
	// properties declared by allOf branches.
	Required []string
	// AdditionalProperties is the value schema of a map; empty means any.
	AdditionalProperties SchemaID
	Enum                 []any
	AllOf                []SchemaID
	Variants             []SchemaID
	UnionMode            UnionMode

	Description string
	// Recursive is set when the node was reached again while it was still
	// being built.
	Recursive bool
}

// Type returns the single declared type, or "" when none or several are
// declared.
func (s *Schema) Type() string {
	if len(s.Types) == 1 {
		return s.Types[0]
	}
	return ""
}

// Resolver dereferences pointers into shared schema nodes. Resolution is
// memoized by canonical pointer; a pointer requested while it is still being
// resolved yields the node under construction.
//
// A Resolver is not safe for concurrent use.
type Resolver struct {
	doc       *Document
	nodes     map[SchemaID]*Schema
	aliases   map[string]SchemaID
	resolving map[SchemaID]bool
	aliasing  map[string]bool
}

// NewResolver returns a resolver over doc.
func NewResolver(doc *Document) *Resolver {
	return &Resolver{
		doc:       doc,
		nodes:     make(map[SchemaID]*Schema),
		aliases:   make(map[string]SchemaID),
		resolving: make(map[SchemaID]bool),
		aliasing:  make(map[string]bool),
	}
}

// Resolve returns the schema node addressed by ref. Repeated calls with the
// same pointer, or with pointers aliasing the same node, return the same
// *Schema.
func (r *Resolver) Resolve(ref string) (*Schema, error) {
	canon, err := canonicalPointer(ref)
	if err != nil {
		return nil, err
	}
	return r.resolve(canon, "")
}

// Node returns the arena node with the given id.
func (r *Resolver) Node(id SchemaID) (*Schema, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// Nodes returns every resolved node sorted by id.
func (r *Resolver) Nodes() []*Schema {
	out := make([]*Schema, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup returns the object addressed by ref after following $ref chains,
// together with its canonical pointer. It is used for parameters, request
// bodies, responses and other non-schema components.
func (r *Resolver) Lookup(ref string) (string, map[string]any, error) {
	canon, err := canonicalPointer(ref)
	if err != nil {
		return "", nil, err
	}
	seen := map[string]bool{}
	from := ""
	for {
		if seen[canon] {
			return "", nil, &UnresolvedReferenceError{Ref: canon, From: from, Reason: "reference cycle"}
		}
		seen[canon] = true
		v, err := r.get(canon, from)
		if err != nil {
			return "", nil, err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return "", nil, &UnresolvedReferenceError{Ref: canon, From: from, Reason: "not an object"}
		}
		next, ok := m["$ref"].(string)
		if !ok {
			return canon, m, nil
		}
		target, err := canonicalPointer(next)
		if err != nil {
			if ue, ok := err.(*UnresolvedReferenceError); ok {
				ue.From = canon
			}
			return "", nil, err
		}
		from, canon = canon, target
	}
}

func (r *Resolver) resolve(canon, from string) (*Schema, error) {
	id := SchemaID(canon)
	if n, ok := r.nodes[id]; ok {
		if r.resolving[id] {
			n.Recursive = true
		}
		return n, nil
	}
	if target, ok := r.aliases[canon]; ok {
		return r.nodes[target], nil
	}

	v, err := r.get(canon, from)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	switch x := v.(type) {
	case map[string]any:
		m = x
	case bool:
		if !x {
			return nil, &UnsupportedSchemaConstructError{Pointer: canon, Construct: "schema", Detail: "false"}
		}
		m = map[string]any{}
	default:
		return nil, &UnresolvedReferenceError{Ref: canon, From: from, Reason: "not a schema object"}
	}

	if ref, ok := m["$ref"].(string); ok {
		return r.alias(canon, ref)
	}

	n := &Schema{ID: id, Name: componentName(canon)}
	r.nodes[id] = n
	r.resolving[id] = true
	defer delete(r.resolving, id)
	if err := r.fill(n, m); err != nil {
		delete(r.nodes, id)
		return nil, err
	}
	return n, nil
}

// alias resolves a node that is only a reference to the identity of its
// target.
func (r *Resolver) alias(canon, ref string) (*Schema, error) {
	if r.aliasing[canon] {
		n := r.pendingTarget(canon)
		if n == nil {
			return nil, &UnresolvedReferenceError{Ref: ref, From: canon, Reason: "reference cycle without a schema"}
		}
		n.Recursive = true
		r.aliases[canon] = n.ID
		return n, nil
	}
	target, err := canonicalPointer(ref)
	if err != nil {
		if ue, ok := err.(*UnresolvedReferenceError); ok {
			ue.From = canon
		}
		return nil, err
	}
	r.aliasing[canon] = true
	defer delete(r.aliasing, canon)
	n, err := r.resolve(target, canon)
	if err != nil {
		return nil, err
	}
	r.aliases[canon] = n.ID
	return n, nil
}

// pendingTarget follows the $ref chain starting at canon and returns the
// node under construction it reaches, or nil for a pure $ref loop.
func (r *Resolver) pendingTarget(canon string) *Schema {
	seen := map[string]bool{}
	for cur := canon; !seen[cur]; {
		seen[cur] = true
		if n, ok := r.nodes[SchemaID(cur)]; ok && r.resolving[n.ID] {
			return n
		}
		v, err := r.get(cur, "")
		if err != nil {
			return nil
		}
		m, _ := v.(map[string]any)
		ref, ok := m["$ref"].(string)
		if !ok {
			return nil
		}
		if cur, err = canonicalPointer(ref); err != nil {
			return nil
		}
	}
	return nil
}

func (r *Resolver) fill(n *Schema, m map[string]any) error {
	n.Description = str(m["description"])
	n.Format = str(m["format"])

	switch t := m["type"].(type) {
	case string:
		n.addType(t)
	case []any:
		for _, item := range t {
			n.addType(str(item))
		}
	}
	if b, _ := m["nullable"].(bool); b {
		n.Nullable = true
	}
	if b, _ := m["x-nullable"].(bool); b {
		n.Nullable = true
	}

	if values, ok := m["enum"].([]any); ok {
		for _, v := range values {
			if v == nil {
				n.Nullable = true
				continue
			}
			n.Enum = append(n.Enum, v)
		}
	}

	required := map[string]bool{}
	if list, ok := m["required"].([]any); ok {
		for _, name := range list {
			if s := str(name); s != "" && !required[s] {
				required[s] = true
				n.Required = append(n.Required, s)
			}
		}
		sort.Strings(n.Required)
	}

	if props, ok := m["properties"].(map[string]any); ok {
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child, err := r.child(n, "properties", name)
			if err != nil {
				return err
			}
			n.Fields = append(n.Fields, Field{Name: name, Schema: child.ID, Required: required[name]})
		}
	}

	if _, ok := m["items"].(map[string]any); ok {
		child, err := r.child(n, "items")
		if err != nil {
			return err
		}
		n.Items = child.ID
	}

	hasAdditional := false
	switch ap := m["additionalProperties"].(type) {
	case map[string]any:
		hasAdditional = true
		if len(ap) > 0 {
			child, err := r.child(n, "additionalProperties")
			if err != nil {
				return err
			}
			n.AdditionalProperties = child.ID
		}
	case bool:
		hasAdditional = ap
	}

	for _, key := range []string{"allOf", "oneOf", "anyOf"} {
		list, ok := m[key].([]any)
		if !ok {
			continue
		}
		for i := range list {
			child, err := r.child(n, key, fmt.Sprint(i))
			if err != nil {
				return err
			}
			if key == "allOf" {
				n.AllOf = append(n.AllOf, child.ID)
				continue
			}
			n.Variants = append(n.Variants, child.ID)
			if n.UnionMode == "" {
				n.UnionMode = UnionMode(key)
			}
		}
	}

	switch {
	case len(n.Variants) > 0:
		n.Kind = KindUnion
	case len(n.AllOf) > 0:
		n.Kind = KindObject
	case len(n.Enum) > 0:
		n.Kind = KindEnum
	case n.Type() == "array" || (n.Type() == "" && n.Items != ""):
		n.Kind = KindArray
	case len(n.Fields) > 0:
		if n.Type() != "" && n.Type() != "object" {
			// primitive carrying object keywords; the mapper rejects it
			n.Kind = KindPrimitive
		} else {
			n.Kind = KindObject
		}
	case n.Type() == "object" || hasAdditional:
		n.Kind = KindMap
	case len(n.Types) > 0:
		n.Kind = KindPrimitive
	default:
		n.Kind = KindAny
	}
	return nil
}

func (s *Schema) addType(t string) {
	switch t {
	case "":
	case "null":
		s.Nullable = true
	default:
		s.Types = append(s.Types, t)
	}
}

func (r *Resolver) child(parent *Schema, tokens ...string) (*Schema, error) {
	p := string(parent.ID)
	for _, t := range tokens {
		p += "/" + jsonpointer.Escape(t)
	}
	return r.resolve(p, string(parent.ID))
}

func (r *Resolver) get(canon, from string) (any, error) {
	if r.doc == nil {
		return nil, &UnresolvedReferenceError{Ref: canon, From: from, Reason: "no document"}
	}
	ptr, err := jsonpointer.New(strings.TrimPrefix(canon, "#"))
	if err != nil {
		return nil, &UnresolvedReferenceError{Ref: canon, From: from, Reason: "malformed pointer", Cause: err}
	}
	v, _, err := ptr.Get(r.doc.Root)
	if err != nil {
		return nil, &UnresolvedReferenceError{Ref: canon, From: from, Reason: "no such node", Cause: err}
	}
	if v == nil {
		return nil, &UnresolvedReferenceError{Ref: canon, From: from, Reason: "no such node"}
	}
	return v, nil
}

// canonicalPointer normalizes a local reference to "#/..." with percent
// escapes decoded. External references are not supported.
func canonicalPointer(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "#") {
		return "", &UnresolvedReferenceError{Ref: ref, Reason: "only local references (#/...) are supported"}
	}
	frag, err := url.PathUnescape(ref[1:])
	if err != nil {
		return "", &UnresolvedReferenceError{Ref: ref, Reason: "malformed pointer", Cause: err}
	}
	if frag != "" && !strings.HasPrefix(frag, "/") {
		return "", &UnresolvedReferenceError{Ref: ref, Reason: "malformed pointer"}
	}
	return "#" + frag, nil
}

var componentPrefixes = []string{"#/components/schemas/", "#/definitions/"}

func componentName(canon string) string {
	for _, prefix := range componentPrefixes {
		if rest, ok := strings.CutPrefix(canon, prefix); ok && !strings.Contains(rest, "/") {
			return jsonpointer.Unescape(rest)
		}
	}
	return ""
}
