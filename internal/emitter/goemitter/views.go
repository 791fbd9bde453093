package goemitter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/swagger2client/gateway"
	"github.com/mark3labs/swagger2client/internal/naming"
	"github.com/mark3labs/swagger2client/internal/spec"
	"github.com/mark3labs/swagger2client/internal/typemap"
)

// Template data. Everything a template prints is computed here so the
// templates only iterate.

type clientView struct {
	Title         string
	Version       string
	DefaultURL    string
	GatewayImport string
	Schemes       []schemeView
}

type schemeView struct {
	Var  string
	ID   string
	Kind string
	Expr string
}

type modelsView struct {
	Title        string
	Declarations []declView
}

type declView struct {
	Name string
	Doc  []string
	Kind string // struct, enum, union, alias, defined
	// Type is the underlying type of alias and defined declarations, and the
	// base type of enums.
	Type     string
	Fields   []fieldView
	Consts   []constView
	Variants []variantView
}

type fieldView struct {
	Name string
	Type string
	Tag  string
	Doc  []string
}

type constView struct {
	Name  string
	Value string
}

type variantView struct {
	Tag  string
	Type string
}

type groupView struct {
	Package       string
	Tag           string
	ImportPath    string
	GatewayImport string
	Dispatch      bool
	Operations    []operationView
}

type operationView struct {
	Name       string
	ID         string
	Method     string
	Path       string
	Doc        []string
	Deprecated string
	Params     []paramView
	Body       *bodyView
	Security   [][]securityView
	Result     string
	Start      string
	Success    string
	Error      string
}

type paramView struct {
	Field    string
	Key      string
	Type     string
	In       string
	Required bool
	Doc      []string
}

type bodyView struct {
	Field       string
	Key         string
	Type        string
	ContentType string
	Required    bool
	Doc         []string
}

type securityView struct {
	Scheme string
	Scopes []string
}

type readmeView struct {
	Title       string
	Version     string
	Description string
	DefaultURL  string
	ImportPath  string
	Dispatch    bool
	Groups      []groupView
}

type renderer struct {
	sm         *spec.ServiceModel
	tm         *typemap.Model
	importPath string
	dispatch   bool
	schemeVars map[string]string
}

func newRenderer(sm *spec.ServiceModel, tm *typemap.Model, importPath string, dispatch bool) *renderer {
	r := &renderer{sm: sm, tm: tm, importPath: importPath, dispatch: dispatch, schemeVars: map[string]string{}}
	used := map[string]bool{"DefaultURL": true, "Init": true, "Gateway": true}
	for _, s := range sm.SecuritySchemes {
		r.schemeVars[s.SchemeID()] = unique(naming.Pascal(s.SchemeID())+"Scheme", used)
	}
	return r
}

func (r *renderer) clientView() clientView {
	v := clientView{
		Title:         naming.Description(r.sm.Title),
		Version:       naming.Description(r.sm.Version),
		DefaultURL:    r.sm.BaseURL,
		GatewayImport: GatewayImport,
	}
	for _, s := range r.sm.SecuritySchemes {
		v.Schemes = append(v.Schemes, schemeView{
			Var:  r.schemeVars[s.SchemeID()],
			ID:   s.SchemeID(),
			Kind: gateway.SchemeKind(s),
			Expr: schemeExpr(s),
		})
	}
	return v
}

func schemeExpr(s gateway.SecurityScheme) string {
	switch s := s.(type) {
	case gateway.BasicScheme:
		return fmt.Sprintf("gateway.BasicScheme{ID: %q}", s.ID)
	case gateway.BearerScheme:
		if s.Format != "" {
			return fmt.Sprintf("gateway.BearerScheme{ID: %q, Format: %q}", s.ID, s.Format)
		}
		return fmt.Sprintf("gateway.BearerScheme{ID: %q}", s.ID)
	case gateway.APIKeyScheme:
		in := "gateway.APIKeyInHeader"
		if s.In == gateway.APIKeyInQuery {
			in = "gateway.APIKeyInQuery"
		}
		return fmt.Sprintf("gateway.APIKeyScheme{ID: %q, In: %s, Name: %q}", s.ID, in, s.Name)
	}
	return "nil"
}

func (r *renderer) modelsView() modelsView {
	v := modelsView{Title: naming.Description(r.sm.Title)}
	used := make(map[string]bool, len(r.tm.Declarations))
	for _, d := range r.tm.Declarations {
		used[d.Name] = true
	}
	for _, d := range r.tm.Declarations {
		v.Declarations = append(v.Declarations, declaration(d, used))
	}
	return v
}

func declaration(d *typemap.Descriptor, used map[string]bool) declView {
	v := declView{Name: d.Name, Doc: docLines(d.Description)}
	switch d.Kind {
	case typemap.Struct:
		v.Kind = "struct"
		names := map[string]bool{}
		for _, f := range d.Fields {
			v.Fields = append(v.Fields, fieldView{
				Name: unique(naming.Pascal(f.Name), names),
				Type: fieldType(f.Type, f.Required, ""),
				Tag:  jsonTag(f.Name, f.Required),
				Doc:  docLines(f.Description),
			})
		}
	case typemap.Enum:
		v.Kind = "enum"
		v.Type = reprType(d.EnumBase)
		for _, val := range d.Values {
			v.Consts = append(v.Consts, constView{
				Name:  unique(d.Name+enumSuffix(val), used),
				Value: enumLiteral(val, d.EnumBase),
			})
		}
	case typemap.Union:
		v.Kind = "union"
		for _, vr := range d.Variants {
			v.Variants = append(v.Variants, variantView{Tag: vr.Tag, Type: typeExpr(vr.Type, "")})
		}
	case typemap.Primitive:
		v.Type = reprType(d.Repr)
		v.Kind = "defined"
		if d.Repr == typemap.ReprTime {
			v.Kind = "alias"
		}
	case typemap.Array:
		v.Kind, v.Type = "defined", "[]"+typeExpr(d.Elem, "")
	case typemap.Map:
		v.Kind, v.Type = "defined", "map[string]"+typeExpr(d.Elem, "")
	default:
		v.Kind, v.Type = "alias", "any"
	}
	return v
}

// groups partitions the operations by their first tag. Untagged operations
// form the default group.
func (r *renderer) groups() ([]groupView, error) {
	byTag := map[string][]*spec.Operation{}
	for i := range r.sm.Operations {
		op := &r.sm.Operations[i]
		tag := ""
		if len(op.Tags) > 0 {
			tag = op.Tags[0]
		}
		byTag[tag] = append(byTag[tag], op)
	}
	tags := make([]string, 0, len(byTag))
	for t := range byTag {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	used := map[string]bool{"client": true, "models": true}
	var out []groupView
	for _, tag := range tags {
		pkg := naming.Package(tag)
		if pkg == "client" || pkg == "models" {
			pkg += "api"
		}
		g := groupView{
			Package:       unique(pkg, used),
			Tag:           tag,
			ImportPath:    r.importPath,
			GatewayImport: GatewayImport,
			Dispatch:      r.dispatch,
		}
		for _, op := range byTag[tag] {
			ov, err := r.operation(op)
			if err != nil {
				return nil, err
			}
			g.Operations = append(g.Operations, ov)
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *renderer) operation(op *spec.Operation) (operationView, error) {
	types, ok := r.tm.Operations[op.ID]
	if !ok {
		return operationView{}, fmt.Errorf("goemitter: no types for operation %q", op.ID)
	}
	name := naming.Pascal(op.ID)
	method := strings.ToUpper(string(op.Method))
	v := operationView{
		Name:    name,
		ID:      op.ID,
		Method:  method,
		Path:    op.Path,
		Start:   gateway.ActionType(op.ID, gateway.PhaseStart),
		Success: gateway.ActionType(op.ID, gateway.PhaseSuccess),
		Error:   gateway.ActionType(op.ID, gateway.PhaseError),
		Result:  resultType(types.Result),
	}
	v.Doc = append(v.Doc, fmt.Sprintf("%s calls %s %s.", name, method, op.Path))
	if lines := docLines(op.Summary); len(lines) > 0 {
		v.Doc = append(append(v.Doc, ""), lines...)
	}
	if naming.Description(op.Description) != naming.Description(op.Summary) {
		if lines := docLines(op.Description); len(lines) > 0 {
			v.Doc = append(append(v.Doc, ""), lines...)
		}
	}
	if op.Deprecated {
		v.Deprecated = "the API marks this operation as deprecated."
	}

	fields := map[string]bool{}
	if op.Body != nil {
		fields["Body"] = true
	}
	for i, p := range op.Parameters {
		v.Params = append(v.Params, paramView{
			Field:    unique(naming.Pascal(p.Name), fields),
			Key:      p.Name,
			Type:     fieldType(types.Params[i], p.Required, "models."),
			In:       locationExpr(p.In),
			Required: p.Required,
			Doc:      docLines(fmt.Sprintf("%s parameter %q. %s", p.In, p.Name, p.Description)),
		})
	}
	if op.Body != nil {
		v.Body = &bodyView{
			Field:       "Body",
			Key:         op.Body.Name,
			Type:        fieldType(types.Body, op.Body.Required, "models."),
			ContentType: op.Body.ContentType,
			Required:    op.Body.Required,
			Doc:         docLines(op.Body.Description),
		}
	}
	for _, alt := range op.Security {
		reqs := make([]securityView, 0, len(alt))
		for _, req := range alt {
			if req.Scheme == nil {
				continue
			}
			scheme, ok := r.schemeVars[req.Scheme.SchemeID()]
			if !ok {
				return operationView{}, &spec.UnresolvedReferenceError{
					Ref:    "#/components/securitySchemes/" + req.Scheme.SchemeID(),
					From:   op.Pointer,
					Reason: "security scheme is not declared",
				}
			}
			reqs = append(reqs, securityView{Scheme: "client." + scheme, Scopes: req.Scopes})
		}
		v.Security = append(v.Security, reqs)
	}
	return v, nil
}

func (r *renderer) readmeView(groups []groupView) readmeView {
	return readmeView{
		Title:       r.sm.Title,
		Version:     r.sm.Version,
		Description: naming.Description(r.sm.Description),
		DefaultURL:  r.sm.BaseURL,
		ImportPath:  r.importPath,
		Dispatch:    r.dispatch,
		Groups:      groups,
	}
}

func locationExpr(l gateway.Location) string {
	switch l {
	case gateway.InPath:
		return "gateway.InPath"
	case gateway.InHeader:
		return "gateway.InHeader"
	case gateway.InBody:
		return "gateway.InBody"
	}
	return "gateway.InQuery"
}

// typeExpr returns the Go type of d. Declarations are qualified with qual.
func typeExpr(d *typemap.Descriptor, qual string) string {
	if d == nil {
		return "any"
	}
	if d.Name != "" {
		return qual + d.Name
	}
	switch d.Kind {
	case typemap.Primitive:
		return reprType(d.Repr)
	case typemap.Array:
		return "[]" + typeExpr(d.Elem, qual)
	case typemap.Map:
		return "map[string]" + typeExpr(d.Elem, qual)
	}
	return "any"
}

// fieldType returns the type of a struct or params field. Optional and
// nullable values are pointers unless the type already has a nil value;
// structs are always referenced through pointers.
func fieldType(d *typemap.Descriptor, required bool, qual string) string {
	t := typeExpr(d, qual)
	if d == nil || nilable(d) {
		return t
	}
	if d.Kind == typemap.Struct || !required || d.Nullable {
		return "*" + t
	}
	return t
}

// resultType is the type argument of gateway.Do and gateway.Invoke.
func resultType(d *typemap.Descriptor) string {
	if d == nil {
		return "gateway.NoContent"
	}
	t := typeExpr(d, "models.")
	if d.Kind == typemap.Struct || d.Kind == typemap.Union {
		return "*" + t
	}
	return t
}

func nilable(d *typemap.Descriptor) bool {
	switch d.Kind {
	case typemap.Array, typemap.Map, typemap.Any:
		return true
	case typemap.Primitive:
		return d.Repr == typemap.ReprBytes
	}
	return false
}

func reprType(r typemap.Repr) string {
	switch r {
	case typemap.ReprInt32:
		return "int32"
	case typemap.ReprInt64:
		return "int64"
	case typemap.ReprFloat32:
		return "float32"
	case typemap.ReprFloat64:
		return "float64"
	case typemap.ReprBool:
		return "bool"
	case typemap.ReprTime:
		return "time.Time"
	case typemap.ReprBytes:
		return "[]byte"
	}
	return "string"
}

func jsonTag(name string, required bool) string {
	value := name
	if !required {
		value += ",omitempty"
	}
	tag := "json:" + strconv.Quote(value)
	if strings.ContainsRune(tag, '`') {
		return strconv.Quote(tag)
	}
	return "`" + tag + "`"
}

func enumSuffix(v any) string {
	switch x := v.(type) {
	case string:
		if x == "" {
			return "Empty"
		}
		return naming.Pascal(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	}
	s := strings.NewReplacer("-", "Minus", ".", "_", "+", "").Replace(fmt.Sprint(v))
	return s
}

func enumLiteral(v any, base typemap.Repr) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if base == typemap.ReprInt32 || base == typemap.ReprInt64 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

// docLines splits a flattened description into comment lines of at most 76
// characters.
func docLines(s string) []string {
	s = naming.Description(s)
	if s == "" {
		return nil
	}
	var lines []string
	var line strings.Builder
	for _, w := range strings.Fields(s) {
		if line.Len() > 0 && line.Len()+1+len(w) > 76 {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(w)
	}
	return append(lines, line.String())
}

// unique returns name, or name with the lowest numeric suffix not in used,
// and records the result.
func unique(name string, used map[string]bool) string {
	out := name
	for i := 2; used[out]; i++ {
		out = fmt.Sprintf("%s%d", name, i)
	}
	used[out] = true
	return out
}
