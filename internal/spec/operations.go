package spec

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-openapi/jsonpointer"

	"github.com/mark3labs/swagger2client/gateway"
	"github.com/mark3labs/swagger2client/internal/naming"
)

// BuildOption configures how the ServiceModel is built from a document.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[HttpMethod]struct{}
	pathRes     []*regexp.Regexp
	logger      *slog.Logger
}

// WithIncludeTags keeps only operations that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		for _, t := range tags {
			if t = strings.TrimSpace(t); t == "" {
				continue
			}
			if c.includeTags == nil {
				c.includeTags = make(map[string]struct{}, len(tags))
			}
			c.includeTags[t] = struct{}{}
		}
	}
}

// WithExcludeTags removes operations that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		for _, t := range tags {
			if t = strings.TrimSpace(t); t == "" {
				continue
			}
			if c.excludeTags == nil {
				c.excludeTags = make(map[string]struct{}, len(tags))
			}
			c.excludeTags[t] = struct{}{}
		}
	}
}

// WithMethods keeps only operations using one of the provided HTTP methods.
func WithMethods(methods []HttpMethod) BuildOption {
	return func(c *buildConfig) {
		for _, m := range methods {
			if c.methods == nil {
				c.methods = make(map[HttpMethod]struct{}, len(methods))
			}
			c.methods[HttpMethod(strings.ToLower(string(m)))] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only operations whose path matches at least one of
// the provided regular expressions. An invalid pattern matches nothing.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				re = regexp.MustCompile("a^$")
			}
			c.pathRes = append(c.pathRes, re)
		}
	}
}

// WithLogger sets the logger used for build diagnostics.
func WithLogger(l *slog.Logger) BuildOption {
	return func(c *buildConfig) { c.logger = l }
}

type builder struct {
	doc      *Document
	resolver *Resolver
	cfg      *buildConfig
	log      *slog.Logger
	schemes  map[string]gateway.SecurityScheme
}

// BuildServiceModel extracts one Operation per path item method, applying
// the tag, method and path filters. Operation ids are checked for
// uniqueness across the whole document, filtered operations included.
func BuildServiceModel(ctx context.Context, doc *Document, opts ...BuildOption) (*ServiceModel, error) {
	if doc == nil || doc.Root == nil {
		return nil, &SpecParseError{Code: InputError, Message: "nil document"}
	}
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &builder{doc: doc, resolver: NewResolver(doc), cfg: cfg, log: logger}

	sm := &ServiceModel{
		Title:       strings.TrimSpace(doc.Title()),
		Version:     strings.TrimSpace(doc.APIVersion()),
		Description: strings.TrimSpace(doc.Description()),
		BaseURL:     doc.BaseURL(),
		Servers:     doc.Servers(),
		Resolver:    b.resolver,
	}

	schemes, err := b.securitySchemes()
	if err != nil {
		return nil, err
	}
	sm.SecuritySchemes = schemes

	paths := object(doc.Root, "paths")
	pathKeys := make([]string, 0, len(paths))
	for p := range paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	ids := make(map[string]string)     // id -> operation pointer
	goNames := make(map[string]string) // Go identifier -> operation pointer
	tagSet := make(map[string]struct{})

	for _, p := range pathKeys {
		itemPtr, item, err := b.resolver.Lookup("#/paths/" + jsonpointer.Escape(p))
		if err != nil {
			return nil, err
		}
		for _, method := range methodOrder {
			raw, ok := item[string(method)].(map[string]any)
			if !ok {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			opPtr := itemPtr + "/" + string(method)

			id := strings.TrimSpace(str(raw["operationId"]))
			if id == "" {
				id = synthesizeOperationID(method, p)
			}
			if first, dup := ids[id]; dup {
				return nil, &DuplicateOperationIDError{ID: id, First: first, Second: opPtr}
			}
			ids[id] = opPtr
			goName := naming.Pascal(id)
			if first, dup := goNames[goName]; dup {
				return nil, &DuplicateOperationIDError{ID: goName, First: first, Second: opPtr}
			}
			goNames[goName] = opPtr

			tags := stringList(raw["tags"])
			if !b.keep(method, p, tags) {
				continue
			}
			op, err := b.operation(id, method, p, itemPtr, item, opPtr, raw)
			if err != nil {
				return nil, err
			}
			for _, t := range op.Tags {
				tagSet[t] = struct{}{}
			}
			logger.Debug("operation built", "id", op.ID, "method", op.Method, "path", op.Path)
			sm.Operations = append(sm.Operations, op)
		}
	}

	for t := range tagSet {
		sm.Tags = append(sm.Tags, t)
	}
	sort.Strings(sm.Tags)

	schemas := object(object(doc.Root, "components"), "schemas")
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	seen := make(map[SchemaID]bool)
	for _, name := range names {
		s, err := b.resolver.resolve("#/components/schemas/"+jsonpointer.Escape(name), "")
		if err != nil {
			return nil, err
		}
		if !seen[s.ID] {
			seen[s.ID] = true
			sm.Schemas = append(sm.Schemas, s)
		}
	}
	return sm, nil
}

func (b *builder) keep(method HttpMethod, path string, tags []string) bool {
	if len(b.cfg.methods) > 0 {
		if _, ok := b.cfg.methods[method]; !ok {
			return false
		}
	}
	if len(b.cfg.pathRes) > 0 {
		matched := false
		for _, re := range b.cfg.pathRes {
			if re.MatchString(path) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return allowByTags(tags, b.cfg)
}

func allowByTags(tags []string, cfg *buildConfig) bool {
	if len(cfg.includeTags) > 0 {
		ok := false
		for _, t := range tags {
			if _, yes := cfg.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range tags {
		if _, blocked := cfg.excludeTags[t]; blocked {
			return false
		}
	}
	return true
}

func (b *builder) operation(id string, method HttpMethod, path, itemPtr string, item map[string]any, opPtr string, raw map[string]any) (Operation, error) {
	op := Operation{
		ID:          id,
		Method:      method,
		Path:        path,
		Segments:    gateway.ParsePath(path),
		Tags:        stringList(raw["tags"]),
		Summary:     strings.TrimSpace(str(raw["summary"])),
		Description: strings.TrimSpace(str(raw["description"])),
		Pointer:     opPtr,
	}
	op.Deprecated, _ = raw["deprecated"].(bool)

	// Path-level parameters first, overridden by operation-level ones.
	merged := make(map[string]Parameter)
	for _, level := range []struct {
		ptr  string
		list any
	}{{itemPtr, item["parameters"]}, {opPtr, raw["parameters"]}} {
		list, _ := level.list.([]any)
		declared := make(map[string]bool, len(list))
		for i := range list {
			p, err := b.parameter(id, level.ptr+"/parameters/"+strconv.Itoa(i))
			if err != nil {
				return op, err
			}
			if p == nil {
				continue
			}
			key := paramKey(p.In, p.Name)
			if declared[key] {
				return op, &SpecParseError{Code: ParseError, Message: fmt.Sprintf("parameter %q in %s declared twice", p.Name, p.In), Pointer: level.ptr + "/parameters"}
			}
			declared[key] = true
			merged[key] = *p
		}
	}
	for _, p := range merged {
		op.Parameters = append(op.Parameters, p)
	}
	sortParameters(op.Parameters)

	// Call input is keyed by parameter name alone.
	byName := make(map[string]gateway.Location, len(op.Parameters))
	for _, p := range op.Parameters {
		if other, dup := byName[p.Name]; dup {
			return op, &SpecParseError{Code: ParseError, Message: fmt.Sprintf("parameter %q is declared in both %s and %s", p.Name, other, p.In), Pointer: opPtr}
		}
		byName[p.Name] = p.In
	}

	if err := checkPlaceholders(op); err != nil {
		return op, err
	}

	if _, ok := raw["requestBody"]; ok {
		body, err := b.requestBody(opPtr+"/requestBody", raw, op.Parameters)
		if err != nil {
			return op, err
		}
		op.Body = body
	}

	responses := object(raw, "responses")
	codes := make([]string, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		resp, err := b.response(opPtr+"/responses/"+jsonpointer.Escape(code), code)
		if err != nil {
			return op, err
		}
		if code == "default" {
			op.Default = &resp
			continue
		}
		op.Responses = append(op.Responses, resp)
	}

	// An operation's own security list, even an empty one, replaces the
	// document default.
	secPtr, secList := opPtr+"/security", raw["security"]
	if _, own := raw["security"]; !own {
		secPtr, secList = "#/security", b.doc.Root["security"]
		op.SecurityInherited = true
	}
	reqs, err := b.requirements(secList, secPtr)
	if err != nil {
		return op, err
	}
	op.Security = reqs
	return op, nil
}

func paramKey(in gateway.Location, name string) string { return string(in) + ":" + name }

// checkPlaceholders enforces a one-to-one match between path template
// placeholders and path parameters.
func checkPlaceholders(op Operation) error {
	placeholders := make(map[string]bool)
	for _, seg := range op.Segments {
		if seg.IsParam() {
			placeholders[seg.Param] = true
		}
	}
	params := make(map[string]bool)
	for _, p := range op.Parameters {
		if p.In == gateway.InPath {
			params[p.Name] = true
			if !placeholders[p.Name] {
				return &SpecParseError{Code: ParseError, Message: fmt.Sprintf("path parameter %q does not appear in %s", p.Name, op.Path), Pointer: op.Pointer}
			}
		}
	}
	for _, seg := range op.Segments {
		if seg.IsParam() && !params[seg.Param] {
			return &SpecParseError{Code: ParseError, Message: fmt.Sprintf("placeholder {%s} has no path parameter", seg.Param), Pointer: op.Pointer}
		}
	}
	return nil
}

// parameter builds the parameter at ptr. Cookie parameters are skipped.
func (b *builder) parameter(opID, ptr string) (*Parameter, error) {
	canon, m, err := b.resolver.Lookup(ptr)
	if err != nil {
		return nil, err
	}
	p := &Parameter{
		Name:        str(m["name"]),
		Description: strings.TrimSpace(str(m["description"])),
	}
	if p.Name == "" {
		return nil, &SpecParseError{Code: ParseError, Message: "parameter without a name", Pointer: canon}
	}
	p.Required, _ = m["required"].(bool)
	switch in := str(m["in"]); in {
	case "path":
		p.In = gateway.InPath
		p.Required = true
	case "query":
		p.In = gateway.InQuery
	case "header":
		p.In = gateway.InHeader
	case "cookie":
		b.log.Warn("skipping cookie parameter", "operation", opID, "name", p.Name)
		return nil, nil
	default:
		return nil, &SpecParseError{Code: ParseError, Message: fmt.Sprintf("parameter %q has unsupported location %q", p.Name, in), Pointer: canon}
	}

	switch {
	case m["schema"] != nil:
		s, err := b.resolver.resolve(canon+"/schema", canon)
		if err != nil {
			return nil, err
		}
		p.Schema = s
	case m["content"] != nil:
		s, _, err := b.contentSchema(canon, object(m, "content"))
		if err != nil {
			return nil, err
		}
		p.Schema = s
	}
	return p, nil
}

func (b *builder) requestBody(ptr string, raw map[string]any, params []Parameter) (*RequestBody, error) {
	canon, m, err := b.resolver.Lookup(ptr)
	if err != nil {
		return nil, err
	}
	body := &RequestBody{Description: strings.TrimSpace(str(m["description"]))}
	body.Required, _ = m["required"].(bool)
	schema, ct, err := b.contentSchema(canon, object(m, "content"))
	if err != nil {
		return nil, err
	}
	body.Schema, body.ContentType = schema, ct

	taken := make(map[string]bool, len(params))
	for _, p := range params {
		taken[p.Name] = true
	}
	for _, name := range []string{str(raw["x-codegen-request-body-name"]), "body", "requestBody", "payload"} {
		if name != "" && !taken[name] {
			body.Name = name
			break
		}
	}
	if body.Name == "" {
		return nil, &SpecParseError{Code: ParseError, Message: "no free name for the request body", Pointer: canon}
	}
	return body, nil
}

func (b *builder) response(ptr, status string) (Response, error) {
	canon, m, err := b.resolver.Lookup(ptr)
	if err != nil {
		return Response{}, err
	}
	resp := Response{Status: status, Description: strings.TrimSpace(str(m["description"]))}
	schema, ct, err := b.contentSchema(canon, object(m, "content"))
	if err != nil {
		return Response{}, err
	}
	resp.Schema, resp.ContentType = schema, ct
	return resp, nil
}

// contentSchema picks the preferred media type of a content map and
// resolves its schema. The schema is nil when the media type declares none.
func (b *builder) contentSchema(canon string, content map[string]any) (*Schema, string, error) {
	ct := preferredContentType(content)
	if ct == "" {
		return nil, "", nil
	}
	media := object(content, ct)
	if media["schema"] == nil {
		return nil, ct, nil
	}
	s, err := b.resolver.resolve(canon+"/content/"+jsonpointer.Escape(ct)+"/schema", canon)
	if err != nil {
		return nil, "", err
	}
	return s, ct, nil
}

var contentTypeRank = []func(string) bool{
	func(ct string) bool { return ct == "application/json" },
	gateway.IsJSON,
	func(ct string) bool { return ct == "application/x-www-form-urlencoded" },
	func(ct string) bool { return ct == "multipart/form-data" },
	func(ct string) bool { return ct == "text/plain" },
	func(ct string) bool { return ct == "application/octet-stream" },
}

func preferredContentType(content map[string]any) string {
	if len(content) == 0 {
		return ""
	}
	types := make([]string, 0, len(content))
	for ct := range content {
		types = append(types, ct)
	}
	sort.Strings(types)
	for _, match := range contentTypeRank {
		for _, ct := range types {
			if match(strings.ToLower(ct)) {
				return ct
			}
		}
	}
	return types[0]
}

func (b *builder) securitySchemes() ([]gateway.SecurityScheme, error) {
	declared := object(object(b.doc.Root, "components"), "securitySchemes")
	ids := make([]string, 0, len(declared))
	for id := range declared {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	b.schemes = make(map[string]gateway.SecurityScheme, len(ids))
	out := make([]gateway.SecurityScheme, 0, len(ids))
	for _, id := range ids {
		canon, m, err := b.resolver.Lookup("#/components/securitySchemes/" + jsonpointer.Escape(id))
		if err != nil {
			return nil, err
		}
		scheme, err := parseSecurityScheme(id, canon, m)
		if err != nil {
			return nil, err
		}
		b.schemes[id] = scheme
		out = append(out, scheme)
	}
	return out, nil
}

// parseSecurityScheme maps a declared scheme onto the gateway variants.
// oauth2 and openIdConnect obtain a token out of band and are sent as bearer
// tokens.
func parseSecurityScheme(id, canon string, m map[string]any) (gateway.SecurityScheme, error) {
	unsupported := func(format string, args ...any) error {
		return &SpecParseError{Code: ParseError, Message: fmt.Sprintf("security scheme %q: ", id) + fmt.Sprintf(format, args...), Pointer: canon}
	}
	switch typ := strings.ToLower(str(m["type"])); typ {
	case "http":
		switch scheme := strings.ToLower(str(m["scheme"])); scheme {
		case "basic":
			return gateway.BasicScheme{ID: id}, nil
		case "bearer":
			return gateway.BearerScheme{ID: id, Format: str(m["bearerFormat"])}, nil
		default:
			return nil, unsupported("unsupported http scheme %q", scheme)
		}
	case "basic":
		return gateway.BasicScheme{ID: id}, nil
	case "apikey":
		name := str(m["name"])
		if name == "" {
			return nil, unsupported("apiKey without a name")
		}
		switch in := str(m["in"]); in {
		case "header":
			return gateway.APIKeyScheme{ID: id, In: gateway.APIKeyInHeader, Name: name}, nil
		case "query":
			return gateway.APIKeyScheme{ID: id, In: gateway.APIKeyInQuery, Name: name}, nil
		default:
			return nil, unsupported("apiKey in %q is not supported", in)
		}
	case "oauth2", "openidconnect":
		return gateway.BearerScheme{ID: id}, nil
	default:
		return nil, unsupported("unsupported type %q", typ)
	}
}

// requirements converts security requirement alternatives in declared
// order. Schemes within one alternative are sorted by id; an empty
// alternative permits anonymous calls.
func (b *builder) requirements(list any, ptr string) ([]gateway.SecurityAlternative, error) {
	if list == nil {
		return nil, nil
	}
	alts, ok := list.([]any)
	if !ok {
		return nil, &SpecParseError{Code: ParseError, Message: "security must be an array", Pointer: ptr}
	}
	out := make([]gateway.SecurityAlternative, 0, len(alts))
	for i, alt := range alts {
		m, _ := alt.(map[string]any)
		ids := make([]string, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		reqs := make(gateway.SecurityAlternative, 0, len(ids))
		for _, id := range ids {
			scheme, ok := b.schemes[id]
			if !ok {
				return nil, &UnresolvedReferenceError{
					Ref:    "#/components/securitySchemes/" + jsonpointer.Escape(id),
					From:   ptr + "/" + strconv.Itoa(i),
					Reason: "security scheme is not declared",
				}
			}
			reqs = append(reqs, gateway.Requirement{Scheme: scheme, Scopes: stringList(m[id])})
		}
		out = append(out, reqs)
	}
	return out, nil
}

// synthesizeOperationID derives an id from method and path template:
// GET /pet/{petId} -> getPetByPetId.
func synthesizeOperationID(method HttpMethod, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(method)))
	n := b.Len()
	for _, seg := range gateway.ParsePath(path) {
		if seg.IsParam() {
			b.WriteString("By")
			writeUpperWords(&b, seg.Param)
			continue
		}
		writeUpperWords(&b, seg.Literal)
	}
	if b.Len() == n {
		b.WriteString("Root")
	}
	return b.String()
}

func writeUpperWords(b *strings.Builder, s string) {
	for _, w := range naming.Words(s) {
		r := []rune(w)
		b.WriteString(strings.ToUpper(string(r[0])))
		b.WriteString(string(r[1:]))
	}
}

func stringList(v any) []string {
	list, _ := v.([]any)
	var out []string
	for _, item := range list {
		if s := strings.TrimSpace(str(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
