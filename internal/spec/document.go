package spec

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	json "github.com/goccy/go-json"
	k8syaml "sigs.k8s.io/yaml"
)

// Document is a parsed specification: the raw JSON tree of an OpenAPI 3.x
// document. Swagger 2.0 input is converted to 3.x before it is stored.
// A Document is read-only once parsed.
type Document struct {
	// Location is the file path or URL the document came from, if any.
	Location string
	// Version is the declared version of the input ("2.0", "3.0.3", ...).
	Version string
	// Root is the document tree. Objects are map[string]any, arrays []any and
	// numbers float64.
	Root map[string]any
}

// Parse decodes a JSON or YAML document.
func Parse(ctx context.Context, data []byte, location string, opts ...Option) (*Document, error) {
	settings := newSettings(opts)
	logger := settings.logger()

	var root map[string]any
	if err := k8syaml.Unmarshal(data, &root); err != nil {
		return nil, &SpecParseError{Code: ParseError, Message: fmt.Sprintf("parse document: %v", err), Location: location, Cause: err}
	}
	if root == nil {
		return nil, &SpecParseError{Code: ParseError, Message: "document is empty", Location: location}
	}

	major, version, err := detectSpecVersion(root)
	if err != nil {
		return nil, &SpecParseError{Code: ParseError, Message: err.Error(), Location: location, Cause: err}
	}
	doc := &Document{Location: location, Version: version}

	switch major {
	case 3:
		if settings.Validate {
			if err := validateV3(ctx, root, location); err != nil {
				return nil, err
			}
		}
		doc.Root = root
	case 2:
		raw := data
		if fixed, changed, perr := preprocessV2ForCompatibility(raw); perr == nil && changed {
			logger.Debug("rewrote swagger 2.0 body parameters", "location", location)
			raw = fixed
		}
		v3doc, err := convertV2ToV3(raw)
		if err != nil {
			return nil, &SpecParseError{Code: ConversionError, Message: fmt.Sprintf("convert v2→v3: %v", err), Location: location, Cause: err}
		}
		if settings.Validate {
			if err := v3doc.Validate(ctx); err != nil {
				return nil, mapValidateOrParseErr(err, location)
			}
		}
		converted, err := json.Marshal(v3doc)
		if err != nil {
			return nil, &SpecParseError{Code: ConversionError, Message: fmt.Sprintf("encode converted document: %v", err), Location: location, Cause: err}
		}
		if err := json.Unmarshal(converted, &doc.Root); err != nil {
			return nil, &SpecParseError{Code: ConversionError, Message: fmt.Sprintf("decode converted document: %v", err), Location: location, Cause: err}
		}
	}

	if _, ok := doc.Root["info"].(map[string]any); !ok {
		return nil, &SpecParseError{Code: ParseError, Message: "missing info object", Location: location, Pointer: "#/info"}
	}
	if p, ok := doc.Root["paths"]; ok && p != nil {
		if _, ok := p.(map[string]any); !ok {
			return nil, &SpecParseError{Code: ParseError, Message: "paths must be an object", Location: location, Pointer: "#/paths"}
		}
	}
	logger.Debug("document parsed", "location", location, "version", version)
	return doc, nil
}

// Title returns info.title.
func (d *Document) Title() string { return str(object(d.Root, "info")["title"]) }

// APIVersion returns info.version.
func (d *Document) APIVersion() string { return str(object(d.Root, "info")["version"]) }

// Description returns info.description.
func (d *Document) Description() string { return str(object(d.Root, "info")["description"]) }

// Servers returns every declared server with variables substituted by their
// defaults.
func (d *Document) Servers() []Server {
	list, _ := d.Root["servers"].([]any)
	out := make([]Server, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		u := str(m["url"])
		for name, v := range object(m, "variables") {
			if vm, ok := v.(map[string]any); ok {
				u = strings.ReplaceAll(u, "{"+name+"}", str(vm["default"]))
			}
		}
		out = append(out, Server{URL: u, Description: str(m["description"])})
	}
	return out
}

// BaseURL returns the first server URL, or "" when none is declared.
func (d *Document) BaseURL() string {
	if servers := d.Servers(); len(servers) > 0 {
		return servers[0].URL
	}
	return ""
}

// detectSpecVersion returns 3 for OpenAPI v3, 2 for Swagger v2, else error.
func detectSpecVersion(root map[string]any) (int, string, error) {
	if s := strings.TrimSpace(str(root["openapi"])); strings.HasPrefix(s, "3.") {
		return 3, s, nil
	}
	if s := strings.TrimSpace(str(root["swagger"])); strings.HasPrefix(s, "2.") {
		return 2, s, nil
	}
	return 0, "", errors.New("missing or unknown version (expected 'openapi: 3.x' or 'swagger: 2.0')")
}

func convertV2ToV3(data []byte) (*openapi3.T, error) {
	raw, err := k8syaml.YAMLToJSON(data)
	if err != nil {
		return nil, err
	}
	var v2 openapi2.T
	if err := json.Unmarshal(raw, &v2); err != nil {
		return nil, err
	}
	return openapi2conv.ToV3(&v2)
}

func validateV3(ctx context.Context, root map[string]any, location string) error {
	raw, err := json.Marshal(root)
	if err != nil {
		return &SpecParseError{Code: ParseError, Message: err.Error(), Location: location, Cause: err}
	}
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return mapValidateOrParseErr(err, location)
	}
	if err := doc.Validate(ctx); err != nil {
		return mapValidateOrParseErr(err, location)
	}
	return nil
}

func mapValidateOrParseErr(err error, location string) error {
	code := ValidationError
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "parse") || strings.Contains(msg, "invalid character") {
		code = ParseError
	}
	return &SpecParseError{Code: code, Message: err.Error(), Location: location, Pointer: extractJSONPointer(err), Cause: err}
}

var jsonPtrRe = regexp.MustCompile(`#/[^\s'"]+`)

func extractJSONPointer(err error) string {
	if err == nil {
		return ""
	}
	var me openapi3.MultiError
	if errors.As(err, &me) && len(me) > 0 {
		return extractJSONPointer(me[0])
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if parts := se.JSONPointer(); len(parts) > 0 {
			return "#/" + strings.Join(parts, "/")
		}
	}
	return jsonPtrRe.FindString(err.Error())
}

func object(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	o, _ := m[key].(map[string]any)
	return o
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
