package spec

import (
	"strings"

	"gopkg.in/yaml.v3"
)

var v2Methods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true,
}

// preprocessV2ForCompatibility rewrites Swagger 2.0 operations that the
// converter rejects:
//   - several body parameters are merged into one object-typed body;
//   - body parameters mixed with formData become formData fields and the
//     operation consumes multipart/form-data.
//
// On error the input is returned unchanged with changed=false.
func preprocessV2ForCompatibility(data []byte) ([]byte, bool, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return data, false, err
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		return data, false, nil
	}
	changed := false
	for _, item := range paths {
		pathItem, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for method, raw := range pathItem {
			if !v2Methods[strings.ToLower(method)] {
				continue
			}
			if op, ok := raw.(map[string]any); ok && rewriteV2Operation(op) {
				changed = true
			}
		}
	}
	if !changed {
		return data, false, nil
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return data, false, err
	}
	return out, true, nil
}

func rewriteV2Operation(op map[string]any) bool {
	params, _ := op["parameters"].([]any)
	var bodies, others []map[string]any
	hasForm := false
	for _, p := range params {
		pm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		switch strings.ToLower(str(pm["in"])) {
		case "body":
			bodies = append(bodies, pm)
			continue
		case "formdata":
			hasForm = true
		}
		others = append(others, pm)
	}

	switch {
	case len(bodies) > 0 && hasForm:
		rewritten := make([]any, 0, len(params))
		for _, p := range params {
			pm, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if strings.EqualFold(str(pm["in"]), "body") {
				pm = formFieldFromBody(pm)
			}
			rewritten = append(rewritten, pm)
		}
		op["parameters"] = rewritten
		consumes, _ := op["consumes"].([]any)
		for _, c := range consumes {
			if str(c) == "multipart/form-data" {
				return true
			}
		}
		op["consumes"] = append(consumes, "multipart/form-data")
		return true
	case len(bodies) > 1:
		props := map[string]any{}
		var required []any
		for _, b := range bodies {
			name := fieldName(b)
			schema := bodySchema(b)
			if schema == nil {
				schema = map[string]any{"type": "string"}
			}
			props[name] = schema
			if req, _ := b["required"].(bool); req {
				required = append(required, name)
			}
		}
		merged := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			merged["required"] = required
		}
		rewritten := []any{map[string]any{"in": "body", "name": "body", "schema": merged}}
		for _, o := range others {
			rewritten = append(rewritten, o)
		}
		op["parameters"] = rewritten
		return true
	}
	return false
}

func fieldName(pm map[string]any) string {
	if name := str(pm["name"]); name != "" {
		return name
	}
	return "field"
}

// bodySchema returns the schema of a body parameter, synthesizing one from
// type/items/format when the parameter carries no schema.
func bodySchema(pm map[string]any) map[string]any {
	if sch, ok := pm["schema"].(map[string]any); ok {
		return sch
	}
	t := str(pm["type"])
	if t == "" {
		return nil
	}
	m := map[string]any{"type": t}
	if it, ok := pm["items"].(map[string]any); ok {
		m["items"] = it
	}
	if f := str(pm["format"]); f != "" {
		m["format"] = f
	}
	return m
}

// formFieldFromBody turns a body parameter into a formData parameter.
// Referenced object schemas cannot be form fields and degrade to string.
func formFieldFromBody(pm map[string]any) map[string]any {
	out := map[string]any{"in": "formData", "name": fieldName(pm)}
	if desc := str(pm["description"]); desc != "" {
		out["description"] = desc
	}
	if req, ok := pm["required"].(bool); ok {
		out["required"] = req
	}
	schema := bodySchema(pm)
	typ := str(schema["type"])
	if typ == "" || typ == "object" {
		typ = "string"
	}
	out["type"] = typ
	if it, ok := schema["items"]; ok && typ == "array" {
		out["items"] = it
	}
	if f := str(schema["format"]); f != "" {
		out["format"] = f
	}
	return out
}
