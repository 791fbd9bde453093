package gateway

import "strings"

// Location is where a parameter travels.
type Location string

const (
	InPath   Location = "path"
	InQuery  Location = "query"
	InHeader Location = "header"
	InBody   Location = "body"
)

// Param describes one non-body parameter of an operation.
type Param struct {
	Name     string
	In       Location
	Required bool
}

// Body describes the request body of an operation.
type Body struct {
	// Name is the key the body value is stored under in Params.
	Name        string
	ContentType string
	Required    bool
}

// Operation is the static description of one API call. Emitted code declares
// one per operation.
type Operation struct {
	ID     string
	Method string
	// Path is the path template, e.g. "/pet/{petId}".
	Path     string
	Params   []Param
	Body     *Body
	// Security lists the authorization alternatives in declared order. The
	// first alternative whose requirements all resolve is applied; none
	// means the call is anonymous.
	Security []SecurityAlternative
}

// Params is the call input keyed by parameter name. The body, if any, is
// stored under Operation.Body.Name.
type Params map[string]any

// Segment is one piece of a parsed path template: either a literal or a
// placeholder naming a path parameter.
type Segment struct {
	Literal string
	Param   string
}

// IsParam reports whether the segment is a placeholder.
func (s Segment) IsParam() bool { return s.Param != "" }

// ParsePath splits a path template into literal and placeholder segments.
// An unterminated brace is kept as literal text.
func ParsePath(template string) []Segment {
	var segs []Segment
	rest := template
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			segs = append(segs, Segment{Literal: rest})
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			segs = append(segs, Segment{Literal: rest})
			break
		}
		if open > 0 {
			segs = append(segs, Segment{Literal: rest[:open]})
		}
		name := rest[open+1 : open+end]
		if name == "" {
			segs = append(segs, Segment{Literal: "{}"})
		} else {
			segs = append(segs, Segment{Param: name})
		}
		rest = rest[open+end+1:]
	}
	return segs
}
