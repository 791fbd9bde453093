package spec

import (
	"sort"
	"strings"

	"github.com/mark3labs/swagger2client/gateway"
)

// Internal Model (IM) consumed by the type mapper and the emitters.

type HttpMethod string

const (
	GET     HttpMethod = "get"
	POST    HttpMethod = "post"
	PUT     HttpMethod = "put"
	DELETE  HttpMethod = "delete"
	PATCH   HttpMethod = "patch"
	HEAD    HttpMethod = "head"
	OPTIONS HttpMethod = "options"
	TRACE   HttpMethod = "trace"
)

// methodOrder is the order operations of one path item are visited in.
var methodOrder = []HttpMethod{GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS, TRACE}

type ServiceModel struct {
	Title       string
	Version     string
	Description string
	// BaseURL is the first server URL; generated clients use it unless the
	// gateway configuration overrides it.
	BaseURL string
	Servers []Server
	// Tags used by the built operations, sorted.
	Tags []string
	// Operations sorted by path, then method.
	Operations []Operation
	// SecuritySchemes declared by the document, sorted by id.
	SecuritySchemes []gateway.SecurityScheme
	// Schemas declared under #/components/schemas, sorted by name.
	Schemas []*Schema
	// Resolver owns every schema node referenced from this model.
	Resolver *Resolver
}

type Server struct {
	URL         string
	Description string
}

type Operation struct {
	ID          string
	Method      HttpMethod
	Path        string
	Segments    []gateway.Segment
	Tags        []string
	Summary     string
	Description string
	Deprecated  bool
	// Pointer addresses the operation object, e.g. "#/paths/~1pet/post".
	Pointer string

	// Parameters are sorted by location, then name.
	Parameters []Parameter
	Body       *RequestBody
	// Responses keyed by declared status code, sorted; Default holds the
	// "default" entry.
	Responses []Response
	Default   *Response

	// Security holds the requirement alternatives in declared order. Any
	// one alternative satisfies the call.
	Security []gateway.SecurityAlternative
	// SecurityInherited is set when the operation declares no security of
	// its own and uses the document default.
	SecurityInherited bool
}

type Parameter struct {
	Name        string
	In          gateway.Location
	Required    bool
	Description string
	Schema      *Schema
}

type RequestBody struct {
	// Name is the key under which callers pass the body.
	Name        string
	ContentType string
	Required    bool
	Description string
	Schema      *Schema
}

type Response struct {
	Status      string // 200, 2XX, default
	Description string
	ContentType string
	Schema      *Schema
}

// Success returns the response whose payload a successful call yields: the
// lowest 2xx response declaring a schema. It returns nil when success
// carries no payload.
func (o *Operation) Success() *Response {
	for i := range o.Responses {
		r := &o.Responses[i]
		if strings.HasPrefix(r.Status, "2") && r.Schema != nil {
			return r
		}
	}
	return nil
}

// GatewayOperation returns the runtime descriptor of o.
func (o *Operation) GatewayOperation() gateway.Operation {
	op := gateway.Operation{
		ID:       o.ID,
		Method:   strings.ToUpper(string(o.Method)),
		Path:     o.Path,
		Security: o.Security,
	}
	for _, p := range o.Parameters {
		op.Params = append(op.Params, gateway.Param{Name: p.Name, In: p.In, Required: p.Required})
	}
	if o.Body != nil {
		op.Body = &gateway.Body{Name: o.Body.Name, ContentType: o.Body.ContentType, Required: o.Body.Required}
	}
	return op
}

var locationOrder = map[gateway.Location]int{
	gateway.InPath:   0,
	gateway.InQuery:  1,
	gateway.InHeader: 2,
}

func sortParameters(params []Parameter) {
	sort.SliceStable(params, func(i, j int) bool {
		if params[i].In != params[j].In {
			return locationOrder[params[i].In] < locationOrder[params[j].In]
		}
		return params[i].Name < params[j].Name
	})
}
