package spec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/swagger2client/gateway"
)

const sampleSpec = `openapi: 3.0.0
info:
  title: Sample API
  version: "1.0.0"
  description: Demo
servers:
  - url: https://{region}.example.com/v1
    variables:
      region:
        default: eu
paths:
  /pets:
    parameters:
      - in: query
        name: limit
        required: false
        schema:
          type: integer
    get:
      summary: List pets
      description: Returns all pets
      tags: [read, animal]
      parameters:
        - in: query
          name: limit
          required: true
          schema:
            type: integer
        - in: cookie
          name: session
          schema:
            type: string
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: array
                items:
                  $ref: '#/components/schemas/Pet'
        default:
          description: error
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Error'
    post:
      summary: Create pet
      tags: [write, animal]
      requestBody:
        required: true
        content:
          application/xml:
            schema:
              $ref: '#/components/schemas/Pet'
          application/json:
            schema:
              $ref: '#/components/schemas/Pet'
      responses:
        "201":
          description: created
  /admin:
    get:
      summary: Admin only
      tags: [admin]
      responses:
        "200": { description: ok }
components:
  schemas:
    Pet:
      type: object
      required: [id, name]
      properties:
        id:
          type: integer
          format: int64
        name:
          type: string
    Error:
      type: object
      properties:
        message:
          type: string
`

func parseDoc(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := Parse(context.Background(), []byte(strings.TrimSpace(src)), "test.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func findOperation(t *testing.T, sm *ServiceModel, method HttpMethod, path string) Operation {
	t.Helper()
	for _, op := range sm.Operations {
		if op.Method == method && op.Path == path {
			return op
		}
	}
	t.Fatalf("operation %s %s not found", method, path)
	return Operation{}
}

func TestBuildServiceModel_Basic(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, sampleSpec)

	sm, err := BuildServiceModel(context.Background(), doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if sm.Title != "Sample API" {
		t.Errorf("title: got %q", sm.Title)
	}
	if sm.BaseURL != "https://eu.example.com/v1" {
		t.Errorf("base url: got %q", sm.BaseURL)
	}
	if len(sm.Operations) != 3 { // GET /admin, GET /pets, POST /pets
		t.Fatalf("operations: got %d", len(sm.Operations))
	}
	if sm.Operations[0].Path != "/admin" {
		t.Errorf("operations should be sorted by path, got %s first", sm.Operations[0].Path)
	}

	if len(sm.Schemas) != 2 || sm.Schemas[0].Name != "Error" || sm.Schemas[1].Name != "Pet" {
		t.Fatalf("schemas: got %+v", sm.Schemas)
	}
	pet := sm.Schemas[1]
	if pet.Kind != KindObject || len(pet.Fields) != 2 {
		t.Fatalf("pet: kind %s fields %d", pet.Kind, len(pet.Fields))
	}
	if pet.Fields[0].Name != "id" || !pet.Fields[0].Required {
		t.Errorf("pet.id: got %+v", pet.Fields[0])
	}

	post := findOperation(t, sm, POST, "/pets")
	if post.Body == nil || !post.Body.Required {
		t.Fatalf("post /pets: expected required request body")
	}
	if post.Body.ContentType != "application/json" {
		t.Errorf("post /pets: expected JSON to be preferred, got %q", post.Body.ContentType)
	}
	if post.Body.Name != "body" {
		t.Errorf("post /pets: body name %q", post.Body.Name)
	}
	if post.Body.Schema != pet {
		t.Errorf("post /pets: body schema should share the Pet node")
	}
	if post.Success() != nil {
		t.Errorf("post /pets: 201 without content should have no success payload")
	}

	get := findOperation(t, sm, GET, "/pets")
	if len(get.Parameters) != 1 {
		t.Fatalf("get /pets: expected cookie parameter to be skipped, got %+v", get.Parameters)
	}
	limit := get.Parameters[0]
	if limit.In != gateway.InQuery || limit.Name != "limit" || !limit.Required {
		t.Fatalf("get /pets: expected operation-level limit to override, got %+v", limit)
	}
	if get.Default == nil || get.Default.Schema == nil || get.Default.Schema.Name != "Error" {
		t.Fatalf("get /pets: default response not captured")
	}
	success := get.Success()
	if success == nil || success.Status != "200" || success.Schema.Kind != KindArray {
		t.Fatalf("get /pets: success response %+v", success)
	}
	if success.Schema.Items != pet.ID {
		t.Errorf("get /pets: items should reference Pet, got %s", success.Schema.Items)
	}
	if get.ID != "getPets" {
		t.Errorf("get /pets: synthesized id %q", get.ID)
	}
}

func TestBuildServiceModel_TagFiltering(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, sampleSpec)

	// Include only 'read' tagged operations (GET /pets)
	sm, err := BuildServiceModel(context.Background(), doc, WithIncludeTags([]string{"read"}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(sm.Operations) != 1 {
		t.Fatalf("include tags: expected 1 operation, got %d", len(sm.Operations))
	}
	if sm.Operations[0].Method != GET || sm.Operations[0].Path != "/pets" {
		t.Fatalf("include tags: wrong operation %s %s", sm.Operations[0].Method, sm.Operations[0].Path)
	}
	// Tags collection should only include tags from included operations
	if len(sm.Tags) != 2 || sm.Tags[0] != "animal" || sm.Tags[1] != "read" {
		t.Fatalf("tags: expected [animal read], got %v", sm.Tags)
	}

	sm2, err := BuildServiceModel(context.Background(), doc, WithExcludeTags([]string{"admin"}))
	if err != nil {
		t.Fatalf("build2: %v", err)
	}
	for _, op := range sm2.Operations {
		if op.Path == "/admin" {
			t.Fatalf("exclude tags: /admin should be filtered out")
		}
	}
}

func TestBuildServiceModel_MethodAndPathFilters(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, sampleSpec)

	sm, err := BuildServiceModel(context.Background(), doc, WithMethods([]HttpMethod{POST}), WithPathPatterns([]string{"^/pets$"}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(sm.Operations) != 1 {
		t.Fatalf("filters: expected 1 operation, got %d", len(sm.Operations))
	}
	if sm.Operations[0].Method != POST || sm.Operations[0].Path != "/pets" {
		t.Fatalf("filters: wrong operation %s %s", sm.Operations[0].Method, sm.Operations[0].Path)
	}
}

const securitySpec = `openapi: 3.0.0
info: { title: Secure, version: "1" }
security:
  - api_key: []
paths:
  /inherit:
    get:
      operationId: inherit
      responses: { "200": { description: ok } }
  /public:
    get:
      operationId: public
      security: []
      responses: { "200": { description: ok } }
  /own:
    get:
      operationId: own
      security:
        - oauth: [read]
        - oauth: [write]
          basic: []
      responses: { "200": { description: ok } }
  /optional:
    get:
      operationId: optional
      security:
        - {}
        - api_key: []
      responses: { "200": { description: ok } }
components:
  securitySchemes:
    api_key: { type: apiKey, in: header, name: X-API-Key }
    basic: { type: http, scheme: basic }
    oauth:
      type: oauth2
      flows:
        implicit:
          authorizationUrl: https://auth.example.com
          scopes: { read: read, write: write }
`

func TestBuildServiceModel_Security(t *testing.T) {
	t.Parallel()
	sm, err := BuildServiceModel(context.Background(), parseDoc(t, securitySpec))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(sm.SecuritySchemes) != 3 {
		t.Fatalf("schemes: got %d", len(sm.SecuritySchemes))
	}
	if k, ok := sm.SecuritySchemes[0].(gateway.APIKeyScheme); !ok || k.Name != "X-API-Key" || k.In != gateway.APIKeyInHeader {
		t.Errorf("api_key scheme: got %#v", sm.SecuritySchemes[0])
	}

	inherit := findOperation(t, sm, GET, "/inherit")
	if !inherit.SecurityInherited || len(inherit.Security) != 1 || len(inherit.Security[0]) != 1 || inherit.Security[0][0].Scheme.SchemeID() != "api_key" {
		t.Errorf("inherit: got %+v", inherit.Security)
	}

	public := findOperation(t, sm, GET, "/public")
	if public.SecurityInherited || len(public.Security) != 0 {
		t.Errorf("public: an empty security list must mean no authorization, got %+v", public.Security)
	}

	own := findOperation(t, sm, GET, "/own")
	if own.SecurityInherited || len(own.Security) != 2 {
		t.Fatalf("own: got %+v", own.Security)
	}
	if len(own.Security[0]) != 1 {
		t.Fatalf("own: first alternative %+v", own.Security[0])
	}
	if _, ok := own.Security[0][0].Scheme.(gateway.BearerScheme); !ok {
		t.Errorf("own: oauth2 should be a bearer scheme, got %T", own.Security[0][0].Scheme)
	}
	if got := strings.Join(own.Security[0][0].Scopes, ","); got != "read" {
		t.Errorf("own: first alternative scopes %q", got)
	}
	second := own.Security[1]
	if len(second) != 2 || second[0].Scheme.SchemeID() != "basic" || second[1].Scheme.SchemeID() != "oauth" {
		t.Fatalf("own: second alternative must require basic and oauth together, got %+v", second)
	}
	if got := strings.Join(second[1].Scopes, ","); got != "write" {
		t.Errorf("own: second alternative scopes %q", got)
	}

	optional := findOperation(t, sm, GET, "/optional")
	if len(optional.Security) != 2 {
		t.Fatalf("optional: got %+v", optional.Security)
	}
	if len(optional.Security[0]) != 0 {
		t.Errorf("optional: empty alternative must stay empty, got %+v", optional.Security[0])
	}
	if len(optional.Security[1]) != 1 || optional.Security[1][0].Scheme.SchemeID() != "api_key" {
		t.Errorf("optional: second alternative %+v", optional.Security[1])
	}
}

func TestBuildServiceModel_UndeclaredSecurityScheme(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /x:
    get:
      security:
        - missing: []
      responses: { "200": { description: ok } }
`)
	sm, err := BuildServiceModel(context.Background(), doc)
	if err == nil {
		t.Fatalf("expected error, got model with %d operations", len(sm.Operations))
	}
	var ue *UnresolvedReferenceError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnresolvedReferenceError, got %T: %v", err, err)
	}
	if ue.Ref != "#/components/securitySchemes/missing" {
		t.Errorf("ref: got %q", ue.Ref)
	}
	if !errors.Is(err, ErrUnresolvedReference) {
		t.Errorf("expected errors.Is ErrUnresolvedReference")
	}
}

func TestBuildServiceModel_AliasedRecursiveResponse(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /list:
    get:
      operationId: getList
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: { $ref: '#/components/schemas/List' }
components:
  schemas:
    List:
      $ref: '#/components/schemas/Cell'
    Cell:
      type: object
      properties:
        value: { type: integer }
        next: { $ref: '#/components/schemas/List' }
`)
	sm, err := BuildServiceModel(context.Background(), doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	get := findOperation(t, sm, GET, "/list")
	s := get.Success()
	if s == nil || s.Schema == nil || s.Schema.Name != "Cell" || !s.Schema.Recursive {
		t.Fatalf("getList: expected recursive Cell response, got %+v", s)
	}
	if len(sm.Schemas) != 1 || sm.Schemas[0] != s.Schema {
		t.Errorf("schemas: expected the single Cell node, got %d", len(sm.Schemas))
	}
}

func TestBuildServiceModel_DuplicateOperationID(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /a:
    get:
      operationId: fetch
      responses: { "200": { description: ok } }
  /b:
    get:
      operationId: fetch
      responses: { "200": { description: ok } }
`)
	_, err := BuildServiceModel(context.Background(), doc)
	var de *DuplicateOperationIDError
	if !errors.As(err, &de) {
		t.Fatalf("expected DuplicateOperationIDError, got %v", err)
	}
	if de.ID != "fetch" || de.First != "#/paths/~1a/get" || de.Second != "#/paths/~1b/get" {
		t.Errorf("unexpected error fields: %+v", de)
	}
	if !errors.Is(err, ErrDuplicateOperationID) {
		t.Errorf("expected errors.Is ErrDuplicateOperationID")
	}
}

func TestBuildServiceModel_CollidingIdentifiers(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /a:
    get:
      operationId: getPetById
      responses: { "200": { description: ok } }
  /b:
    get:
      operationId: get_pet_by_id
      responses: { "200": { description: ok } }
`)
	_, err := BuildServiceModel(context.Background(), doc)
	if !errors.Is(err, ErrDuplicateOperationID) {
		t.Fatalf("expected ids collapsing to one identifier to be rejected, got %v", err)
	}
}

func TestBuildServiceModel_PathPlaceholders(t *testing.T) {
	t.Parallel()
	sm, err := BuildServiceModel(context.Background(), parseDoc(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /pet/{petId}:
    parameters:
      - { in: path, name: petId, schema: { type: integer } }
    get:
      responses: { "200": { description: ok } }
`))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	op := sm.Operations[0]
	if op.ID != "getPetByPetId" {
		t.Errorf("synthesized id: got %q", op.ID)
	}
	if len(op.Segments) != 2 || op.Segments[1].Param != "petId" {
		t.Errorf("segments: got %+v", op.Segments)
	}
	if !op.Parameters[0].Required {
		t.Errorf("path parameters are always required")
	}

	_, err = BuildServiceModel(context.Background(), parseDoc(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths:
  /pet/{petId}:
    get:
      parameters:
        - { in: path, name: id, required: true, schema: { type: integer } }
      responses: { "200": { description: ok } }
`))
	var pe *SpecParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected SpecParseError for placeholder mismatch, got %v", err)
	}
}

func TestBuildServiceModel_RejectsCookieAPIKey(t *testing.T) {
	t.Parallel()
	_, err := BuildServiceModel(context.Background(), parseDoc(t, `openapi: 3.0.0
info: { title: t, version: "1" }
paths: {}
components:
  securitySchemes:
    session: { type: apiKey, in: cookie, name: sid }
`))
	if !errors.Is(err, ErrSpecParse) {
		t.Fatalf("expected ErrSpecParse, got %v", err)
	}
}

func TestBuildServiceModel_Swagger2(t *testing.T) {
	t.Parallel()
	doc := parseDoc(t, `swagger: "2.0"
info: { title: Petstore, version: "1.0.0" }
host: petstore.example.com
basePath: /v2
schemes: [https]
consumes: [application/json]
produces: [application/json]
securityDefinitions:
  api_key: { type: apiKey, name: api_key, in: header }
paths:
  /pet/{petId}:
    get:
      operationId: getPetById
      tags: [pet]
      security:
        - api_key: []
      parameters:
        - { in: path, name: petId, required: true, type: integer, format: int64 }
      responses:
        "200":
          description: ok
          schema:
            $ref: '#/definitions/Pet'
  /pet:
    post:
      operationId: addPet
      tags: [pet]
      parameters:
        - in: body
          name: body
          required: true
          schema:
            $ref: '#/definitions/Pet'
      responses:
        "405": { description: invalid input }
definitions:
  Pet:
    type: object
    properties:
      id: { type: integer, format: int64 }
      name: { type: string }
`)
	if doc.Version != "2.0" {
		t.Fatalf("version: got %q", doc.Version)
	}
	sm, err := BuildServiceModel(context.Background(), doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(sm.BaseURL, "petstore.example.com/v2") {
		t.Errorf("base url: got %q", sm.BaseURL)
	}
	get := findOperation(t, sm, GET, "/pet/{petId}")
	if s := get.Success(); s == nil || s.Schema.Name != "Pet" {
		t.Fatalf("getPetById: expected Pet response, got %+v", s)
	}
	if len(get.Security) != 1 || len(get.Security[0]) != 1 || get.Security[0][0].Scheme.SchemeID() != "api_key" {
		t.Errorf("getPetById: security %+v", get.Security)
	}
	add := findOperation(t, sm, POST, "/pet")
	if add.Body == nil || add.Body.Schema == nil || add.Body.Schema.Name != "Pet" {
		t.Fatalf("addPet: expected Pet body, got %+v", add.Body)
	}
}
