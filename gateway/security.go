package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
)

// SecurityScheme is a declared authorization mechanism. The concrete type is
// one of BasicScheme, BearerScheme or APIKeyScheme.
type SecurityScheme interface {
	SchemeID() string
	schemeKind() string
}

// BasicScheme sends a base64 encoded username:password pair.
type BasicScheme struct {
	ID string
}

// BearerScheme sends a token in the Authorization header.
type BearerScheme struct {
	ID string
	// Format is informational (for example "JWT").
	Format string
}

// APIKeyLocation says where an API key travels.
type APIKeyLocation string

const (
	APIKeyInHeader APIKeyLocation = "header"
	APIKeyInQuery  APIKeyLocation = "query"
)

// APIKeyScheme sends a key in a named header or query parameter.
type APIKeyScheme struct {
	ID   string
	In   APIKeyLocation
	Name string
}

func (s BasicScheme) SchemeID() string  { return s.ID }
func (s BearerScheme) SchemeID() string { return s.ID }
func (s APIKeyScheme) SchemeID() string { return s.ID }

func (BasicScheme) schemeKind() string  { return "basic" }
func (BearerScheme) schemeKind() string { return "bearer" }
func (APIKeyScheme) schemeKind() string { return "apiKey" }

// SchemeKind returns "basic", "bearer" or "apiKey".
func SchemeKind(s SecurityScheme) string {
	if s == nil {
		return ""
	}
	return s.schemeKind()
}

// Requirement is one security requirement of an operation.
type Requirement struct {
	Scheme SecurityScheme
	Scopes []string
}

// SecurityAlternative is one way to authorize an operation: every
// requirement in it must resolve. An empty alternative allows an anonymous
// call.
type SecurityAlternative []Requirement

// Security is the value handed to the authorization resolver.
type Security struct {
	ID     string
	Scopes []string
}

// Credential is a value returned by the authorization resolver. Token and
// BasicCredential implement it.
type Credential interface {
	credential()
}

// Token is a bearer token or an API key.
type Token string

// BasicCredential is a username/password pair for basic schemes.
type BasicCredential struct {
	Username string
	Password string
}

func (Token) credential()           {}
func (BasicCredential) credential() {}

// AuthorizationFunc resolves the credential for one security requirement.
// It may block; cancellation is carried by ctx and is the caller's concern.
type AuthorizationFunc func(ctx context.Context, sec Security) (Credential, error)

// applyCredential writes cred onto the outgoing request according to the
// scheme's variant.
func applyCredential(scheme SecurityScheme, cred Credential, header http.Header, query url.Values) error {
	switch s := scheme.(type) {
	case BearerScheme:
		tok, ok := cred.(Token)
		if !ok {
			return fmt.Errorf("scheme %q: bearer needs a Token, got %T", s.ID, cred)
		}
		header.Set("Authorization", "Bearer "+string(tok))
	case APIKeyScheme:
		tok, ok := cred.(Token)
		if !ok {
			return fmt.Errorf("scheme %q: apiKey needs a Token, got %T", s.ID, cred)
		}
		switch s.In {
		case APIKeyInHeader:
			header.Set(s.Name, string(tok))
		case APIKeyInQuery:
			query.Set(s.Name, string(tok))
		default:
			return fmt.Errorf("scheme %q: unsupported apiKey location %q", s.ID, s.In)
		}
	case BasicScheme:
		bc, ok := cred.(BasicCredential)
		if !ok {
			return fmt.Errorf("scheme %q: basic needs a BasicCredential, got %T", s.ID, cred)
		}
		raw := bc.Username + ":" + bc.Password
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(raw)))
	case nil:
		return fmt.Errorf("nil security scheme")
	default:
		return fmt.Errorf("unknown security scheme %T", scheme)
	}
	return nil
}
