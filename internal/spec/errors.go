package spec

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by errors.Is against the generation error types.
var (
	ErrSpecParse            = errors.New("spec parse error")
	ErrUnresolvedReference  = errors.New("unresolved reference")
	ErrUnsupportedSchema    = errors.New("unsupported schema construct")
	ErrDuplicateOperationID = errors.New("duplicate operation id")
)

// ErrorCode categorizes document errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ValidationError ErrorCode = "ValidationError"
	ConversionError ErrorCode = "ConversionError"
)

// SpecParseError reports a document that could not be read, parsed,
// converted or validated, or that violates a structural rule.
type SpecParseError struct {
	Code     ErrorCode
	Message  string
	Location string // file path or URL
	Pointer  string // e.g. "#/paths/~1pets/get"
	Cause    error
}

func (e *SpecParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Pointer != "" {
		fmt.Fprintf(&b, " at %s", e.Pointer)
	}
	if e.Location != "" {
		fmt.Fprintf(&b, " (%s)", e.Location)
	}
	return b.String()
}

func (e *SpecParseError) Unwrap() error { return e.Cause }

func (e *SpecParseError) Is(target error) bool { return target == ErrSpecParse }

// UnresolvedReferenceError reports a pointer that does not address an
// existing node, or one this generator cannot follow.
type UnresolvedReferenceError struct {
	Ref    string
	From   string // pointer of the node holding the reference, if known
	Reason string
	Cause  error
}

func (e *UnresolvedReferenceError) Error() string {
	msg := fmt.Sprintf("unresolved reference %q", e.Ref)
	if e.From != "" {
		msg += " from " + e.From
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnresolvedReferenceError) Unwrap() error { return e.Cause }

func (e *UnresolvedReferenceError) Is(target error) bool { return target == ErrUnresolvedReference }

// UnsupportedSchemaConstructError reports a schema with no defined type mapping.
type UnsupportedSchemaConstructError struct {
	Pointer   string
	Construct string // e.g. "integer format", "type"
	Detail    string
}

func (e *UnsupportedSchemaConstructError) Error() string {
	return fmt.Sprintf("unsupported schema construct at %s: %s %s", e.Pointer, e.Construct, e.Detail)
}

func (e *UnsupportedSchemaConstructError) Is(target error) bool { return target == ErrUnsupportedSchema }

// DuplicateOperationIDError reports two operations resolving to the same id.
type DuplicateOperationIDError struct {
	ID     string
	First  string // pointer of the first operation
	Second string
}

func (e *DuplicateOperationIDError) Error() string {
	return fmt.Sprintf("duplicate operation id %q: %s and %s", e.ID, e.First, e.Second)
}

func (e *DuplicateOperationIDError) Is(target error) bool { return target == ErrDuplicateOperationID }
