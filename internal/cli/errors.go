package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/swagger2client/internal/spec"
)

var ErrUsage = errors.New("cli usage error")

type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

// generationError is a generation failure rendered for the terminal. It
// keeps the original error reachable through Unwrap.
type generationError struct {
	msg string
	err error
}

func (e *generationError) Error() string { return e.msg }
func (e *generationError) Unwrap() error { return e.err }

// describeGenerationError prints the category, location and pointer of the
// typed generation errors. Other errors are returned unchanged.
func describeGenerationError(err error, input string) error {
	var (
		parseErr  *spec.SpecParseError
		refErr    *spec.UnresolvedReferenceError
		schemaErr *spec.UnsupportedSchemaConstructError
		dupErr    *spec.DuplicateOperationIDError
	)
	var b strings.Builder
	switch {
	case errors.As(err, &parseErr):
		fmt.Fprintf(&b, "spec parse error (%s): %s", parseErr.Code, parseErr.Message)
		location := parseErr.Location
		if location == "" {
			location = input
		}
		fmt.Fprintf(&b, "\nLocation: %s", location)
		if parseErr.Pointer != "" {
			fmt.Fprintf(&b, "\nPointer: %s", parseErr.Pointer)
		}
	case errors.As(err, &refErr):
		fmt.Fprintf(&b, "unresolved reference: %s", refErr.Ref)
		if refErr.Reason != "" {
			fmt.Fprintf(&b, " (%s)", refErr.Reason)
		}
		fmt.Fprintf(&b, "\nLocation: %s", input)
		if refErr.From != "" {
			fmt.Fprintf(&b, "\nPointer: %s", refErr.From)
		}
	case errors.As(err, &schemaErr):
		fmt.Fprintf(&b, "unsupported schema construct: %s", schemaErr.Construct)
		if schemaErr.Detail != "" {
			fmt.Fprintf(&b, " (%s)", schemaErr.Detail)
		}
		fmt.Fprintf(&b, "\nLocation: %s\nPointer: %s", input, schemaErr.Pointer)
	case errors.As(err, &dupErr):
		fmt.Fprintf(&b, "duplicate operation id %q", dupErr.ID)
		fmt.Fprintf(&b, "\nLocation: %s\nPointer: %s\nFirst declared at: %s", input, dupErr.Second, dupErr.First)
	default:
		return err
	}
	return &generationError{msg: b.String(), err: err}
}
