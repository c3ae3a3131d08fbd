// Package apperr defines the error taxonomy shared by every Luna component.
// Callers classify errors with [errors.Is] against the kind sentinels and
// the HTTP layer maps them to status codes with [HTTPStatus].
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind sentinels. Every error produced by the helpers below matches exactly
// one of these via errors.Is.
var (
	// ErrValidation marks malformed requests, unsupported file types and
	// invalid chunking configuration.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing document or chunk.
	ErrNotFound = errors.New("not found")
	// ErrUpstream marks a failing embedding provider, knowledge store or
	// generation backend.
	ErrUpstream = errors.New("upstream failure")
)

// Specific validation failures.
var (
	// ErrUnsupportedFormat is returned for file extensions the extractor
	// cannot handle.
	ErrUnsupportedFormat = &Error{kind: ErrValidation, msg: "unsupported file type"}
	// ErrNoUserMessage is returned when a conversation has no user turn.
	ErrNoUserMessage = &Error{kind: ErrValidation, msg: "no user message found"}
)

// Error is a classified error. It wraps an optional cause and reports its
// kind through Is so errors.Is(err, ErrNotFound) works through any number
// of fmt.Errorf wrappers.
type Error struct {
	kind  error
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is this error's kind or this exact error.
func (e *Error) Is(target error) bool {
	return target == e.kind || target == e
}

// Validation builds an ErrValidation error with a formatted message.
func Validation(format string, args ...any) error {
	return &Error{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// Unsupported builds an error matching both ErrUnsupportedFormat and
// ErrValidation that names the offending extension.
func Unsupported(ext string) error {
	return fmt.Errorf("%w %q: use PDF, DOCX, RTF, or TXT", ErrUnsupportedFormat, ext)
}

// NotFound builds an ErrNotFound error naming the missing resource.
func NotFound(resource, id string) error {
	return &Error{kind: ErrNotFound, msg: fmt.Sprintf("%s %q not found", resource, id)}
}

// Upstream wraps err as an ErrUpstream failure attributed to component.
// A nil err returns nil.
func Upstream(component string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: ErrUpstream, msg: component, cause: err}
}

// HTTPStatus maps an error to the status code the API reports for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
