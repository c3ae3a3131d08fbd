package assistant

import (
	"context"
	"errors"
	"strings"

	"github.com/fdctax/luna/internal/apperr"
	"github.com/fdctax/luna/internal/provider"
)

// Reason classifies why a backend attempt did not produce a reply.
type Reason string

const (
	// ReasonSkipped marks the primary when the caller forced the fallback.
	ReasonSkipped Reason = "skipped"
	// ReasonUnconfigured marks a backend with missing credentials.
	ReasonUnconfigured Reason = "unconfigured"
	// ReasonTimeout marks an attempt that hit its deadline.
	ReasonTimeout Reason = "timeout"
	// ReasonCanceled marks an attempt abandoned because the caller went away.
	ReasonCanceled Reason = "canceled"
	// ReasonUpstream marks any other backend failure.
	ReasonUpstream Reason = "upstream"
	// ReasonEmptyResponse marks a backend that answered with no text.
	ReasonEmptyResponse Reason = "empty_response"
)

// Attempt records one backend that was tried or skipped.
type Attempt struct {
	Backend string
	Reason  Reason
	// Err is nil for skipped backends.
	Err error
}

// FallbackError reports that every backend in the chain failed. It matches
// apperr.ErrUpstream and unwraps to each attempt error.
type FallbackError struct {
	Attempts []Attempt
}

func (e *FallbackError) Error() string {
	var b strings.Builder
	b.WriteString("assistant: all generation backends failed")
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(a.Backend)
		b.WriteString(" (")
		b.WriteString(string(a.Reason))
		b.WriteString(")")
		if a.Err != nil {
			b.WriteString(": ")
			b.WriteString(a.Err.Error())
		}
	}
	return b.String()
}

// Is reports true for apperr.ErrUpstream.
func (e *FallbackError) Is(target error) bool { return target == apperr.ErrUpstream }

// Unwrap exposes the attempt errors to errors.Is and errors.As.
func (e *FallbackError) Unwrap() []error {
	var errs []error
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// classify maps an attempt error to its Reason.
func classify(err error) Reason {
	switch {
	case errors.Is(err, provider.ErrUnconfigured):
		return ReasonUnconfigured
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.Is(err, ErrEmptyResponse):
		return ReasonEmptyResponse
	default:
		return ReasonUpstream
	}
}
