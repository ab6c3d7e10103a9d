package completion

import (
	"errors"
	"fmt"
)

// Kind classifies the outcome of a completion exchange.
type Kind int

const (
	KindOK Kind = iota
	KindEmptyInput
	KindTransportFailure
	KindMalformedResponse
	KindInvalidImage
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindEmptyInput:
		return "empty_input"
	case KindTransportFailure:
		return "transport_failure"
	case KindMalformedResponse:
		return "malformed_response"
	case KindInvalidImage:
		return "invalid_image"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// User-facing messages for non-OK results.
const (
	EmptyInputMessage = "Please provide text or an image."
	FailureMessage    = "Failed to get description from the API."
)

// Sentinels matched by *Error via errors.Is.
var (
	ErrEmptyInput        = errors.New("empty input")
	ErrTransportFailure  = errors.New("transport failure")
	ErrMalformedResponse = errors.New("malformed response")
	ErrInvalidImage      = errors.New("invalid image")
)

// Result is the outcome of GetReply: either an OK reply text, or a failure
// kind with a detail string.
type Result struct {
	Kind Kind

	// Text is the assistant reply. Set only for KindOK.
	Text string

	// Detail is the underlying error message or provider error payload.
	Detail string
}

// OK reports whether the exchange produced a reply.
func (r Result) OK() bool {
	return r.Kind == KindOK
}

// Display renders the result as the text shown to the user in place of a reply.
func (r Result) Display() string {
	switch r.Kind {
	case KindOK:
		return r.Text
	case KindEmptyInput:
		return EmptyInputMessage
	case KindMalformedResponse:
		if r.Detail == "" {
			return FailureMessage
		}
		return FailureMessage + " Error: " + r.Detail
	default:
		return "Error: " + r.Detail
	}
}

// Err returns nil for OK results and an *Error otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &Error{Kind: r.Kind, Detail: r.Detail}
}

// Error is the typed error form of a non-OK Result.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}

// Is matches the package sentinels by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrEmptyInput:
		return e.Kind == KindEmptyInput
	case ErrTransportFailure:
		return e.Kind == KindTransportFailure
	case ErrMalformedResponse:
		return e.Kind == KindMalformedResponse
	case ErrInvalidImage:
		return e.Kind == KindInvalidImage
	}
	return false
}
