package transport

import (
	"errors"
	"fmt"
	"time"
)

// FailKind is the closed classification of transport send failures the
// delivery policy operates over. Adapters map their library-specific errors
// into exactly one of these kinds.
type FailKind int

const (
	// FailBadRequest: the request itself is defective for this recipient's
	// context. Not retryable.
	FailBadRequest FailKind = iota

	// FailFlood: rate limited; RetryAfter carries the required wait.
	FailFlood

	// FailPermanent: the recipient is gone (blocked, deactivated, kicked,
	// not found). Will never succeed without re-registration.
	FailPermanent

	// FailFetch: the transport could not fetch remote content (image URL).
	FailFetch

	// FailBadReference: the transport rejected the file reference outright.
	FailBadReference
)

func (k FailKind) String() string {
	switch k {
	case FailBadRequest:
		return "bad_request"
	case FailFlood:
		return "flood"
	case FailPermanent:
		return "permanent"
	case FailFetch:
		return "fetch"
	case FailBadReference:
		return "bad_reference"
	default:
		return "unknown"
	}
}

// SendError wraps a transport failure with its classified kind.
type SendError struct {
	Kind       FailKind
	RetryAfter time.Duration // only meaningful for FailFlood
	Err        error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("send failed (%s)", e.Kind)
	}
	return fmt.Sprintf("send failed (%s): %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// AsSendError extracts a classified send error, if any.
func AsSendError(err error) (*SendError, bool) {
	var se *SendError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// KindOf returns the classified kind, defaulting to FailBadRequest for
// unclassified errors so callers always get a terminal policy decision.
func KindOf(err error) FailKind {
	if se, ok := AsSendError(err); ok {
		return se.Kind
	}
	return FailBadRequest
}
