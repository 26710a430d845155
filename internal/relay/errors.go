package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/n0madic/donachat/internal/shape"
	"github.com/n0madic/donachat/internal/types"
	"github.com/n0madic/donachat/internal/upstream"
)

// Kind classifies every terminal failure of a relay request.
type Kind int

const (
	KindMethodNotAllowed Kind = iota + 1
	KindMissingCredential
	KindMalformedBody
	KindUnsupportedFormat
	KindUpstreamRejected
	KindTransportFailure
)

func (k Kind) String() string {
	switch k {
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindMissingCredential:
		return "missing_credential"
	case KindMalformedBody:
		return "malformed_body"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindUpstreamRejected:
		return "upstream_rejected"
	case KindTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Caller-visible messages.
const (
	msgMethodNotAllowed  = "method not allowed"
	msgMissingCredential = "missing upstream API credential on server"
	msgMalformedBody     = "invalid JSON body"
	msgUnsupportedFormat = "unsupported prompt format"
	msgTransportFailure  = "failed to connect to the completion service"
)

// Error is a relay failure with everything needed to answer the caller.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details string
	Payload any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Envelope returns the body written to the caller.
func (e *Error) Envelope() types.ErrorEnvelope {
	return types.ErrorEnvelope{
		Error:   e.Message,
		Details: e.Details,
		Payload: e.Payload,
	}
}

func methodNotAllowed() *Error {
	return &Error{Kind: KindMethodNotAllowed, Status: http.StatusMethodNotAllowed, Message: msgMethodNotAllowed}
}

func missingCredential(err error) *Error {
	return &Error{Kind: KindMissingCredential, Status: http.StatusInternalServerError, Message: msgMissingCredential, Err: err}
}

// classifyError maps errors from detection, building and forwarding onto
// the relay taxonomy. body is echoed back for unsupported shapes.
func classifyError(err error, body []byte) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}

	var se *upstream.StatusError
	switch {
	case errors.Is(err, shape.ErrMalformedBody):
		return &Error{
			Kind:    KindMalformedBody,
			Status:  http.StatusBadRequest,
			Message: msgMalformedBody,
			Details: parseDetails(err),
			Err:     err,
		}
	case errors.Is(err, shape.ErrUnsupportedFormat):
		e := &Error{
			Kind:    KindUnsupportedFormat,
			Status:  http.StatusBadRequest,
			Message: msgUnsupportedFormat,
			Err:     err,
		}
		if json.Valid(body) {
			e.Payload = json.RawMessage(body)
		}
		return e
	case errors.As(err, &se):
		return &Error{
			Kind:    KindUpstreamRejected,
			Status:  se.StatusCode,
			Message: se.Message,
			Err:     err,
		}
	default:
		return &Error{
			Kind:    KindTransportFailure,
			Status:  http.StatusInternalServerError,
			Message: msgTransportFailure,
			Details: transportDetails(err),
			Err:     err,
		}
	}
}

// parseDetails strips the sentinel prefix so only the decoder diagnostic is shown.
func parseDetails(err error) string {
	msg := err.Error()
	prefix := shape.ErrMalformedBody.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

// transportDetails is a short diagnostic; raw transport errors stay in logs.
func transportDetails(err error) string {
	switch {
	case errors.Is(err, upstream.ErrMalformedResponse):
		return "malformed upstream response"
	case errors.Is(err, context.Canceled):
		return "request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "upstream timeout"
	default:
		return "upstream unreachable"
	}
}
