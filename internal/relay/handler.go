// Package relay serves the chat endpoint: it classifies the caller's body,
// builds the canonical request, forwards it once and answers the caller.
package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/n0madic/donachat/internal/codec"
	"github.com/n0madic/donachat/internal/limits"
	"github.com/n0madic/donachat/internal/metrics"
	"github.com/n0madic/donachat/internal/payload"
	"github.com/n0madic/donachat/internal/shape"
	"github.com/n0madic/donachat/internal/types"
	"github.com/n0madic/donachat/internal/upstream"
)

// maxBodyBytes limits the size of incoming request bodies.
const maxBodyBytes = 1 << 20 // 1 MB

// Forwarder sends a canonical request to the completion service.
type Forwarder interface {
	Ready() error
	Do(ctx context.Context, req *types.CanonicalRequest) (*upstream.Response, error)
}

// Handler is the chat relay endpoint.
type Handler struct {
	Builder  *payload.Builder
	Upstream Forwarder
	Metrics  *metrics.Metrics
	Verbose  bool
}

// NewHandler wires a relay handler.
func NewHandler(b *payload.Builder, f Forwarder, m *metrics.Metrics, verbose bool) *Handler {
	return &Handler{Builder: b, Upstream: f, Metrics: m, Verbose: verbose}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	variant := "none"

	if r.Method != http.MethodPost {
		h.fail(w, variant, methodNotAllowed())
		return
	}
	if err := h.Upstream.Ready(); err != nil {
		h.fail(w, variant, missingCredential(err))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, variant, &Error{
			Kind:    KindMalformedBody,
			Status:  http.StatusBadRequest,
			Message: msgMalformedBody,
			Details: "failed to read request body",
			Err:     err,
		})
		return
	}

	s, err := shape.Classify(body)
	if err != nil {
		h.fail(w, variant, classifyError(err, body))
		return
	}
	variant = s.Variant.String()

	req, err := h.Builder.Build(s)
	if err != nil {
		h.fail(w, variant, classifyError(err, body))
		return
	}
	if h.Verbose {
		slog.Info("relay.classified",
			"variant", variant,
			"source", s.Source,
			"model", req.Model,
			"messages", req.MessageCount(),
		)
	}

	start := time.Now()
	resp, err := h.Upstream.Do(r.Context(), req)
	h.Metrics.ObserveUpstream(upstreamStatusLabel(resp, err), time.Since(start).Seconds())
	h.Metrics.ObserveRateLimits(limits.ParseHeaders(upstreamHeaders(resp, err)))
	if err != nil {
		h.fail(w, variant, classifyError(err, body))
		return
	}

	h.Metrics.ObserveRequest(variant, "success")
	codec.WriteRaw(w, resp.StatusCode, resp.Body)
}

func (h *Handler) fail(w http.ResponseWriter, variant string, e *Error) {
	h.Metrics.ObserveRequest(variant, e.Kind.String())
	if e.Err != nil && (e.Kind == KindTransportFailure || e.Kind == KindUpstreamRejected) {
		slog.Warn("relay.upstream.failed", "kind", e.Kind.String(), "status", e.Status, "error", e.Err)
	}
	codec.WriteError(w, e.Status, e.Envelope())
}

func upstreamHeaders(resp *upstream.Response, err error) http.Header {
	var se *upstream.StatusError
	switch {
	case resp != nil:
		return resp.Headers
	case errors.As(err, &se):
		return se.Headers
	default:
		return nil
	}
}

func upstreamStatusLabel(resp *upstream.Response, err error) string {
	var se *upstream.StatusError
	switch {
	case resp != nil:
		return strconv.Itoa(resp.StatusCode)
	case errors.As(err, &se):
		return strconv.Itoa(se.StatusCode)
	default:
		return "error"
	}
}
