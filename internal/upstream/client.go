// Package upstream forwards canonical requests to the chat-completion service.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/n0madic/donachat/internal/codec"
	"github.com/n0madic/donachat/internal/limits"
	"github.com/n0madic/donachat/internal/types"
)

// FallbackErrorMessage is relayed when an upstream error body carries no message.
const FallbackErrorMessage = "completion service error"

// maxResponseBytes caps how much of an upstream body is buffered.
const maxResponseBytes = 16 * 1024 * 1024

var (
	// ErrMissingCredential is returned when no API key is configured.
	ErrMissingCredential = errors.New("missing upstream credential")
	// ErrMalformedResponse is returned when the upstream body is not JSON.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// StatusError is an upstream rejection: a non-2xx status with a JSON body.
type StatusError struct {
	StatusCode int
	Message    string
	Body       []byte
	Headers    http.Header
}

func (e *StatusError) Error() string {
	msg := codec.FormatUpstreamError(e.StatusCode, e.Body)
	if reqID := codec.ExtractUpstreamRequestID(e.Headers); reqID != "" {
		return fmt.Sprintf("%s (request_id: %s)", msg, reqID)
	}
	return msg
}

// Response is a successful upstream reply, body buffered for verbatim relay.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Client makes single-shot requests to the chat-completion endpoint.
type Client struct {
	URL     string
	Tokens  oauth2.TokenSource
	HTTP    *http.Client
	Verbose bool
	Debug   bool

	dumpMu sync.Mutex
}

// StaticCredential wraps an API key as a token source. An empty key yields
// nil, which the client reports as a missing credential.
func StaticCredential(apiKey string) oauth2.TokenSource {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"})
}

// NewClient creates a new upstream client. A zero timeout leaves the
// transport default in place.
func NewClient(url string, tokens oauth2.TokenSource, timeout time.Duration) *Client {
	return &Client{
		URL:    url,
		Tokens: tokens,
		HTTP:   &http.Client{Timeout: timeout},
	}
}

// Ready reports whether the client holds a usable credential.
func (c *Client) Ready() error {
	_, err := c.token()
	return err
}

func (c *Client) token() (*oauth2.Token, error) {
	if c == nil || c.Tokens == nil {
		return nil, ErrMissingCredential
	}
	tok, err := c.Tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingCredential, err)
	}
	if tok == nil || strings.TrimSpace(tok.AccessToken) == "" {
		return nil, ErrMissingCredential
	}
	return tok, nil
}

// Do sends req upstream exactly once. A 2xx JSON reply is returned as a
// Response; a non-2xx JSON reply as *StatusError; anything else is a
// transport failure.
func (c *Client) Do(ctx context.Context, req *types.CanonicalRequest) (*Response, error) {
	tok, err := c.token()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	tok.SetAuthHeader(httpReq)

	if c.Verbose {
		slog.Info("upstream.request",
			"model", req.Model,
			"messages", req.MessageCount(),
			"temperature", req.Temperature,
			"max_tokens", req.MaxTokens,
		)
	}
	c.dumpRequest(httpReq, body)

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	c.dumpResponse(resp, respBody)

	if c.Verbose {
		attrs := []any{"status", resp.StatusCode, "bytes", len(respBody)}
		if reqID := codec.ExtractUpstreamRequestID(resp.Header); reqID != "" {
			attrs = append(attrs, "request_id", reqID)
		}
		attrs = append(attrs, limits.ParseHeaders(resp.Header).LogAttrs()...)
		slog.Info("upstream.response", attrs...)
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("%w: status %d", ErrMalformedResponse, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := codec.ExtractUpstreamErrorMessage(respBody)
		if msg == "" {
			msg = FallbackErrorMessage
		}
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Body:       respBody,
			Headers:    resp.Header,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    resp.Header,
	}, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
