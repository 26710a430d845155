// Package limits reads the rate-limit headers the completion service
// attaches to every reply.
package limits

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Window is one rate-limit budget (requests or tokens).
type Window struct {
	Limit     int
	Remaining int
	ResetIn   *time.Duration
}

// UsedPercent is the share of the window already consumed.
func (w *Window) UsedPercent() float64 {
	if w == nil || w.Limit <= 0 {
		return 0
	}
	used := float64(w.Limit-w.Remaining) / float64(w.Limit) * 100
	return math.Max(0, math.Min(100, used))
}

// Snapshot holds the request and token windows of one reply.
type Snapshot struct {
	Requests *Window
	Tokens   *Window
}

// ParseHeaders extracts rate-limit windows from upstream response headers.
// It returns nil when neither window is present.
func ParseHeaders(headers http.Header) *Snapshot {
	if headers == nil {
		return nil
	}
	requests := parseWindow(headers,
		"x-ratelimit-limit-requests",
		"x-ratelimit-remaining-requests",
		"x-ratelimit-reset-requests",
	)
	tokens := parseWindow(headers,
		"x-ratelimit-limit-tokens",
		"x-ratelimit-remaining-tokens",
		"x-ratelimit-reset-tokens",
	)
	if requests == nil && tokens == nil {
		return nil
	}
	return &Snapshot{Requests: requests, Tokens: tokens}
}

func parseWindow(headers http.Header, limitKey, remainingKey, resetKey string) *Window {
	remaining, err := strconv.Atoi(strings.TrimSpace(headers.Get(remainingKey)))
	if err != nil || remaining < 0 {
		return nil
	}
	w := &Window{Remaining: remaining}
	if v, err := strconv.Atoi(strings.TrimSpace(headers.Get(limitKey))); err == nil && v >= 0 {
		w.Limit = v
	}
	if v := strings.TrimSpace(headers.Get(resetKey)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			w.ResetIn = &d
		}
	}
	return w
}

// LogAttrs flattens the snapshot into slog key/value pairs.
func (s *Snapshot) LogAttrs() []any {
	if s == nil {
		return nil
	}
	var attrs []any
	add := func(prefix string, w *Window) {
		if w == nil {
			return
		}
		attrs = append(attrs, prefix+"_remaining", w.Remaining, prefix+"_limit", w.Limit)
		if w.Limit > 0 {
			attrs = append(attrs, prefix+"_used_percent", w.UsedPercent())
		}
		if w.ResetIn != nil {
			attrs = append(attrs, prefix+"_reset", w.ResetIn.String())
		}
	}
	add("ratelimit_requests", s.Requests)
	add("ratelimit_tokens", s.Tokens)
	return attrs
}
