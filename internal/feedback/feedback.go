// Package feedback relays the front-end satisfaction survey to a
// form-collection service.
package feedback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/donachat/internal/codec"
	"github.com/n0madic/donachat/internal/metrics"
	"github.com/n0madic/donachat/internal/types"
)

const maxBodyBytes = 64 * 1024

// userAgent is sent to the form service, which rejects obvious bots.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Form field ids of the collection form.
const (
	EntryClarity      = "entry.1429993267"
	EntryLanguage     = "entry.962169197"
	EntrySolvedDoubts = "entry.2266276"
	EntryRecommend    = "entry.1344114409"
	EntryComments     = "entry.287412987"
)

// Handler serves the feedback endpoint.
type Handler struct {
	FormURL string
	HTTP    *http.Client
	Metrics *metrics.Metrics
}

// NewHandler creates a feedback relay posting to formURL.
func NewHandler(formURL string, client *http.Client, m *metrics.Metrics) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return &Handler{FormURL: formURL, HTTP: client, Metrics: m}
}

// ParseForm reads the survey fields from a JSON object. Missing and falsy
// fields (false, 0, null) are empty; other scalars are stringified.
func ParseForm(body []byte) (types.FeedbackForm, bool) {
	if !gjson.ValidBytes(body) {
		return types.FeedbackForm{}, false
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return types.FeedbackForm{}, false
	}
	field := func(name string) string {
		v := root.Get(name)
		switch {
		case v.IsObject() || v.IsArray():
			return ""
		case v.Type == gjson.False:
			return ""
		case v.Type == gjson.Number && v.Float() == 0:
			return ""
		}
		return v.String()
	}
	return types.FeedbackForm{
		Clarity:      field("clarity"),
		Language:     field("language"),
		SolvedDoubts: field("solved_doubts"),
		Recommend:    field("recommend"),
		Comments:     field("comments"),
	}, true
}

// EncodeForm maps the survey onto the collection form's field ids.
func EncodeForm(f types.FeedbackForm) url.Values {
	v := url.Values{}
	v.Set(EntryClarity, f.Clarity)
	v.Set(EntryLanguage, f.Language)
	v.Set(EntrySolvedDoubts, f.SolvedDoubts)
	v.Set(EntryRecommend, f.Recommend)
	v.Set(EntryComments, f.Comments)
	return v
}

// Submit posts the form and returns the collection service status.
func (h *Handler) Submit(ctx context.Context, f types.FeedbackForm) (int, error) {
	data := EncodeForm(f).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.FormURL, strings.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("feedback form request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		codec.WriteJSON(w, http.StatusMethodNotAllowed, types.FeedbackResult{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.Metrics.ObserveFeedback("invalid")
		codec.WriteJSON(w, http.StatusBadRequest, types.FeedbackResult{Error: "invalid input"})
		return
	}
	form, ok := ParseForm(body)
	if !ok {
		h.Metrics.ObserveFeedback("invalid")
		codec.WriteJSON(w, http.StatusBadRequest, types.FeedbackResult{Error: "invalid input"})
		return
	}

	status, err := h.Submit(r.Context(), form)
	if err != nil {
		slog.Error("feedback.failed", "error", err)
		h.Metrics.ObserveFeedback("error")
		codec.WriteJSON(w, http.StatusInternalServerError, types.FeedbackResult{
			Error:   "internal server error",
			Details: "could not reach the feedback service",
		})
		return
	}

	slog.Info("feedback.sent", "status", status)
	// The form service answers 200 even for some internal errors, so any
	// 2xx or 3xx counts as accepted.
	if status >= 200 && status < 400 {
		h.Metrics.ObserveFeedback("success")
		codec.WriteJSON(w, http.StatusOK, types.FeedbackResult{
			Success: true,
			Message: "feedback submitted",
			Status:  status,
		})
		return
	}

	h.Metrics.ObserveFeedback("rejected")
	codec.WriteJSON(w, http.StatusInternalServerError, types.FeedbackResult{
		Error:  "failed to submit feedback",
		Status: status,
	})
}
