package types

import "encoding/json"

// CanonicalRequest is the single chat-completion payload sent upstream,
// whatever shape the caller used. Messages are kept as raw JSON so that
// caller-managed conversations are forwarded without re-encoding loss.
type CanonicalRequest struct {
	Model       string            `json:"model"`
	Messages    []json.RawMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

// MessageCount returns the number of conversation turns in the request.
func (r *CanonicalRequest) MessageCount() int {
	if r == nil {
		return 0
	}
	return len(r.Messages)
}
