// Package payload turns a classified request into the canonical
// chat-completion payload.
package payload

import (
	"encoding/json"
	"fmt"

	"github.com/n0madic/donachat/internal/shape"
	"github.com/n0madic/donachat/internal/types"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 700
	// DirectMaxTokens is the historical default of the call site that sends
	// complete conversations. Lowering it would shorten replies and change
	// token spend for existing integrations.
	DirectMaxTokens = 1000
)

// Defaults are the generation parameters used when the caller sends none.
type Defaults struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	DirectMaxTokens int
}

// DefaultsFor returns the standard defaults for the given model.
func DefaultsFor(model string) Defaults {
	return Defaults{
		Model:           model,
		Temperature:     DefaultTemperature,
		MaxTokens:       DefaultMaxTokens,
		DirectMaxTokens: DirectMaxTokens,
	}
}

// Builder converts classified shapes into canonical requests. It holds only
// immutable state and is safe for concurrent use.
type Builder struct {
	prompt   *Prompt
	defaults Defaults
}

// NewBuilder creates a builder around the fixed system instruction.
func NewBuilder(prompt *Prompt, defaults Defaults) *Builder {
	return &Builder{prompt: prompt, defaults: defaults}
}

// Prompt returns the system instruction used for orchestrated requests.
func (b *Builder) Prompt() *Prompt {
	return b.prompt
}

// Build produces the upstream payload for s.
func (b *Builder) Build(s *shape.Shape) (*types.CanonicalRequest, error) {
	if s == nil {
		return nil, shape.ErrUnsupportedFormat
	}

	var (
		messages  []json.RawMessage
		maxTokens = b.defaults.MaxTokens
	)

	switch s.Variant {
	case shape.Direct:
		messages = make([]json.RawMessage, 0, len(s.Messages))
		messages = append(messages, s.Messages...)
		maxTokens = b.defaults.DirectMaxTokens

	case shape.SimplePrompt:
		messages = []json.RawMessage{
			types.MustRawMessage(types.ChatMessage{Role: types.RoleUser, Content: s.Prompt}),
		}

	case shape.Orchestrator:
		if b.prompt == nil {
			return nil, fmt.Errorf("orchestrated request needs a system prompt: %w", errEmptyPrompt)
		}
		messages = make([]json.RawMessage, 0, len(s.History)+2)
		messages = append(messages, b.prompt.Message())
		if s.HasHistory {
			messages = append(messages, s.History...)
		}
		if s.Message != "" {
			messages = append(messages, types.MustRawMessage(types.ChatMessage{Role: types.RoleUser, Content: s.Message}))
		}

	default:
		return nil, fmt.Errorf("%w: variant %s", shape.ErrUnsupportedFormat, s.Variant)
	}

	req := &types.CanonicalRequest{
		Model:       b.defaults.Model,
		Messages:    messages,
		Temperature: b.defaults.Temperature,
		MaxTokens:   maxTokens,
	}
	applyOverrides(req, s.Overrides)
	return req, nil
}

func applyOverrides(req *types.CanonicalRequest, o shape.Overrides) {
	if o.Model != "" {
		req.Model = o.Model
	}
	if o.Temperature != nil {
		req.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		req.MaxTokens = *o.MaxTokens
	}
}
