package payload

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/n0madic/donachat/internal/types"
)

// ActivationKey is the JSON key of the activation signal the model appends
// when a specialized conversational module should run next.
const ActivationKey = "activarModulo"

// Modules that can be named in an activation signal.
var Modules = []string{"donorPath", "indecision", "grief", "familyDonation", "quiz"}

var errEmptyPrompt = errors.New("system prompt is empty")

// Prompt is the fixed domain instruction injected ahead of orchestrated
// conversations. It is immutable once built.
type Prompt struct {
	text    string
	message json.RawMessage
}

// NewPrompt trims and freezes the instruction text.
func NewPrompt(text string) (*Prompt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errEmptyPrompt
	}
	return &Prompt{
		text:    text,
		message: types.MustRawMessage(types.ChatMessage{Role: types.RoleSystem, Content: text}),
	}, nil
}

// Text returns the instruction text.
func (p *Prompt) Text() string {
	return p.text
}

// Message returns a fresh copy of the encoded system message.
func (p *Prompt) Message() json.RawMessage {
	out := make(json.RawMessage, len(p.message))
	copy(out, p.message)
	return out
}

// MissingModules lists activation-contract terms the instruction never
// mentions. A custom prompt that omits them still works, but the model
// will not know how to request those modules.
func (p *Prompt) MissingModules() []string {
	var missing []string
	if !strings.Contains(p.text, ActivationKey) {
		missing = append(missing, ActivationKey)
	}
	for _, m := range Modules {
		if !strings.Contains(p.text, m) {
			missing = append(missing, m)
		}
	}
	return missing
}
