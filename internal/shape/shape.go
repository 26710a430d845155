// Package shape classifies incoming chat bodies into one of the request
// variants accumulated by different client generations.
package shape

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/donachat/internal/types"
)

var (
	// ErrMalformedBody is returned when the body is not a JSON object.
	ErrMalformedBody = errors.New("malformed request body")
	// ErrUnsupportedFormat is returned when no known variant matches.
	ErrUnsupportedFormat = errors.New("unsupported prompt format")
)

// Variant identifies the request shape used by the caller.
type Variant int

const (
	VariantUnknown Variant = iota
	// Direct carries a complete, ready-to-send conversation.
	Direct
	// SimplePrompt carries a single user turn as a string.
	SimplePrompt
	// Orchestrator carries prior turns plus a new message and needs the
	// system instruction injected.
	Orchestrator
)

func (v Variant) String() string {
	switch v {
	case Direct:
		return "direct"
	case SimplePrompt:
		return "simple_prompt"
	case Orchestrator:
		return "orchestrator"
	default:
		return "unknown"
	}
}

// Field names recognized in incoming bodies.
const (
	FieldMessages    = "messages"
	FieldPrompt      = "prompt"
	FieldHistory     = "historial"
	FieldMessage     = "mensaje"
	FieldModel       = "model"
	FieldTemperature = "temperature"
	FieldMaxTokens   = "max_tokens"
)

// Overrides are the optional caller-supplied generation parameters. Nil or
// empty values mean the builder default applies.
type Overrides struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// Shape is the classified form of an incoming request.
type Shape struct {
	Variant Variant
	// Source names the field the conversation was read from.
	Source string

	// Direct: the caller's array elements, untouched.
	Messages []json.RawMessage
	// SimplePrompt: the prompt string.
	Prompt string
	// Orchestrator: prior turns (nil when historial is absent or not an
	// array) and the new message.
	History    []json.RawMessage
	HasHistory bool
	Message    string

	Overrides Overrides
}

// Classify inspects a raw request body and returns the matched variant.
// Checks run in a fixed precedence because one body can satisfy several
// variants at once. When a key repeats, its first occurrence is used.
func Classify(body []byte) (*Shape, error) {
	if err := checkObject(body); err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(body)

	s := &Shape{Overrides: parseOverrides(root)}

	if msgs := root.Get(FieldMessages); msgs.IsArray() {
		s.Variant = Direct
		s.Source = FieldMessages
		s.Messages = rawElements(msgs)
		return s, nil
	}

	prompt := root.Get(FieldPrompt)
	if prompt.IsArray() {
		s.Variant = Direct
		s.Source = FieldPrompt
		s.Messages = rawElements(prompt)
		return s, nil
	}
	if prompt.Type == gjson.String {
		s.Variant = SimplePrompt
		s.Source = FieldPrompt
		s.Prompt = prompt.String()
		return s, nil
	}

	history := root.Get(FieldHistory)
	message := root.Get(FieldMessage)
	if history.IsArray() || message.Type == gjson.String {
		s.Variant = Orchestrator
		s.Source = FieldHistory
		if history.IsArray() {
			s.HasHistory = true
			s.History = rawElements(history)
		}
		if message.Type == gjson.String {
			s.Message = message.String()
			if !s.HasHistory {
				s.Source = FieldMessage
			}
		}
		return s, nil
	}

	return nil, ErrUnsupportedFormat
}

// checkObject reports a malformed body with the decoder's own diagnostic.
func checkObject(body []byte) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedBody)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if obj == nil {
		return fmt.Errorf("%w: body must be a JSON object", ErrMalformedBody)
	}
	return nil
}

func rawElements(arr gjson.Result) []json.RawMessage {
	items := arr.Array()
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item.Raw))
	}
	return out
}

func parseOverrides(root gjson.Result) Overrides {
	var o Overrides
	if m := root.Get(FieldModel); m.Type == gjson.String {
		o.Model = strings.TrimSpace(m.String())
	}
	if t := root.Get(FieldTemperature); t.Type == gjson.Number {
		if v := t.Float(); !math.IsInf(v, 0) && !math.IsNaN(v) {
			o.Temperature = types.FloatPtr(v)
		}
	}
	if mt := root.Get(FieldMaxTokens); mt.Type == gjson.Number {
		if n := mt.Float(); n > 0 && n == math.Trunc(n) && n <= math.MaxInt32 {
			o.MaxTokens = types.IntPtr(int(n))
		}
	}
	return o
}
