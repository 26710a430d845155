package shape

import (
	"errors"
	"testing"
)

func TestClassifyPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		variant Variant
		source  string
	}{
		{
			name:    "messages array",
			body:    `{"messages":[{"role":"user","content":"hola"}]}`,
			variant: Direct,
			source:  FieldMessages,
		},
		{
			name:    "messages wins over prompt and historial",
			body:    `{"messages":[],"prompt":"x","historial":[],"mensaje":"y"}`,
			variant: Direct,
			source:  FieldMessages,
		},
		{
			name:    "prompt array",
			body:    `{"prompt":[{"role":"system","content":"s"},{"role":"user","content":"u"}]}`,
			variant: Direct,
			source:  FieldPrompt,
		},
		{
			name:    "messages not an array falls through to prompt",
			body:    `{"messages":"nope","prompt":[{"role":"user","content":"u"}]}`,
			variant: Direct,
			source:  FieldPrompt,
		},
		{
			name:    "prompt string",
			body:    `{"prompt":"¿Qué es la donación de órganos?"}`,
			variant: SimplePrompt,
			source:  FieldPrompt,
		},
		{
			name:    "prompt string wins over mensaje",
			body:    `{"prompt":"a","mensaje":"b"}`,
			variant: SimplePrompt,
			source:  FieldPrompt,
		},
		{
			name:    "historial and mensaje",
			body:    `{"historial":[{"role":"user","content":"a"}],"mensaje":"b"}`,
			variant: Orchestrator,
			source:  FieldHistory,
		},
		{
			name:    "empty historial only",
			body:    `{"historial":[]}`,
			variant: Orchestrator,
			source:  FieldHistory,
		},
		{
			name:    "mensaje only",
			body:    `{"mensaje":"hola"}`,
			variant: Orchestrator,
			source:  FieldMessage,
		},
		{
			name:    "empty mensaje still orchestrator",
			body:    `{"mensaje":""}`,
			variant: Orchestrator,
			source:  FieldMessage,
		},
		{
			name:    "historial not an array but mensaje present",
			body:    `{"historial":"bad","mensaje":"hola"}`,
			variant: Orchestrator,
			source:  FieldMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Classify([]byte(tt.body))
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if s.Variant != tt.variant {
				t.Fatalf("variant: got %s, want %s", s.Variant, tt.variant)
			}
			if s.Source != tt.source {
				t.Fatalf("source: got %q, want %q", s.Source, tt.source)
			}
		})
	}
}

func TestClassifyUnsupported(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"model":"gpt-4","temperature":0.2}`,
		`{"prompt":42}`,
		`{"prompt":{"role":"user"}}`,
		`{"historial":"not a list"}`,
		`{"mensaje":7}`,
		`{"messages":null}`,
	} {
		t.Run(body, func(t *testing.T) {
			_, err := Classify([]byte(body))
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Fatalf("got %v, want ErrUnsupportedFormat", err)
			}
		})
	}
}

func TestClassifyMalformed(t *testing.T) {
	for _, body := range []string{
		``,
		`   `,
		`{"prompt":`,
		`not json`,
		`[1,2,3]`,
		`"prompt"`,
		`null`,
	} {
		t.Run(body, func(t *testing.T) {
			_, err := Classify([]byte(body))
			if !errors.Is(err, ErrMalformedBody) {
				t.Fatalf("got %v, want ErrMalformedBody", err)
			}
		})
	}
}

func TestClassifyKeepsRawElementsInOrder(t *testing.T) {
	body := `{"messages":[{"role":"system","content":"mine"},{"role":"user","content":"a","name":"ana"},{"role":"assistant","content":"b"}]}`
	s, err := Classify([]byte(body))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := []string{
		`{"role":"system","content":"mine"}`,
		`{"role":"user","content":"a","name":"ana"}`,
		`{"role":"assistant","content":"b"}`,
	}
	if len(s.Messages) != len(want) {
		t.Fatalf("got %d messages, want %d", len(s.Messages), len(want))
	}
	for i := range want {
		if string(s.Messages[i]) != want[i] {
			t.Fatalf("message %d: got %s, want %s", i, s.Messages[i], want[i])
		}
	}
}

func TestClassifyOrchestratorFields(t *testing.T) {
	s, err := Classify([]byte(`{"historial":[{"role":"user","content":"a"},{"role":"assistant","content":"b"}],"mensaje":"c"}`))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !s.HasHistory || len(s.History) != 2 {
		t.Fatalf("history: got %v (%d items)", s.HasHistory, len(s.History))
	}
	if s.Message != "c" {
		t.Fatalf("message: got %q", s.Message)
	}
}

func TestClassifyOverrides(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		model     string
		temp      *float64
		maxTokens *int
	}{
		{
			name: "none",
			body: `{"mensaje":"x"}`,
		},
		{
			name:      "all valid",
			body:      `{"mensaje":"x","model":" gpt-4 ","temperature":0.2,"max_tokens":300}`,
			model:     "gpt-4",
			temp:      ptr(0.2),
			maxTokens: ptr(300),
		},
		{
			name:      "zero temperature is honored",
			body:      `{"mensaje":"x","temperature":0}`,
			temp:      ptr(0.0),
			maxTokens: nil,
		},
		{
			name: "wrong types ignored",
			body: `{"mensaje":"x","model":4,"temperature":"hot","max_tokens":"many"}`,
		},
		{
			name: "fractional and non-positive max_tokens ignored",
			body: `{"mensaje":"x","max_tokens":12.5}`,
		},
		{
			name: "negative max_tokens ignored",
			body: `{"mensaje":"x","max_tokens":-1}`,
		},
		{
			name: "out of range numbers ignored",
			body: `{"mensaje":"x","temperature":1e400,"max_tokens":1e400}`,
		},
		{
			name: "negative overflow temperature ignored",
			body: `{"mensaje":"x","temperature":-1e400}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Classify([]byte(tt.body))
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			o := s.Overrides
			if o.Model != tt.model {
				t.Fatalf("model: got %q, want %q", o.Model, tt.model)
			}
			if !equalPtr(o.Temperature, tt.temp) {
				t.Fatalf("temperature: got %v, want %v", deref(o.Temperature), deref(tt.temp))
			}
			if !equalPtr(o.MaxTokens, tt.maxTokens) {
				t.Fatalf("max_tokens: got %v, want %v", deref(o.MaxTokens), deref(tt.maxTokens))
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	body := []byte(`{"historial":[{"role":"user","content":"a"}],"mensaje":"b","temperature":0.5}`)
	first, err := Classify(body)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Classify(body)
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if again.Variant != first.Variant || again.Source != first.Source || again.Message != first.Message {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestVariantString(t *testing.T) {
	tests := map[Variant]string{
		Direct:         "direct",
		SimplePrompt:   "simple_prompt",
		Orchestrator:   "orchestrator",
		VariantUnknown: "unknown",
	}
	for v, want := range tests {
		if got := v.String(); got != want {
			t.Errorf("Variant(%d).String() = %q, want %q", int(v), got, want)
		}
	}
}

func ptr[T any](v T) *T { return &v }

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func TestClassifyDuplicateKeysFirstWins(t *testing.T) {
	s, err := Classify([]byte(`{"prompt":"a","prompt":[{"role":"user","content":"b"}]}`))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if s.Variant != SimplePrompt || s.Prompt != "a" {
		t.Fatalf("got %s %q, want simple_prompt \"a\"", s.Variant, s.Prompt)
	}

	s, err = Classify([]byte(`{"mensaje":"uno","mensaje":"dos"}`))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if s.Message != "uno" {
		t.Fatalf("message: got %q, want %q", s.Message, "uno")
	}
}
