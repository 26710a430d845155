package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/oauth2"

	"github.com/n0madic/donachat/internal/types"
)

func testRequest() *types.CanonicalRequest {
	return &types.CanonicalRequest{
		Model: "gpt-3.5-turbo",
		Messages: []json.RawMessage{
			types.MustRawMessage(types.ChatMessage{Role: types.RoleSystem, Content: "s"}),
			json.RawMessage(`{"role":"user","content":"hola","name":"ana"}`),
		},
		Temperature: 0.7,
		MaxTokens:   700,
	}
}

func TestDoSendsCanonicalPayloadWithBearer(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization: got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content-type: got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("payload is not JSON: %v", err)
		}
		if len(payload) != 4 {
			t.Errorf("payload should carry exactly model, messages, temperature, max_tokens: %v", payload)
		}
		if payload["model"] != "gpt-3.5-turbo" || payload["max_tokens"] != float64(700) || payload["temperature"] != 0.7 {
			t.Errorf("unexpected payload: %v", payload)
		}
		msgs, _ := payload["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("messages: got %v", payload["messages"])
		} else if second, _ := msgs[1].(map[string]any); second["name"] != "ana" {
			t.Errorf("extra message fields should survive: %v", second)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"id":"chatcmpl-1","choices":[{"message":{"role":"assistant","content":"hola"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticCredential("sk-test"), 0)
	resp, err := c.Do(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Body), `"chatcmpl-1"`) {
		t.Fatalf("body: got %s", resp.Body)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("upstream calls: got %d, want 1", calls)
	}
}

func TestDoRelaysSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, StaticCredential("k"), 0).Do(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted || string(resp.Body) != `{"ok":true}` {
		t.Fatalf("got %d %s", resp.StatusCode, resp.Body)
	}
}

func TestDoUpstreamRejection(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"X"}}`, "X"},
		{"server error", http.StatusServiceUnavailable, `{"error":{"message":"overloaded"}}`, "overloaded"},
		{"no message", http.StatusBadRequest, `{"error":{"code":"bad"}}`, FallbackErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("x-request-id", "req_123")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, StaticCredential("k"), 0).Do(context.Background(), testRequest())
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected *StatusError, got %v", err)
			}
			if se.StatusCode != tt.status || se.Message != tt.wantMsg {
				t.Fatalf("got %d %q, want %d %q", se.StatusCode, se.Message, tt.status, tt.wantMsg)
			}
			if !strings.Contains(se.Error(), "req_123") {
				t.Fatalf("error string should carry request id: %s", se.Error())
			}
			if atomic.LoadInt32(&calls) != 1 {
				t.Fatalf("rejections must not be retried, got %d calls", calls)
			}
		})
	}
}

func TestDoMalformedResponse(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusBadGateway} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			io.WriteString(w, "<html>bad gateway</html>")
		}))

		_, err := NewClient(srv.URL, StaticCredential("k"), 0).Do(context.Background(), testRequest())
		srv.Close()
		if !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("status %d: got %v, want ErrMalformedResponse", status, err)
		}
	}
}

func TestDoTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, StaticCredential("sk-very-secret"), 0).Do(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected transport error")
	}
	var se *StatusError
	if errors.As(err, &se) || errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected a plain transport error, got %v", err)
	}
	if strings.Contains(err.Error(), "sk-very-secret") {
		t.Fatalf("error must not leak the credential: %v", err)
	}
}

func TestMissingCredential(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	for name, ts := range map[string]oauth2.TokenSource{
		"nil":   StaticCredential("   "),
		"empty": oauth2.StaticTokenSource(&oauth2.Token{}),
	} {
		t.Run(name, func(t *testing.T) {
			c := NewClient(srv.URL, ts, 0)
			if err := c.Ready(); !errors.Is(err, ErrMissingCredential) {
				t.Fatalf("Ready: got %v", err)
			}
			if _, err := c.Do(context.Background(), testRequest()); !errors.Is(err, ErrMissingCredential) {
				t.Fatalf("Do: got %v", err)
			}
		})
	}
	if calls != 0 {
		t.Fatalf("upstream should not be called without a credential, got %d", calls)
	}
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer sk-secret")
	h.Set("Content-Type", "application/json")
	out := redactHeaders(h)
	if out.Get("Authorization") != redacted {
		t.Fatalf("authorization not redacted: %q", out.Get("Authorization"))
	}
	if h.Get("Authorization") != "Bearer sk-secret" {
		t.Fatal("redaction must not touch the original headers")
	}
}
