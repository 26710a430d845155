package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3/shared"
)

const (
	ChatCompletionsURL = "https://api.openai.com/v1/chat/completions"
	FeedbackFormURL    = "https://docs.google.com/forms/d/e/1FAIpQLSfVcPvKM2TK63V-uT6JbQtbHrrg_OujPu__5jiowpDavE4p0A/formResponse"

	// DefaultModel is the chat model used when the caller does not name one.
	DefaultModel = string(shared.ChatModelGPT3_5Turbo)
)

// ServerConfig holds all server configuration.
type ServerConfig struct {
	Host             string
	Port             int
	Verbose          bool
	Debug            bool
	LogLevel         string
	LogFormat        string
	APIKey           string
	ChatURL          string
	Model            string
	UpstreamTimeout  time.Duration
	SystemPromptFile string
	FeedbackURL      string
	CORSOrigins      []string
}

// DefaultFromEnv creates a ServerConfig with defaults from environment variables.
func DefaultFromEnv() *ServerConfig {
	return &ServerConfig{
		Host:             envOrDefault("DONACHAT_HOST", "127.0.0.1"),
		Port:             envPort(8000),
		Verbose:          envBool("DONACHAT_VERBOSE"),
		Debug:            envBool("DONACHAT_DEBUG"),
		LogLevel:         envOrDefault("DONACHAT_LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("DONACHAT_LOG_FORMAT", "text"),
		APIKey:           strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		ChatURL:          envRaw("DONACHAT_CHAT_URL", ChatCompletionsURL),
		Model:            envRaw("DONACHAT_MODEL", DefaultModel),
		UpstreamTimeout:  envDuration("DONACHAT_UPSTREAM_TIMEOUT", 0),
		SystemPromptFile: strings.TrimSpace(os.Getenv("DONACHAT_SYSTEM_PROMPT_FILE")),
		FeedbackURL:      envRaw("DONACHAT_FEEDBACK_URL", FeedbackFormURL),
		CORSOrigins:      envList("DONACHAT_CORS_ORIGINS", []string{"*"}),
	}
}

// HasCredential reports whether an upstream API key is configured.
func (c *ServerConfig) HasCredential() bool {
	return c != nil && strings.TrimSpace(c.APIKey) != ""
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return defaultVal
}

// envRaw is envOrDefault without case folding, for URLs and model ids.
func envRaw(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func envPort(defaultVal int) int {
	for _, key := range []string{"DONACHAT_PORT", "PORT"} {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < 65536 {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
