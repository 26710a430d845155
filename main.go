package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	"github.com/n0madic/donachat/internal/config"
	"github.com/n0madic/donachat/internal/lambdaproxy"
	"github.com/n0madic/donachat/internal/logging"
	"github.com/n0madic/donachat/internal/payload"
	"github.com/n0madic/donachat/internal/server"
)

//go:embed prompts/system.md
var systemPromptMD string

const usage = "Commands: serve, lambda, prompt"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
	}

	// Inside the Lambda runtime there are no arguments to dispatch on.
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" && len(os.Args) < 2 {
		os.Exit(cmdLambda())
	}

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: donachat <command> [flags]")
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		os.Exit(cmdServe())
	case "lambda":
		os.Exit(cmdLambda())
	case "prompt":
		os.Exit(cmdPrompt())
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}

func cmdServe() int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg := config.DefaultFromEnv()

	fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable verbose logging")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Dump inbound and upstream HTTP traffic to stderr")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text|json)")
	fs.StringVar(&cfg.ChatURL, "chat-url", cfg.ChatURL, "Chat-completion endpoint")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Default chat model")
	fs.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", cfg.UpstreamTimeout, "Upstream request timeout (0 disables)")
	fs.StringVar(&cfg.SystemPromptFile, "system-prompt-file", cfg.SystemPromptFile, "Read the system prompt from this file instead of the built-in one")
	fs.Parse(os.Args[2:])

	srv, err := newServer(cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("DonaChat starting", "host", cfg.Host, "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		return 1
	}
	return 0
}

func cmdLambda() int {
	cfg := config.DefaultFromEnv()
	// CloudWatch ingests JSON lines better than text.
	if os.Getenv("DONACHAT_LOG_FORMAT") == "" {
		cfg.LogFormat = "json"
	}
	srv, err := newServer(cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		return 1
	}
	lambda.Start(lambdaproxy.Wrap(srv.Handler()))
	return 0
}

func cmdPrompt() int {
	fs := flag.NewFlagSet("prompt", flag.ExitOnError)
	jsonOut := fs.Bool("json", false, "Print the system message as sent upstream")
	fs.Parse(os.Args[2:])

	cfg := config.DefaultFromEnv()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	p, err := loadPrompt(cfg)
	if err != nil {
		slog.Error("failed to load system prompt", "error", err)
		return 1
	}

	if *jsonOut {
		var msg any
		json.Unmarshal(p.Message(), &msg)
		data, _ := json.MarshalIndent(msg, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	source := "built-in"
	if cfg.SystemPromptFile != "" {
		source = cfg.SystemPromptFile
	}
	fmt.Printf("System prompt (%s, %d bytes)\n", source, len(p.Text()))
	if missing := p.MissingModules(); len(missing) > 0 {
		fmt.Printf("  • Missing module activations: %s\n", strings.Join(missing, ", "))
	} else {
		fmt.Println("  • All module activations present")
	}
	fmt.Println()
	fmt.Println(p.Text())
	return 0
}

func newServer(cfg *config.ServerConfig) (*server.Server, error) {
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if !cfg.HasCredential() {
		slog.Warn("OPENAI_API_KEY is not set; chat requests will fail until it is")
	}

	p, err := loadPrompt(cfg)
	if err != nil {
		return nil, err
	}
	return server.New(cfg, p), nil
}

func loadPrompt(cfg *config.ServerConfig) (*payload.Prompt, error) {
	text := systemPromptMD
	if cfg.SystemPromptFile != "" {
		data, err := os.ReadFile(cfg.SystemPromptFile)
		if err != nil {
			return nil, fmt.Errorf("read system prompt: %w", err)
		}
		text = string(data)
	}
	return payload.NewPrompt(text)
}
