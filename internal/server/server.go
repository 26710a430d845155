package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/n0madic/donachat/internal/config"
	"github.com/n0madic/donachat/internal/feedback"
	"github.com/n0madic/donachat/internal/metrics"
	"github.com/n0madic/donachat/internal/payload"
	"github.com/n0madic/donachat/internal/relay"
	"github.com/n0madic/donachat/internal/upstream"
)

// Server is the main HTTP server.
type Server struct {
	Config     *config.ServerConfig
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry
	Relay      *relay.Handler
	Feedback   *feedback.Handler
	handler    http.Handler
	httpServer *http.Server
}

// New creates a new server with all routes registered. The upstream client
// is built from cfg; the system prompt is fixed for the server's lifetime.
func New(cfg *config.ServerConfig, prompt *payload.Prompt) *Server {
	uc := upstream.NewClient(cfg.ChatURL, upstream.StaticCredential(cfg.APIKey), cfg.UpstreamTimeout)
	uc.Verbose = cfg.Verbose
	uc.Debug = cfg.Debug
	return NewWithForwarder(cfg, prompt, uc)
}

// NewWithForwarder is New with an explicit completion-service forwarder.
func NewWithForwarder(cfg *config.ServerConfig, prompt *payload.Prompt, fwd relay.Forwarder) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	s := &Server{
		Config:   cfg,
		Metrics:  m,
		Registry: reg,
		Relay: relay.NewHandler(
			payload.NewBuilder(prompt, payload.DefaultsFor(cfg.Model)),
			fwd,
			m,
			cfg.Verbose,
		),
		Feedback: feedback.NewHandler(cfg.FeedbackURL, &http.Client{Timeout: 30 * time.Second}, m),
	}
	if p := s.Relay.Builder.Prompt(); p != nil {
		if missing := p.MissingModules(); len(missing) > 0 {
			slog.Warn("system prompt does not mention every module activation", "missing", missing)
		}
	}
	s.handler = s.routes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 600 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.Config.Verbose))
	r.Use(corsMiddleware(s.Config.CORSOrigins))
	if s.Config.Debug {
		r.Use(debugMiddleware)
	}

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))

	// Method checks live in the handlers so every verb gets the JSON envelope.
	r.Handle("/api/openai", s.Relay)
	r.Handle("/v1/chat/completions", s.Relay)
	r.Handle("/api/submit-feedback", s.Feedback)
	return r
}

// Handler returns the routed handler, for hosts that bring their own
// listener (the Lambda runtime, tests).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	slog.Info("server.listening", "addr", s.httpServer.Addr, "model", s.Config.Model, "credential", s.Config.HasCredential())
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
