// Package api provides the HTTP server of the kwlq service.
//
// It exposes conversation phase analysis and prompt generation, plus admin
// endpoints for the prompt modules and runtime statistics. The same handler
// serves both the standalone server and the Lambda entry point.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/prompt"
)

// Default server configuration.
const (
	DefaultAddr            = ":8080"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	maxRequestBodyBytes    = 1 << 20
)

// Analyzer classifies conversations.
type Analyzer interface {
	Classify(ctx context.Context, conversationID int64, messages []models.ChatMessage) models.PhaseAnalysis
}

// PromptBuilder builds system prompts for conversations.
type PromptBuilder interface {
	BuildPrompt(ctx context.Context, req prompt.BuildRequest) string
}

// StatsFunc returns one section of the /stats report.
type StatsFunc func() any

// Opts holds configuration for the API server.
type Opts struct {
	Addr           string
	RequestTimeout time.Duration
	Modules        *prompt.ModuleStore
	Stats          map[string]StatsFunc
}

// Option defines a functional option for configuring the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithRequestTimeout bounds the processing time of each request.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.RequestTimeout = d
	}
}

// WithModules enables the prompt module admin endpoints.
func WithModules(m *prompt.ModuleStore) Option {
	return func(o *Opts) {
		o.Modules = m
	}
}

// WithStatsSource adds a named section to the /stats report.
func WithStatsSource(name string, fn StatsFunc) Option {
	return func(o *Opts) {
		if o.Stats == nil {
			o.Stats = make(map[string]StatsFunc)
		}
		o.Stats[name] = fn
	}
}

// Server serves the kwlq HTTP API.
type Server struct {
	analyzer Analyzer
	prompts  PromptBuilder
	modules  *prompt.ModuleStore
	stats    map[string]StatsFunc
	addr     string
	timeout  time.Duration
	started  time.Time

	mu  sync.Mutex
	srv *http.Server
}

// NewServer creates a Server. analyzer and prompts are required.
func NewServer(analyzer Analyzer, prompts PromptBuilder, opts ...Option) (*Server, error) {
	if analyzer == nil {
		return nil, errors.New("api: analyzer is required")
	}
	if prompts == nil {
		return nil, errors.New("api: prompt builder is required")
	}
	o := Opts{Addr: DefaultAddr, RequestTimeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		analyzer: analyzer,
		prompts:  prompts,
		modules:  o.Modules,
		stats:    o.Stats,
		addr:     o.Addr,
		timeout:  o.RequestTimeout,
		started:  time.Now(),
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze-conversation", s.analyzeConversationHandler)
	mux.HandleFunc("POST /generate-prompt", s.generatePromptHandler)
	mux.HandleFunc("GET /prompt-modules", s.listModulesHandler)
	mux.HandleFunc("PUT /prompt-modules/{id}", s.updateModuleHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	return s.withMiddleware(mux)
}

// withMiddleware limits the body size, applies the request timeout and logs requests.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		}
		if s.timeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
		slog.Debug("Server: request handled", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: kwlq API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("Server.Run: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
