package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/critic/internal/api"
	"github.com/jackzampolin/critic/internal/config"
	"github.com/jackzampolin/critic/internal/home"
	"github.com/jackzampolin/critic/internal/llmcall"
	"github.com/jackzampolin/critic/internal/providers"
	"github.com/jackzampolin/critic/internal/reviewer"
	"github.com/jackzampolin/critic/internal/server/endpoints"
	"github.com/jackzampolin/critic/internal/svcctx"
)

// Server is the critic HTTP server. It owns the provider registry, the
// reviewer, and the in-memory call history, and reloads providers when
// the config file changes.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	reviewer   *reviewer.Reviewer
	callStore  *llmcall.Store
	configMgr  *config.Manager
	homeDir    *home.Dir
	logger     *slog.Logger

	// services holds all core services for context enrichment. Set by
	// Start before the listener comes up; until then requiresInit
	// endpoints answer 503.
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// ListenAddr is the address to listen on (default: :8080)
	ListenAddr string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the critic home directory (optional)
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	listenAddr := cfg.ListenAddr
	maxCalls := llmcall.DefaultMaxCalls
	defaultProvider := ""
	if cfg.ConfigManager != nil {
		c := cfg.ConfigManager.Get()
		if listenAddr == "" {
			listenAddr = c.Server.ListenAddr
		}
		if c.History.MaxCalls > 0 {
			maxCalls = c.History.MaxCalls
		}
		defaultProvider = c.Defaults.LLMProvider
	}
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	// Create provider registry
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)
	if cfg.ConfigManager != nil {
		registry.Reload(cfg.ConfigManager.Get().ToProviderRegistryConfig())
	}

	callStore := llmcall.NewStore(maxCalls)
	rev := reviewer.New(reviewer.Config{
		Registry:        registry,
		Recorder:        llmcall.NewRecorder(callStore),
		DefaultProvider: defaultProvider,
		Logger:          cfg.Logger,
	})

	// Watch for config changes: reload providers and the default
	// provider selection
	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			registry.Reload(c.ToProviderRegistryConfig())
			rev.SetDefaultProvider(c.Defaults.LLMProvider)
			cfg.Logger.Info("provider registry reloaded from config")
		})
	}

	s := &Server{
		registry:  registry,
		reviewer:  rev,
		callStore: callStore,
		configMgr: cfg.ConfigManager,
		homeDir:   cfg.Home,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{StartedAt: time.Now()}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server. Review handlers block on the LLM provider, so
	// the write timeout is generous.
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         listenAddr,
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server and blocks until the context is cancelled or
// an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Wire services before the listener comes up so every request sees
	// a complete context.
	s.services = &svcctx.Services{
		Registry:     s.registry,
		Reviewer:     s.reviewer,
		LLMCallStore: s.callStore,
		Config:       s.configMgr,
		Logger:       s.logger,
		Home:         s.homeDir,
	}

	if llms := s.registry.ListLLM(); len(llms) > 0 {
		s.logger.Info("providers registered", "llm", llms, "default", s.reviewer.DefaultProvider())
	} else {
		s.logger.Warn("no LLM providers registered; review endpoints will fail until providers are configured")
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown drains in-flight requests and stops the HTTP server.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Reviewer returns the reviewer service.
func (s *Server) Reviewer() *reviewer.Reviewer {
	return s.reviewer
}

// CallStore returns the in-memory call history.
func (s *Server) CallStore() *llmcall.Store {
	return s.callStore
}

// Handler returns the server's HTTP handler, for tests that drive
// requests without a listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully started.
// Returns 503 Service Unavailable until Start has wired the services.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
