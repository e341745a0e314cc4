package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kagami-ai/kagami/internal/auth"
	"github.com/kagami-ai/kagami/internal/service/twin"
)

// Server is the Kagami HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): JWTMgr (nil disables auth), MCPServer.
type ServerConfig struct {
	// Required dependencies.
	Service *twin.Service
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	JWTMgr     *auth.JWTManager
	APIKeyHash string
	MCPServer  *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Service:             cfg.Service,
		JWTMgr:              cfg.JWTMgr,
		APIKeyHash:          cfg.APIKeyHash,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Auth endpoint (no auth required).
	mux.HandleFunc("POST /auth/token", h.HandleAuthToken)

	// Decision log.
	mux.HandleFunc("POST /v1/decisions", h.HandleLogDecision)
	mux.HandleFunc("PATCH /v1/decisions/{id}/outcome", h.HandleUpdateOutcome)
	mux.HandleFunc("GET /v1/decisions/recent", h.HandleRecentDecisions)
	mux.HandleFunc("GET /v1/decisions/by-tag", h.HandleDecisionsByTag)
	mux.HandleFunc("GET /v1/decisions/timeline", h.HandleTimeline)
	mux.HandleFunc("GET /v1/decisions/similar", h.HandleSimilarDecisions)

	// Live checks, no storage.
	mux.HandleFunc("POST /v1/decisions/check", h.HandleCheckDecision)
	mux.HandleFunc("POST /v1/regret", h.HandlePredictRegret)

	// Analysis over the full log.
	mux.HandleFunc("GET /v1/patterns", h.HandlePatterns)
	mux.HandleFunc("GET /v1/biases", h.HandleBiases)

	// Cognitive state monitor.
	mux.HandleFunc("GET /v1/state", h.HandleState)
	mux.HandleFunc("GET /v1/state/daily", h.HandleDailyStats)
	mux.HandleFunc("POST /v1/state/break", h.HandleTakeBreak)
	mux.HandleFunc("POST /v1/activity", h.HandleLogActivity)

	// MCP StreamableHTTP transport (behind auth like the rest of /v1).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// Health (no auth).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
