// Package api provides the HTTP REST API for campusqa.
//
// Endpoints:
//
//	GET    /health                            liveness probe
//	GET    /ready                             readiness probe
//	POST   /api/conversations                 create conversation
//	GET    /api/conversations                 list conversations
//	GET    /api/conversations/{id}            get conversation
//	DELETE /api/conversations/{id}            delete conversation
//	GET    /api/conversations/{id}/messages   list messages
//	POST   /api/conversations/{id}/messages   run a turn in the conversation
//	POST   /api/chat                          run a turn, auto-creating a conversation
//
// Everything under /api/ requires a bearer token; the probes do not.
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (recovery, logging, auth)
//   - health.go: Health check endpoints (/health, /ready)
//   - conversation.go: Conversation CRUD endpoints
//   - chat.go: Turn endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusqa/campusqa/internal/auth"
	"github.com/campusqa/campusqa/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generation with retries can take a while; this is the hard ceiling.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the campusqa REST API.
type Server struct {
	mux           *http.ServeMux
	authenticator auth.Authenticator
	logger        log.Logger

	// Handlers
	health       *HealthHandler
	conversation *ConversationHandler
	chat         *ChatHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(pool *pgxpool.Pool, store ConversationStore, orch TurnRunner, authenticator auth.Authenticator, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:           mux,
		authenticator: authenticator,
		logger:        logger,
		health:        NewHealthHandler(pool, logger),
		conversation:  NewConversationHandler(store, logger),
		chat:          NewChatHandler(orch, logger),
	}

	s.health.RegisterRoutes(mux)
	s.conversation.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → auth → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware,
		loggingMiddleware,
		authMiddleware(s.authenticator),
	)
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
