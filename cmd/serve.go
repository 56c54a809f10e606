package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/campusqa/campusqa/api"
	"github.com/campusqa/campusqa/db"
	"github.com/campusqa/campusqa/internal/auth"
	"github.com/campusqa/campusqa/internal/clova"
	"github.com/campusqa/campusqa/internal/config"
	"github.com/campusqa/campusqa/internal/conversation"
	"github.com/campusqa/campusqa/internal/database"
	"github.com/campusqa/campusqa/internal/embed"
	"github.com/campusqa/campusqa/internal/intent"
	"github.com/campusqa/campusqa/internal/observability"
	"github.com/campusqa/campusqa/internal/syllabus"
	"github.com/campusqa/campusqa/internal/turn"
)

// embedQueueSize bounds the embedding worker pool's pending job queue.
const embedQueueSize = 64

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port), overrides config")
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes all components and starts the HTTP API server.
func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	if err := validateAddr(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting campusqa server", "version", AppVersion)

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	dsn := cfg.PostgresDSN()
	if err := db.Migrate(dsn); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	store := conversation.NewStore(conversation.NewQueries(pool), pool, logger)

	completer := clova.NewClient(clova.Config{
		Host:        cfg.ClovaHost,
		APIKey:      cfg.ClovaAPIKey,
		Model:       cfg.ClovaModel,
		RequestID:   cfg.ClovaRequestID,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Retry:       clova.DefaultRetryConfig(),
	}, logger)

	gemini, err := embed.NewGemini(ctx, embed.GeminiConfig{
		APIKey:    cfg.GeminiAPIKey,
		Model:     cfg.EmbedderModel,
		Dimension: cfg.EmbedDim,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	embedPool := embed.NewPool(gemini, cfg.EmbedWorkers, embedQueueSize, logger)
	defer embedPool.Close()

	searcher := syllabus.NewService(pool, embedPool, cfg.RetrievalTopK, logger)
	router := intent.NewClassifier(completer, logger)
	orchestrator := turn.New(store, completer, searcher, router, logger)
	authenticator := auth.NewHMAC(cfg.AuthSecret)

	server := api.NewServer(pool, store, orchestrator, authenticator, logger)
	return server.Run(ctx, addr)
}

// validateAddr validates the server address format.
func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be in host:port format: %w", err)
	}

	if host != "" && host != "localhost" {
		if ip := net.ParseIP(host); ip == nil {
			return fmt.Errorf("invalid host: %s", host)
		}
	}

	if port == "" {
		return fmt.Errorf("port is required")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric: %w", err)
	}
	if portNum < 0 || portNum > 65535 {
		return fmt.Errorf("port must be 0-65535 (0 = auto-assign), got %d", portNum)
	}

	return nil
}
