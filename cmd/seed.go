package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/campusqa/campusqa/db"
	"github.com/campusqa/campusqa/internal/config"
	"github.com/campusqa/campusqa/internal/database"
	"github.com/campusqa/campusqa/internal/embed"
	"github.com/campusqa/campusqa/internal/syllabus"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.json>",
	Short: "Index syllabus chunks from a JSON file",
	Long: `Seed reads a JSON array of syllabus chunks, embeds each chunk's
content, and stores them for retrieval.

Input format:

  [
    {
      "content": "3주차: 이진 탐색 트리...",
      "course_name": "자료구조",
      "professor": "김교수",
      "section": "주차별 계획"
    }
  ]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedChunk is the JSON shape of one chunk in the seed file.
type seedChunk struct {
	Content    string `json:"content"`
	CourseName string `json:"course_name"`
	Professor  string `json:"professor"`
	Section    string `json:"section"`
}

func runSeed(parent context.Context, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.GeminiAPIKey == "" {
		return config.ErrMissingGeminiKey
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied CLI argument
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}

	var raw []seedChunk
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("seed file contains no chunks")
	}

	chunks := make([]syllabus.Chunk, len(raw))
	for i, c := range raw {
		if c.Content == "" {
			return fmt.Errorf("chunk %d has empty content", i)
		}
		chunks[i] = syllabus.Chunk{
			Content:    c.Content,
			CourseName: c.CourseName,
			Professor:  c.Professor,
			Section:    c.Section,
		}
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dsn := cfg.PostgresDSN()
	if err := db.Migrate(dsn); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	logger := slog.Default()
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

	service := syllabus.NewService(pool, embedPool, cfg.RetrievalTopK, logger)
	if err := service.Upsert(ctx, chunks); err != nil {
		return fmt.Errorf("indexing chunks: %w", err)
	}

	fmt.Printf("Indexed %d syllabus chunks from %s\n", len(chunks), path)
	return nil
}
