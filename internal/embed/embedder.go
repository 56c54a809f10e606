// Package embed generates text embeddings for syllabus retrieval.
//
// The Gemini implementation calls gemini-embedding-001 truncated to 768
// dimensions, matching the vector(768) column the chunks are stored in.
// A bounded worker pool in pool.go caps concurrent embedding calls.
package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/campusqa/campusqa/internal/log"
)

// Embedder produces one vector per input text.
// Interfaces are defined by the consumer; syllabus and the pool both accept
// any Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	APIKey    string
	Model     string // e.g. gemini-embedding-001
	Dimension int    // output dimensionality, e.g. 768
}

// Gemini embeds text via the Gemini API.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
	logger log.Logger
}

// NewGemini creates a Gemini embedder. logger may be nil.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger log.Logger) (*Gemini, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Gemini{client: client, cfg: cfg, logger: logger}, nil
}

// Embed returns the embedding vector for text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(g.cfg.Dimension) // #nosec G115 -- dimension is a small configured constant

	resp, err := g.client.Models.EmbedContent(ctx, g.cfg.Model,
		genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	values := resp.Embeddings[0].Values
	if len(values) != g.cfg.Dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d",
			len(values), g.cfg.Dimension)
	}
	return values, nil
}
