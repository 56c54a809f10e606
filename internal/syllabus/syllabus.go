// Package syllabus implements vector retrieval over course syllabus chunks.
//
// Chunks live in PostgreSQL with a pgvector embedding column; search embeds
// the query text and ranks by cosine distance.
package syllabus

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/campusqa/campusqa/internal/embed"
	"github.com/campusqa/campusqa/internal/log"
)

const (
	// DefaultTopK is the number of results when the caller passes k <= 0.
	DefaultTopK = 5

	// MaxTopK caps caller-requested result counts.
	MaxTopK = 10
)

// Chunk is one stored syllabus passage.
type Chunk struct {
	ID         uuid.UUID
	Content    string
	CourseName string
	Professor  string
	Section    string
}

// Result is a retrieved chunk with its similarity score. Score is cosine
// similarity in [0, 1]; higher is more similar.
type Result struct {
	Chunk
	Score float64
}

// DB abstracts the pgx query surface Search and Upsert need.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Service retrieves syllabus chunks by semantic similarity.
//
// Service is safe for concurrent use by multiple goroutines.
type Service struct {
	db       DB
	embedder embed.Embedder
	topK     int
	logger   log.Logger
}

// NewService creates a Service. topK is the default result count when the
// caller does not specify one; zero means DefaultTopK. logger may be nil.
func NewService(db DB, embedder embed.Embedder, topK int, logger log.Logger) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{db: db, embedder: embedder, topK: topK, logger: logger}
}

const searchQuery = `
SELECT id, content, course_name, professor, section,
       1 - (embedding <=> $1) AS score
FROM syllabus_chunks
ORDER BY embedding <=> $1
LIMIT $2
`

// Search embeds query and returns the k most similar chunks. k is clamped
// to [1, MaxTopK]; k <= 0 selects the configured default. An empty corpus
// yields an empty slice, not an error.
func (s *Service) Search(ctx context.Context, query string, k int) ([]Result, error) {
	k = s.clampK(k)

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.db.Query(ctx, searchQuery, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Content, &r.CourseName, &r.Professor, &r.Section, &r.Score); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}

	s.logger.Debug("syllabus search", "k", k, "results", len(results))
	return results, nil
}

const insertChunk = `
INSERT INTO syllabus_chunks (content, course_name, professor, section, embedding)
VALUES ($1, $2, $3, $4, $5)
`

// Upsert embeds and stores chunks. Used by the seed command; not part of
// the turn path.
func (s *Service) Upsert(ctx context.Context, chunks []Chunk) error {
	for i, chunk := range chunks {
		vector, err := s.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return fmt.Errorf("embedding chunk %d: %w", i, err)
		}

		if _, err := s.db.Exec(ctx, insertChunk,
			chunk.Content, chunk.CourseName, chunk.Professor, chunk.Section,
			pgvector.NewVector(vector)); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	s.logger.Debug("upserted syllabus chunks", "count", len(chunks))
	return nil
}

func (s *Service) clampK(k int) int {
	if k <= 0 {
		k = s.topK
	}
	if k > MaxTopK {
		k = MaxTopK
	}
	return k
}
