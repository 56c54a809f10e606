package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusqa/campusqa/internal/log"
)

// Querier defines the database operations Store depends on.
// Following Go best practices: interfaces are defined by the consumer, not
// the provider. Tests substitute a mock; production uses *Queries.
type Querier interface {
	CreateConversation(ctx context.Context, ownerID string) (conversationRow, error)
	GetConversation(ctx context.Context, id pgtype.UUID, ownerID string) (conversationRow, error)
	ListConversations(ctx context.Context, ownerID string, limit, offset int32) ([]conversationRow, error)
	DeleteConversation(ctx context.Context, id pgtype.UUID, ownerID string) (int64, error)
	LockConversation(ctx context.Context, id pgtype.UUID, ownerID string) (pgtype.UUID, error)

	CountMessages(ctx context.Context, conversationID pgtype.UUID) (int64, error)
	InsertMessage(ctx context.Context, arg InsertMessageParams) (messageRow, error)
	ListMessages(ctx context.Context, conversationID pgtype.UUID, limit, offset int32) ([]messageRow, error)
	ListRecentMessages(ctx context.Context, conversationID pgtype.UUID, n int32) ([]messageRow, error)
	UpdateTitle(ctx context.Context, id pgtype.UUID, ownerID, title string) (int64, error)
	TouchConversation(ctx context.Context, id pgtype.UUID) error
}

// Store manages conversation persistence with a PostgreSQL backend.
//
// Every read and write is owner scoped: callers pass the authenticated owner
// ID and a conversation that exists under a different owner behaves exactly
// like one that does not exist.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	querier Querier
	pool    *pgxpool.Pool // for transaction support, nil in mock tests
	logger  log.Logger
}

// NewStore creates a Store.
//
// pool may be nil in tests with a mock querier; Append then runs without a
// transaction, which is only safe under external synchronization.
func NewStore(querier Querier, pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{querier: querier, pool: pool, logger: logger}
}

// Create starts a new empty conversation for the owner. The title is the
// shared default until autogeneration replaces it.
func (s *Store) Create(ctx context.Context, ownerID string) (*Conversation, error) {
	row, err := s.querier.CreateConversation(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	conv := rowToConversation(row)
	s.logger.Debug("created conversation", "id", conv.ID, "owner_id", ownerID)
	return conv, nil
}

// Get retrieves an owned conversation. Returns ErrNotFound when the
// conversation is absent or belongs to someone else.
func (s *Store) Get(ctx context.Context, ownerID string, id uuid.UUID) (*Conversation, error) {
	row, err := s.querier.GetConversation(ctx, uuidToPgUUID(id), ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting conversation %s: %w", id, err)
	}
	return rowToConversation(row), nil
}

// List returns the owner's conversations ordered by updated_at descending.
func (s *Store) List(ctx context.Context, ownerID string, limit, offset int32) ([]*Conversation, error) {
	rows, err := s.querier.ListConversations(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	convs := make([]*Conversation, 0, len(rows))
	for _, row := range rows {
		convs = append(convs, rowToConversation(row))
	}
	return convs, nil
}

// Delete removes a conversation and all its messages. Returns ErrNotFound
// when nothing was deleted.
func (s *Store) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	deleted, err := s.querier.DeleteConversation(ctx, uuidToPgUUID(id), ownerID)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	if deleted == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted conversation", "id", id, "owner_id", ownerID)
	return nil
}

// Messages returns a page of messages in seq order, after verifying
// ownership.
func (s *Store) Messages(ctx context.Context, ownerID string, id uuid.UUID, limit, offset int32) ([]*Message, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}

	rows, err := s.querier.ListMessages(ctx, uuidToPgUUID(id), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", id, err)
	}
	return rowsToMessages(rows)
}

// RecentMessages returns the last n messages in ascending seq order, after
// verifying ownership. Used to build the generation history window.
func (s *Store) RecentMessages(ctx context.Context, ownerID string, id uuid.UUID, n int32) ([]*Message, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}

	rows, err := s.querier.ListRecentMessages(ctx, uuidToPgUUID(id), n)
	if err != nil {
		return nil, fmt.Errorf("listing recent messages for %s: %w", id, err)
	}
	return rowsToMessages(rows)
}

// Append persists one message with the next sequence number and bumps the
// conversation's updated_at, all in a single transaction.
//
// Sequence allocation takes a SELECT ... FOR UPDATE lock on the conversation
// row, then uses the current message count as the new seq. Concurrent
// appends to the same conversation therefore serialize instead of racing;
// the UNIQUE(conversation_id, seq) constraint backs this up.
func (s *Store) Append(ctx context.Context, ownerID string, id uuid.UUID, role, content string, sources []Source) (*Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	if sources == nil {
		sources = []Source{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("marshaling sources: %w", err)
	}

	// If pool is nil (testing with mock), use non-transactional mode.
	if s.pool == nil {
		return s.appendNonTransactional(ctx, ownerID, id, role, content, sourcesJSON)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	q := NewQueries(tx)

	if _, err := q.LockConversation(ctx, uuidToPgUUID(id), ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("locking conversation %s: %w", id, err)
	}

	count, err := q.CountMessages(ctx, uuidToPgUUID(id))
	if err != nil {
		return nil, fmt.Errorf("counting messages for %s: %w", id, err)
	}

	row, err := q.InsertMessage(ctx, InsertMessageParams{
		ConversationID: uuidToPgUUID(id),
		Role:           role,
		Content:        content,
		Sources:        sourcesJSON,
		Seq:            int32(count), // #nosec G115 -- bounded by per-conversation message counts
	})
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := q.TouchConversation(ctx, uuidToPgUUID(id)); err != nil {
		return nil, fmt.Errorf("touching conversation %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	msg, err := rowToMessage(row)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("appended message",
		"conversation_id", id, "role", role, "seq", msg.Seq)
	return msg, nil
}

// appendNonTransactional appends without a transaction (for testing with
// mocks). Only safe when external synchronization is guaranteed.
func (s *Store) appendNonTransactional(ctx context.Context, ownerID string, id uuid.UUID, role, content string, sourcesJSON []byte) (*Message, error) {
	if _, err := s.querier.LockConversation(ctx, uuidToPgUUID(id), ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("locking conversation %s: %w", id, err)
	}

	count, err := s.querier.CountMessages(ctx, uuidToPgUUID(id))
	if err != nil {
		return nil, fmt.Errorf("counting messages for %s: %w", id, err)
	}

	row, err := s.querier.InsertMessage(ctx, InsertMessageParams{
		ConversationID: uuidToPgUUID(id),
		Role:           role,
		Content:        content,
		Sources:        sourcesJSON,
		Seq:            int32(count), // #nosec G115 -- bounded by per-conversation message counts
	})
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := s.querier.TouchConversation(ctx, uuidToPgUUID(id)); err != nil {
		return nil, fmt.Errorf("touching conversation %s: %w", id, err)
	}

	return rowToMessage(row)
}

// Count returns the number of persisted messages after verifying ownership.
// The title triggers compare against this value.
func (s *Store) Count(ctx context.Context, ownerID string, id uuid.UUID) (int64, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return 0, err
	}

	count, err := s.querier.CountMessages(ctx, uuidToPgUUID(id))
	if err != nil {
		return 0, fmt.Errorf("counting messages for %s: %w", id, err)
	}
	return count, nil
}

// SetTitle replaces the conversation title. Returns ErrNotFound when the
// conversation is absent or not owned.
func (s *Store) SetTitle(ctx context.Context, ownerID string, id uuid.UUID, title string) error {
	updated, err := s.querier.UpdateTitle(ctx, uuidToPgUUID(id), ownerID, title)
	if err != nil {
		return fmt.Errorf("updating title for %s: %w", id, err)
	}
	if updated == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated conversation title", "id", id, "title", title)
	return nil
}

func rowToConversation(row conversationRow) *Conversation {
	return &Conversation{
		ID:        pgUUIDToUUID(row.ID),
		OwnerID:   row.OwnerID,
		Title:     row.Title,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
}

func rowToMessage(row messageRow) (*Message, error) {
	sources := []Source{}
	if len(row.Sources) > 0 {
		if err := json.Unmarshal(row.Sources, &sources); err != nil {
			return nil, fmt.Errorf("unmarshaling sources: %w", err)
		}
	}

	return &Message{
		ID:             pgUUIDToUUID(row.ID),
		ConversationID: pgUUIDToUUID(row.ConversationID),
		Role:           row.Role,
		Content:        row.Content,
		Sources:        sources,
		Seq:            row.Seq,
		CreatedAt:      row.CreatedAt.Time,
	}, nil
}

func rowsToMessages(rows []messageRow) ([]*Message, error) {
	messages := make([]*Message, 0, len(rows))
	for _, row := range rows {
		msg, err := rowToMessage(row)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// uuidToPgUUID converts uuid.UUID to pgtype.UUID.
func uuidToPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// pgUUIDToUUID converts pgtype.UUID to uuid.UUID.
func pgUUIDToUUID(pgUUID pgtype.UUID) uuid.UUID {
	if !pgUUID.Valid {
		return uuid.Nil
	}
	return pgUUID.Bytes
}
