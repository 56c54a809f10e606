package conversation

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX abstracts over pgxpool.Pool and pgx.Tx so the same query methods run
// inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries holds the raw SQL access layer for conversations and messages.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries bound to the given connection or transaction.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// conversationRow is the scan target for conversation queries.
type conversationRow struct {
	ID        pgtype.UUID
	OwnerID   string
	Title     string
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// messageRow is the scan target for message queries. Sources stays raw JSON
// until the store layer unmarshals it.
type messageRow struct {
	ID             pgtype.UUID
	ConversationID pgtype.UUID
	Role           string
	Content        string
	Sources        []byte
	Seq            int32
	CreatedAt      pgtype.Timestamptz
}

const createConversation = `
INSERT INTO conversations (owner_id)
VALUES ($1)
RETURNING id, owner_id, title, created_at, updated_at
`

// CreateConversation inserts a new conversation with the default title.
func (q *Queries) CreateConversation(ctx context.Context, ownerID string) (conversationRow, error) {
	var row conversationRow
	err := q.db.QueryRow(ctx, createConversation, ownerID).
		Scan(&row.ID, &row.OwnerID, &row.Title, &row.CreatedAt, &row.UpdatedAt)
	return row, err
}

const getConversation = `
SELECT id, owner_id, title, created_at, updated_at
FROM conversations
WHERE id = $1 AND owner_id = $2
`

// GetConversation fetches a conversation scoped to its owner. Returns
// pgx.ErrNoRows for both absent and not-owned conversations.
func (q *Queries) GetConversation(ctx context.Context, id pgtype.UUID, ownerID string) (conversationRow, error) {
	var row conversationRow
	err := q.db.QueryRow(ctx, getConversation, id, ownerID).
		Scan(&row.ID, &row.OwnerID, &row.Title, &row.CreatedAt, &row.UpdatedAt)
	return row, err
}

const listConversations = `
SELECT id, owner_id, title, created_at, updated_at
FROM conversations
WHERE owner_id = $1
ORDER BY updated_at DESC
LIMIT $2 OFFSET $3
`

// ListConversations returns the owner's conversations, most recently
// active first.
func (q *Queries) ListConversations(ctx context.Context, ownerID string, limit, offset int32) ([]conversationRow, error) {
	rows, err := q.db.Query(ctx, listConversations, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []conversationRow
	for rows.Next() {
		var row conversationRow
		if err := rows.Scan(&row.ID, &row.OwnerID, &row.Title, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const deleteConversation = `
DELETE FROM conversations
WHERE id = $1 AND owner_id = $2
`

// DeleteConversation removes a conversation and, via ON DELETE CASCADE, all
// its messages. Returns the number of rows deleted (0 or 1).
func (q *Queries) DeleteConversation(ctx context.Context, id pgtype.UUID, ownerID string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteConversation, id, ownerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const lockConversation = `
SELECT id
FROM conversations
WHERE id = $1 AND owner_id = $2
FOR UPDATE
`

// LockConversation takes a row lock on the conversation for the duration of
// the enclosing transaction, serializing seq allocation. Returns
// pgx.ErrNoRows when the conversation is absent or not owned.
func (q *Queries) LockConversation(ctx context.Context, id pgtype.UUID, ownerID string) (pgtype.UUID, error) {
	var locked pgtype.UUID
	err := q.db.QueryRow(ctx, lockConversation, id, ownerID).Scan(&locked)
	return locked, err
}

const countMessages = `
SELECT COUNT(*)
FROM messages
WHERE conversation_id = $1
`

// CountMessages returns the number of persisted messages. Under the
// conversation row lock this doubles as the next seq value.
func (q *Queries) CountMessages(ctx context.Context, conversationID pgtype.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countMessages, conversationID).Scan(&count)
	return count, err
}

const insertMessage = `
INSERT INTO messages (conversation_id, role, content, sources, seq)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, conversation_id, role, content, sources, seq, created_at
`

// InsertMessageParams carries the columns for a message insert.
type InsertMessageParams struct {
	ConversationID pgtype.UUID
	Role           string
	Content        string
	Sources        []byte
	Seq            int32
}

// InsertMessage appends one message row.
func (q *Queries) InsertMessage(ctx context.Context, arg InsertMessageParams) (messageRow, error) {
	var row messageRow
	err := q.db.QueryRow(ctx, insertMessage,
		arg.ConversationID, arg.Role, arg.Content, arg.Sources, arg.Seq).
		Scan(&row.ID, &row.ConversationID, &row.Role, &row.Content, &row.Sources, &row.Seq, &row.CreatedAt)
	return row, err
}

const listMessages = `
SELECT id, conversation_id, role, content, sources, seq, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY seq ASC
LIMIT $2 OFFSET $3
`

// ListMessages returns messages in seq order.
func (q *Queries) ListMessages(ctx context.Context, conversationID pgtype.UUID, limit, offset int32) ([]messageRow, error) {
	rows, err := q.db.Query(ctx, listMessages, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

const listRecentMessages = `
SELECT id, conversation_id, role, content, sources, seq, created_at
FROM (
    SELECT id, conversation_id, role, content, sources, seq, created_at
    FROM messages
    WHERE conversation_id = $1
    ORDER BY seq DESC
    LIMIT $2
) recent
ORDER BY seq ASC
`

// ListRecentMessages returns the last n messages in ascending seq order.
func (q *Queries) ListRecentMessages(ctx context.Context, conversationID pgtype.UUID, n int32) ([]messageRow, error) {
	rows, err := q.db.Query(ctx, listRecentMessages, conversationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]messageRow, error) {
	var out []messageRow
	for rows.Next() {
		var row messageRow
		if err := rows.Scan(&row.ID, &row.ConversationID, &row.Role, &row.Content,
			&row.Sources, &row.Seq, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const updateTitle = `
UPDATE conversations
SET title = $3, updated_at = now()
WHERE id = $1 AND owner_id = $2
`

// UpdateTitle replaces the conversation title, owner scoped.
func (q *Queries) UpdateTitle(ctx context.Context, id pgtype.UUID, ownerID, title string) (int64, error) {
	tag, err := q.db.Exec(ctx, updateTitle, id, ownerID, title)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const touchConversation = `
UPDATE conversations
SET updated_at = now()
WHERE id = $1
`

// TouchConversation bumps updated_at so list-by-recency reflects new
// activity. Called inside the append transaction.
func (q *Queries) TouchConversation(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, touchConversation, id)
	return err
}
