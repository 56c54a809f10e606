// Package conversation implements owned, ordered conversation persistence.
//
// A conversation belongs to exactly one owner and holds an append-only list
// of messages. Message order is materialized as a dense seq column allocated
// under a per-conversation row lock, so readers never depend on timestamps
// for ordering.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Message roles. Only end users and the assistant write into a conversation;
// system prompts are assembled at generation time and never persisted.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultTitle is the title every conversation starts with until the
// autogeneration triggers replace it.
const DefaultTitle = "새 대화"

// Conversation is a single owned chat thread.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn half inside a conversation. Seq is dense per
// conversation, starting at 0 for the first message.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Sources        []Source  `json:"sources"`
	Seq            int32     `json:"seq"`
	CreatedAt      time.Time `json:"created_at"`
}

// Source describes one retrieved syllabus passage that grounded an assistant
// message. Stored alongside the message as JSONB so history replays carry
// their citations.
type Source struct {
	CourseName     string `json:"course_name"`
	Professor      string `json:"professor"`
	Section        string `json:"section"`
	ContentPreview string `json:"content_preview"`
}
