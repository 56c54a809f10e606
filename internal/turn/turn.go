// Package turn orchestrates one conversational exchange end to end.
//
// A turn moves through fixed stages: ownership check, user message
// persistence, intent routing, optional retrieval, generation, assistant
// message persistence, and finally the detached title trigger. The user
// message is persisted before anything fallible runs downstream, so a
// failed generation leaves the user's utterance in history rather than
// losing it.
package turn

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/campusqa/campusqa/internal/clova"
	"github.com/campusqa/campusqa/internal/conversation"
	"github.com/campusqa/campusqa/internal/intent"
	"github.com/campusqa/campusqa/internal/log"
	"github.com/campusqa/campusqa/internal/prompt"
	"github.com/campusqa/campusqa/internal/syllabus"
)

// ErrProviderUnavailable is returned when answer generation failed after
// the gateway exhausted its retries. The user message is already persisted
// when this error surfaces.
var ErrProviderUnavailable = errors.New("answer generation unavailable")

// Completer generates chat completions.
type Completer interface {
	Complete(ctx context.Context, req clova.Request) (*clova.Completion, error)
}

// Searcher retrieves syllabus passages for a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]syllabus.Result, error)
}

// Router labels an utterance for routing.
type Router interface {
	Classify(ctx context.Context, utterance string) intent.Label
}

// Store is the conversation persistence surface the orchestrator needs.
// Interfaces are defined by the consumer; *conversation.Store satisfies it.
type Store interface {
	Create(ctx context.Context, ownerID string) (*conversation.Conversation, error)
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*conversation.Conversation, error)
	RecentMessages(ctx context.Context, ownerID string, id uuid.UUID, n int32) ([]*conversation.Message, error)
	Messages(ctx context.Context, ownerID string, id uuid.UUID, limit, offset int32) ([]*conversation.Message, error)
	Append(ctx context.Context, ownerID string, id uuid.UUID, role, content string, sources []conversation.Source) (*conversation.Message, error)
	Count(ctx context.Context, ownerID string, id uuid.UUID) (int64, error)
	SetTitle(ctx context.Context, ownerID string, id uuid.UUID, title string) error
}

// Request is one user turn.
type Request struct {
	OwnerID string

	// ConversationID may be uuid.Nil, in which case a new conversation is
	// created for the turn.
	ConversationID uuid.UUID

	Query string

	// K overrides the retrieval result count; zero uses the default.
	K int
}

// Result is the outcome of a completed turn.
type Result struct {
	ConversationID   uuid.UUID               `json:"conversation_id"`
	Answer           string                  `json:"answer"`
	Sources          []conversation.Source   `json:"sources"`
	Intent           intent.Label            `json:"intent"`
	UserMessage      *conversation.Message   `json:"user_message"`
	AssistantMessage *conversation.Message   `json:"assistant_message"`
}

// Orchestrator runs turns.
//
// Orchestrator is safe for concurrent use by multiple goroutines.
type Orchestrator struct {
	store     Store
	completer Completer
	searcher  Searcher
	router    Router
	logger    log.Logger
}

// New creates an Orchestrator. logger may be nil.
func New(store Store, completer Completer, searcher Searcher, router Router, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		store:     store,
		completer: completer,
		searcher:  searcher,
		router:    router,
		logger:    logger,
	}
}

// Process executes one turn.
//
// Stage order matters:
//  1. Resolve or create the conversation (ownership enforced by the store)
//  2. Fetch the history window BEFORE persisting the user message, so the
//     current utterance never duplicates into the prompt
//  3. Persist the user message
//  4. Route intent; casual chat skips retrieval entirely
//  5. Retrieve and generate, or emit the canned no-results answer
//  6. Persist the assistant message with its sources
//  7. Fire the detached title trigger
//
// A generation failure after stage 3 returns ErrProviderUnavailable and
// leaves the user message persisted.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Result, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("empty query")
	}

	conv, err := o.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With("conversation_id", conv.ID, "owner_id", req.OwnerID)

	history, err := o.store.RecentMessages(ctx, req.OwnerID, conv.ID, prompt.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	userMsg, err := o.store.Append(ctx, req.OwnerID, conv.ID, conversation.RoleUser, req.Query, nil)
	if err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}

	label := o.router.Classify(ctx, req.Query)
	logger.Debug("routed turn", "intent", label)

	answer, sources, err := o.generate(ctx, label, history, req)
	if err != nil {
		logger.Warn("generation failed, user message retained", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	assistantMsg, err := o.store.Append(ctx, req.OwnerID, conv.ID, conversation.RoleAssistant, answer, sources)
	if err != nil {
		return nil, fmt.Errorf("persisting assistant message: %w", err)
	}

	count, err := o.store.Count(ctx, req.OwnerID, conv.ID)
	if err != nil {
		// The turn itself succeeded; a failed count only costs the title.
		logger.Warn("message count failed, skipping title trigger", "error", err)
	} else {
		o.maybeGenerateTitle(ctx, req.OwnerID, conv.ID, count, req.Query)
	}

	return &Result{
		ConversationID:   conv.ID,
		Answer:           answer,
		Sources:          sources,
		Intent:           label,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

func (o *Orchestrator) resolveConversation(ctx context.Context, req Request) (*conversation.Conversation, error) {
	if req.ConversationID == uuid.Nil {
		conv, err := o.store.Create(ctx, req.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := o.store.Get(ctx, req.OwnerID, req.ConversationID)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// generate produces the answer text and sources for the routed turn.
func (o *Orchestrator) generate(ctx context.Context, label intent.Label, history []*conversation.Message, req Request) (string, []conversation.Source, error) {
	if label == intent.CasualChat {
		completion, err := o.completer.Complete(ctx, clova.Request{
			Messages: prompt.Casual(history, req.Query),
		})
		if err != nil {
			return "", nil, err
		}
		return completion.Content, []conversation.Source{}, nil
	}

	results, err := o.searcher.Search(ctx, req.Query, req.K)
	if err != nil {
		return "", nil, fmt.Errorf("retrieval: %w", err)
	}

	// Nothing retrieved: canned apology, generation skipped.
	if len(results) == 0 {
		return prompt.NoResultsAnswer, []conversation.Source{}, nil
	}

	completion, err := o.completer.Complete(ctx, clova.Request{
		Messages: prompt.Domain(history, results, req.Query),
	})
	if err != nil {
		return "", nil, err
	}
	return completion.Content, prompt.Sources(results), nil
}
