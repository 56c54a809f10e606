package turn

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campusqa/campusqa/internal/clova"
	"github.com/campusqa/campusqa/internal/prompt"
)

const (
	// titleMaxLen is the rune cap on generated titles.
	titleMaxLen = 30

	// firstTitleAtCount triggers on the first completed exchange: the title
	// becomes the first utterance, truncated.
	firstTitleAtCount = 2

	// summaryTitleAtCount triggers on the fifth completed exchange: the
	// title becomes a model-generated summary of the conversation.
	summaryTitleAtCount = 10

	// titleTimeout bounds the detached title work.
	titleTimeout = 30 * time.Second
)

// maybeGenerateTitle fires the title update when the message count hits a
// trigger exactly. Catch-up is intentional non-behavior: a conversation that
// skips past a trigger (for example via orphaned user messages) keeps its
// current title.
//
// The work runs in a detached goroutine with its own deadline, so neither a
// slow summarization nor a canceled request context can affect the turn
// response. Failures are logged and otherwise invisible to the user.
func (o *Orchestrator) maybeGenerateTitle(ctx context.Context, ownerID string, convID uuid.UUID, count int64, query string) {
	if count != firstTitleAtCount && count != summaryTitleAtCount {
		return
	}

	// Detach from the request's cancellation but keep its values for
	// tracing.
	detached := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("title generation panicked",
					"conversation_id", convID, "panic", r)
			}
		}()

		titleCtx, cancel := context.WithTimeout(detached, titleTimeout)
		defer cancel()

		var err error
		switch count {
		case firstTitleAtCount:
			err = o.setTitleFromQuery(titleCtx, ownerID, convID, query)
		case summaryTitleAtCount:
			err = o.setTitleFromSummary(titleCtx, ownerID, convID)
		}
		if err != nil {
			o.logger.Warn("title generation failed",
				"conversation_id", convID, "count", count, "error", err)
		}
	}()
}

// setTitleFromQuery titles the conversation with the first utterance,
// truncated to 30 runes with an ellipsis marker.
func (o *Orchestrator) setTitleFromQuery(ctx context.Context, ownerID string, convID uuid.UUID, query string) error {
	title := prompt.Truncate(query, titleMaxLen)
	if err := o.store.SetTitle(ctx, ownerID, convID, title); err != nil {
		return err
	}
	o.logger.Debug("set conversation title from first utterance",
		"conversation_id", convID, "title", title)
	return nil
}

// setTitleFromSummary asks the model for a short summary title of the
// conversation so far.
func (o *Orchestrator) setTitleFromSummary(ctx context.Context, ownerID string, convID uuid.UUID) error {
	messages, err := o.store.Messages(ctx, ownerID, convID, summaryTitleAtCount, 0)
	if err != nil {
		return err
	}

	completion, err := o.completer.Complete(ctx, clova.Request{
		Messages:  prompt.Title(messages),
		MaxTokens: 100,
	})
	if err != nil {
		return err
	}

	title := strings.TrimSpace(completion.Content)
	runes := []rune(title)
	if len(runes) > titleMaxLen {
		title = string(runes[:titleMaxLen])
	}
	if title == "" {
		return nil
	}

	if err := o.store.SetTitle(ctx, ownerID, convID, title); err != nil {
		return err
	}
	o.logger.Debug("set conversation title from summary",
		"conversation_id", convID, "title", title)
	return nil
}
