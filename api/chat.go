package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/campusqa/campusqa/internal/auth"
	"github.com/campusqa/campusqa/internal/conversation"
	"github.com/campusqa/campusqa/internal/log"
	"github.com/campusqa/campusqa/internal/turn"
)

// MaxQueryLength caps the user utterance in bytes.
const MaxQueryLength = 4000

// TurnRunner executes one conversational turn. *turn.Orchestrator
// satisfies it; tests substitute a fake.
type TurnRunner interface {
	Process(ctx context.Context, req turn.Request) (*turn.Result, error)
}

// ChatHandler handles turn endpoints.
type ChatHandler struct {
	orch   TurnRunner
	logger log.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(orch TurnRunner, logger log.Logger) *ChatHandler {
	return &ChatHandler{orch: orch, logger: logger}
}

// RegisterRoutes registers turn routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
	mux.HandleFunc("POST /api/conversations/{id}/messages", h.message)
}

// ChatRequest is the request body for both turn endpoints.
// ConversationID is only honored on /api/chat; the nested endpoint takes it
// from the path.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	K              int    `json:"k,omitempty"`

	// IncludeSources controls whether sources appear in the response.
	// They are persisted with the assistant message either way.
	IncludeSources *bool `json:"include_sources,omitempty"`
}

// chat runs a turn, creating a conversation when none is given.
func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	convID := uuid.Nil
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "conversation_id must be a UUID")
			return
		}
		convID = id
	}

	h.runTurn(w, r, convID, req)
}

// message runs a turn inside an existing conversation.
func (h *ChatHandler) message(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	h.runTurn(w, r, id, req)
}

func (h *ChatHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return req, false
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "message is required")
		return req, false
	}
	if len(req.Message) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_body", "message too long")
		return req, false
	}
	return req, true
}

func (h *ChatHandler) runTurn(w http.ResponseWriter, r *http.Request, convID uuid.UUID, req ChatRequest) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	result, err := h.orch.Process(r.Context(), turn.Request{
		OwnerID:        ownerID,
		ConversationID: convID,
		Query:          req.Message,
		K:              req.K,
	})
	if err != nil {
		h.writeTurnError(w, err)
		return
	}

	if req.IncludeSources != nil && !*req.IncludeSources {
		result.Sources = nil
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ChatHandler) writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
	case errors.Is(err, turn.ErrProviderUnavailable):
		// The user message is persisted; the client can retry the turn.
		h.logger.Warn("turn failed upstream", "error", err)
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable",
			"answer generation is temporarily unavailable")
	default:
		h.logger.Error("turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to process message")
	}
}
