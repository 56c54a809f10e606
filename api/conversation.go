package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/campusqa/campusqa/internal/auth"
	"github.com/campusqa/campusqa/internal/conversation"
	"github.com/campusqa/campusqa/internal/log"
)

// Pagination bounds.
const (
	DefaultListLimit    = 50
	MaxListLimit        = 200
	DefaultMessageLimit = 100
	MaxMessageLimit     = 500
	MaxListOffset       = 100000 // Reasonable upper bound for pagination offset
)

// ConversationStore is the persistence surface the CRUD endpoints need.
// *conversation.Store satisfies it; tests substitute a fake.
type ConversationStore interface {
	Create(ctx context.Context, ownerID string) (*conversation.Conversation, error)
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*conversation.Conversation, error)
	List(ctx context.Context, ownerID string, limit, offset int32) ([]*conversation.Conversation, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	Messages(ctx context.Context, ownerID string, id uuid.UUID, limit, offset int32) ([]*conversation.Message, error)
}

// ConversationHandler handles conversation CRUD endpoints.
type ConversationHandler struct {
	store  ConversationStore
	logger log.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(store ConversationStore, logger log.Logger) *ConversationHandler {
	return &ConversationHandler{store: store, logger: logger}
}

// RegisterRoutes registers conversation routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/conversations", h.create)
	mux.HandleFunc("GET /api/conversations", h.list)
	mux.HandleFunc("GET /api/conversations/{id}", h.get)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.delete)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.messages)
}

// create creates a new empty conversation for the authenticated owner.
func (h *ConversationHandler) create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	conv, err := h.store.Create(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to create conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to create conversation")
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// list returns the owner's conversations ordered by recent activity.
// Query parameters:
//   - limit: Maximum number of conversations to return (default: 50, max: 200)
//   - offset: Number of conversations to skip (default: 0)
func (h *ConversationHandler) list(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- limit and offset are bounded by MaxListLimit and MaxListOffset
	convs, err := h.store.List(r.Context(), ownerID, int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convs,
		"total":         len(convs),
		"limit":         limit,
		"offset":        offset,
	})
}

// get returns a single owned conversation.
func (h *ConversationHandler) get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	conv, err := h.store.Get(r.Context(), ownerID, id)
	if err != nil {
		h.writeStoreError(w, err, "failed to get conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// delete removes a conversation and all its messages.
func (h *ConversationHandler) delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), ownerID, id); err != nil {
		h.writeStoreError(w, err, "failed to delete conversation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// messages returns a page of the conversation's messages in order.
func (h *ConversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	limit := parseIntParam(r, "limit", DefaultMessageLimit, 1, MaxMessageLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- limit and offset are bounded by MaxMessageLimit and MaxListOffset
	msgs, err := h.store.Messages(r.Context(), ownerID, id, int32(limit), int32(offset))
	if err != nil {
		h.writeStoreError(w, err, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"total":    len(msgs),
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *ConversationHandler) writeStoreError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	h.logger.Error(message, "error", err)
	writeError(w, http.StatusInternalServerError, "internal", message)
}

// pathUUID parses the {id} path segment, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "conversation ID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, minVal, maxVal int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
