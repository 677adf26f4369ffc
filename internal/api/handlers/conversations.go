package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dvloznov/finance-assistant/internal/api/middleware"
	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/history"
	"github.com/rs/zerolog"
)

// ConversationsHandler handles sessions and conversation history.
type ConversationsHandler struct {
	history history.Store
	log     zerolog.Logger
}

// NewConversationsHandler creates a new conversations handler.
func NewConversationsHandler(store history.Store, log zerolog.Logger) *ConversationsHandler {
	return &ConversationsHandler{history: store, log: log}
}

type conversationView struct {
	ID        string `json:"id"`
	Number    int    `json:"number"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

func viewOf(c domain.Conversation) conversationView {
	return conversationView{
		ID:        c.ID,
		Number:    c.Number,
		Title:     c.Title(),
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func viewsOf(convs []domain.Conversation) []conversationView {
	out := make([]conversationView, len(convs))
	for i, c := range convs {
		out[i] = viewOf(c)
	}
	return out
}

// CreateSession handles POST /api/session. It validates the email and
// returns the user's conversations, creating the first one if needed.
func (h *ConversationsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	tenant, ok := tenantFrom(w, req.Email)
	if !ok {
		return
	}

	ctx := r.Context()
	convs, err := h.history.Conversations(ctx, tenant)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list conversations")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	if len(convs) == 0 {
		conv, err := h.history.NewConversation(ctx, tenant)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to create conversation")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to start session")
			return
		}
		convs = append(convs, conv)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tenant":        tenant,
		"conversation":  viewOf(convs[len(convs)-1]),
		"conversations": viewsOf(convs),
	})
}

// ListConversations handles GET /api/conversations?email=
func (h *ConversationsHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r.URL.Query().Get("email"))
	if !ok {
		return
	}

	convs, err := h.history.Conversations(r.Context(), tenant)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list conversations")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": viewsOf(convs),
		"count":         len(convs),
	})
}

// CreateConversation handles POST /api/conversations?email=
func (h *ConversationsHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r.URL.Query().Get("email"))
	if !ok {
		return
	}

	conv, err := h.history.NewConversation(r.Context(), tenant)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create conversation")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, viewOf(conv))
}

// ListMessages handles GET /api/conversations/{id}/messages?email=
func (h *ConversationsHandler) ListMessages(w http.ResponseWriter, r *http.Request, conversationID string) {
	tenant, ok := tenantFrom(w, r.URL.Query().Get("email"))
	if !ok {
		return
	}

	turns, err := h.history.Get(r.Context(), tenant, conversationID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to read history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read messages")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"messages":        turns,
	})
}
