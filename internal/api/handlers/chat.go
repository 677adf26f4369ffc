package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/finance-assistant/internal/agent"
	"github.com/dvloznov/finance-assistant/internal/api/middleware"
	"github.com/dvloznov/finance-assistant/internal/trace"
	"github.com/rs/zerolog"
)

// ChatHandler handles chat turns.
type ChatHandler struct {
	chat     ChatService
	recorder trace.Recorder
	log      zerolog.Logger
}

// NewChatHandler creates a new chat handler. recorder may be nil.
func NewChatHandler(chat ChatService, recorder trace.Recorder, log zerolog.Logger) *ChatHandler {
	if recorder == nil {
		recorder = trace.Nop{}
	}
	return &ChatHandler{chat: chat, recorder: recorder, log: log}
}

type toolView struct {
	Tool       string `json:"tool"`
	Kind       string `json:"kind"`
	Input      string `json:"input"`
	Output     string `json:"output"`
	Failed     bool   `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
}

// Chat handles POST /api/chat. Turn failures are answered with 200 and an
// "Error: ..." answer so the conversation continues.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email          string `json:"email"`
		ConversationID string `json:"conversation_id"`
		Message        string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	tenant, ok := tenantFrom(w, req.Email)
	if !ok {
		return
	}
	if req.ConversationID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.chat.Respond(r.Context(), tenant, req.ConversationID, req.Message)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			middleware.WriteError(w, http.StatusBadRequest, "message is required")
			return
		}
		h.log.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("Chat turn failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	views := make([]toolView, len(reply.Invocations))
	for i, inv := range reply.Invocations {
		views[i] = toolView{
			Tool:       inv.ToolName,
			Kind:       inv.Kind.String(),
			Input:      inv.Input,
			Output:     inv.Output,
			Failed:     inv.Failed(),
			DurationMS: inv.Duration.Milliseconds(),
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"answer":      reply.Answer,
		"answer_html": renderMarkdown(reply.Answer),
		"tools":       views,
		"failed":      reply.Err != nil,
	})
}

// RecentTools handles GET /api/trace?email=&limit=
func (h *ChatHandler) RecentTools(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	tenant, ok := tenantFrom(w, query.Get("email"))
	if !ok {
		return
	}

	limit := 20
	if limitStr := query.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.recorder.Recent(r.Context(), tenant, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read tool trace")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read tool trace")
		return
	}
	if records == nil {
		records = []trace.Record{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"invocations": records,
		"count":       len(records),
	})
}
