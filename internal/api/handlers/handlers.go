// Package handlers implements the HTTP API: sessions, conversations, chat,
// knowledge administration and job status.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/finance-assistant/internal/agent"
	"github.com/dvloznov/finance-assistant/internal/api/middleware"
	"github.com/dvloznov/finance-assistant/internal/identity"
)

// SampleQuestions are shown to new users.
var SampleQuestions = []string{
	"What's my current spending by category?",
	"What's the price of AAPL stock?",
	"How should I start investing with $1000?",
	"Calculate a monthly mortgage payment for $300,000",
	"What are the latest news about interest rates?",
	"Show me my investment portfolio performance",
}

// ChatService answers a user message in a conversation.
type ChatService interface {
	Respond(ctx context.Context, tenant identity.TenantID, conversationID, message string) (agent.Reply, error)
}

var _ ChatService = (*agent.Agent)(nil)

// KnowledgeAdmin adds text to the knowledge base and reports the outcome.
type KnowledgeAdmin interface {
	AddText(ctx context.Context, text string, metadata map[string]string) string
	AddDefaultKnowledge(ctx context.Context) string
}

// Handlers groups the endpoint handlers.
type Handlers struct {
	Conversations *ConversationsHandler
	Chat          *ChatHandler
	Admin         *AdminHandler
	Jobs          *JobsHandler
}

// Routes registers every endpoint on a new mux.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Session and conversations
	mux.HandleFunc("/api/session", method(http.MethodPost, h.Conversations.CreateSession))
	mux.HandleFunc("/api/conversations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.Conversations.ListConversations(w, r)
		case http.MethodPost:
			h.Conversations.CreateConversation(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	mux.HandleFunc("/api/conversations/", method(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
		conversationID, ok := strings.CutSuffix(rest, "/messages")
		if !ok || conversationID == "" || strings.Contains(conversationID, "/") {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		h.Conversations.ListMessages(w, r, conversationID)
	}))

	// Chat
	mux.HandleFunc("/api/chat", method(http.MethodPost, h.Chat.Chat))
	mux.HandleFunc("/api/samples", method(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"questions": SampleQuestions})
	}))
	mux.HandleFunc("/api/trace", method(http.MethodGet, h.Chat.RecentTools))

	// Admin
	mux.HandleFunc("/api/admin/documents", method(http.MethodPost, h.Admin.UploadDocument))
	mux.HandleFunc("/api/admin/knowledge/text", method(http.MethodPost, h.Admin.AddText))
	mux.HandleFunc("/api/admin/knowledge/defaults", method(http.MethodPost, h.Admin.AddDefaults))

	// Jobs
	mux.HandleFunc("/api/admin/jobs", method(http.MethodGet, h.Jobs.ListJobs))
	mux.HandleFunc("/api/admin/jobs/", method(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/api/admin/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		h.Jobs.GetJob(w, r, jobID)
	}))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}

func method(m string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		next(w, r)
	}
}

// tenantFrom validates an email and writes a 400 when it is invalid.
func tenantFrom(w http.ResponseWriter, email string) (identity.TenantID, bool) {
	tenant, err := identity.Parse(email)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Please enter a valid email address.")
		return "", false
	}
	return tenant, true
}
