package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/dvloznov/finance-assistant/internal/agent"
	"github.com/dvloznov/finance-assistant/internal/api/middleware"
	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/gcsuploader"
	"github.com/dvloznov/finance-assistant/internal/history"
	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/dvloznov/finance-assistant/internal/jobs"
	"github.com/dvloznov/finance-assistant/internal/jobs/inmemory"
	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/dvloznov/finance-assistant/internal/tools"
	"github.com/dvloznov/finance-assistant/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockChatService is a ChatService with a replaceable implementation.
type MockChatService struct {
	RespondFunc func(ctx context.Context, tenant identity.TenantID, conversationID, message string) (agent.Reply, error)
}

func (m *MockChatService) Respond(ctx context.Context, tenant identity.TenantID, conversationID, message string) (agent.Reply, error) {
	return m.RespondFunc(ctx, tenant, conversationID, message)
}

// MockKnowledgeAdmin records added text.
type MockKnowledgeAdmin struct {
	texts    []string
	defaults int
}

func (m *MockKnowledgeAdmin) AddText(_ context.Context, text string, _ map[string]string) string {
	if strings.TrimSpace(text) == "" {
		return "Error adding text: text is empty"
	}
	m.texts = append(m.texts, text)
	return "Successfully added text (1 chunks)"
}

func (m *MockKnowledgeAdmin) AddDefaultKnowledge(context.Context) string {
	m.defaults++
	return "Added default financial knowledge to the vector store."
}

type testServer struct {
	mux       *http.ServeMux
	history   *history.Memory
	jobStore  *inmemory.Store
	admin     *MockKnowledgeAdmin
	trace     *trace.Memory
	uploadDir string
}

func newTestServer(t *testing.T, chat ChatService) *testServer {
	t.Helper()
	uploadDir := t.TempDir()
	storage, err := gcsuploader.NewLocalStorage(uploadDir)
	require.NoError(t, err)

	ts := &testServer{
		history:   history.NewMemory(),
		jobStore:  inmemory.NewStore(),
		admin:     &MockKnowledgeAdmin{},
		trace:     trace.NewMemory(0),
		uploadDir: uploadDir,
	}
	queue := inmemory.NewQueue(10, 1, ts.jobStore, logger.Nop())
	t.Cleanup(func() { queue.Close() })

	h := &Handlers{
		Conversations: NewConversationsHandler(ts.history, logger.Nop()),
		Chat:          NewChatHandler(chat, ts.trace, logger.Nop()),
		Admin:         NewAdminHandler(ts.admin, storage, queue, 1<<10, logger.Nop()),
		Jobs:          NewJobsHandler(ts.jobStore, logger.Nop()),
	}
	ts.mux = h.Routes()
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(method, target, &buf))

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func echoChat() *MockChatService {
	return &MockChatService{RespondFunc: func(_ context.Context, _ identity.TenantID, _, message string) (agent.Reply, error) {
		return agent.Reply{Answer: "**Echo:** " + message}, nil
	}}
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t, echoChat())

	rec, body := ts.do(t, http.MethodPost, "/api/session", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please enter a valid email address.", body["error"])

	rec, body = ts.do(t, http.MethodPost, "/api/session", map[string]string{"email": " A@X.com "})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com", body["tenant"])
	conv := body["conversation"].(map[string]any)
	assert.Equal(t, "Conversation 1", conv["title"])

	// A second session resumes the latest conversation.
	_, again := ts.do(t, http.MethodPost, "/api/session", map[string]string{"email": "a@x.com"})
	assert.Equal(t, conv["id"], again["conversation"].(map[string]any)["id"])
}

func TestConversations(t *testing.T) {
	ts := newTestServer(t, echoChat())
	ctx := context.Background()

	rec, created := ts.do(t, http.MethodPost, "/api/conversations?email=a@x.com", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, second := ts.do(t, http.MethodPost, "/api/conversations?email=a@x.com", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Conversation 2", second["title"])

	_, list := ts.do(t, http.MethodGet, "/api/conversations?email=a@x.com", nil)
	assert.EqualValues(t, 2, list["count"])

	id := created["id"].(string)
	require.NoError(t, ts.history.Append(ctx, "a@x.com", id, domain.UserTurn("hi"), domain.AssistantTurn("hello")))

	rec, msgs := ts.do(t, http.MethodGet, "/api/conversations/"+id+"/messages?email=a@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, msgs["messages"], 2)

	// Another tenant sees nothing under the same ID.
	_, other := ts.do(t, http.MethodGet, "/api/conversations/"+id+"/messages?email=b@x.com", nil)
	assert.Empty(t, other["messages"])

	rec, _ = ts.do(t, http.MethodGet, "/api/conversations/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = ts.do(t, http.MethodDelete, "/api/conversations", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChat(t *testing.T) {
	ts := newTestServer(t, &MockChatService{RespondFunc: func(_ context.Context, tenant identity.TenantID, conv, message string) (agent.Reply, error) {
		switch message {
		case "fail":
			err := errors.New("model unavailable")
			return agent.Reply{Answer: "Error: model unavailable", Err: err}, nil
		case "broken store":
			return agent.Reply{}, errors.New("disk full")
		}
		return agent.Reply{
			Answer: "The current price of AAPL is **$190.13**",
			Invocations: []tools.Result{{
				ToolName: "get_stock_price",
				Kind:     tools.KindStockPrice,
				Input:    "AAPL",
				Output:   "The current price of AAPL is $190.13",
			}},
		}, nil
	}})

	rec, body := ts.do(t, http.MethodPost, "/api/chat", map[string]string{
		"email": "a@x.com", "conversation_id": "c1", "message": "What's the price of AAPL?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "The current price of AAPL is **$190.13**", body["answer"])
	assert.Contains(t, body["answer_html"], "<strong>$190.13</strong>")
	toolsOut := body["tools"].([]any)
	require.Len(t, toolsOut, 1)
	assert.Equal(t, "get_stock_price", toolsOut[0].(map[string]any)["tool"])
	assert.Equal(t, "stock_price", toolsOut[0].(map[string]any)["kind"])

	rec, body = ts.do(t, http.MethodPost, "/api/chat", map[string]string{
		"email": "a@x.com", "conversation_id": "c1", "message": "fail",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Error: model unavailable", body["answer"])
	assert.Equal(t, true, body["failed"])

	rec, _ = ts.do(t, http.MethodPost, "/api/chat", map[string]string{
		"email": "a@x.com", "conversation_id": "c1", "message": "broken store",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"bad email", map[string]string{"email": "x", "conversation_id": "c1", "message": "hi"}},
		{"no conversation", map[string]string{"email": "a@x.com", "message": "hi"}},
		{"blank message", map[string]string{"email": "a@x.com", "conversation_id": "c1", "message": " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := ts.do(t, http.MethodPost, "/api/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestChat_EscapesRawHTML(t *testing.T) {
	ts := newTestServer(t, &MockChatService{RespondFunc: func(context.Context, identity.TenantID, string, string) (agent.Reply, error) {
		return agent.Reply{Answer: "<script>alert(1)</script>"}, nil
	}})

	_, body := ts.do(t, http.MethodPost, "/api/chat", map[string]string{
		"email": "a@x.com", "conversation_id": "c1", "message": "hi",
	})
	assert.NotContains(t, body["answer_html"], "<script>")
}

func TestRecentTools(t *testing.T) {
	ts := newTestServer(t, echoChat())
	require.NoError(t, ts.trace.Record(context.Background(),
		trace.FromResults("a@x.com", "c1", []tools.Result{{ToolName: "calculator", Kind: tools.KindCodeExecution}})...))

	_, body := ts.do(t, http.MethodGet, "/api/trace?email=a@x.com", nil)
	assert.EqualValues(t, 1, body["count"])
	_, body = ts.do(t, http.MethodGet, "/api/trace?email=b@x.com", nil)
	assert.EqualValues(t, 0, body["count"])
}

func upload(t *testing.T, mux *http.ServeMux, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestUploadDocument(t *testing.T) {
	ts := newTestServer(t, echoChat())
	ctx := context.Background()

	rec := upload(t, ts.mux, "budgeting.txt", []byte("Track every expense."))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["job_id"])

	job, err := ts.jobStore.GetJob(ctx, body["job_id"])
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.Equal(t, "budgeting.txt", job.Filename)

	data, err := os.ReadFile(body["location"])
	require.NoError(t, err)
	assert.Equal(t, "Track every expense.", string(data))

	rec = upload(t, ts.mux, "notes.docx", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unsupported file type: .docx. Please use PDF or TXT files.")

	rec = upload(t, ts.mux, "huge.txt", bytes.Repeat([]byte("a"), 4<<10))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestKnowledgeAdmin(t *testing.T) {
	ts := newTestServer(t, echoChat())

	rec, body := ts.do(t, http.MethodPost, "/api/admin/knowledge/text", map[string]any{
		"text": "Pay yourself first.", "metadata": map[string]string{"source": "coach"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Successfully added text (1 chunks)", body["message"])
	assert.Equal(t, []string{"Pay yourself first."}, ts.admin.texts)

	rec, _ = ts.do(t, http.MethodPost, "/api/admin/knowledge/text", map[string]any{"text": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body = ts.do(t, http.MethodPost, "/api/admin/knowledge/defaults", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Added default financial knowledge to the vector store.", body["message"])
	assert.Equal(t, 1, ts.admin.defaults)
}

func TestJobs(t *testing.T) {
	ts := newTestServer(t, echoChat())
	require.NoError(t, ts.jobStore.SaveJob(context.Background(), &jobs.IngestDocumentJob{
		JobID: "j1", Location: "guide.txt", Status: jobs.JobStatusCompleted, Chunks: 3,
	}))

	rec, body := ts.do(t, http.MethodGet, "/api/admin/jobs/j1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["chunks"])

	rec, _ = ts.do(t, http.MethodGet, "/api/admin/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, body = ts.do(t, http.MethodGet, "/api/admin/jobs?status=completed", nil)
	assert.EqualValues(t, 1, body["count"])
}

func TestJobs_RequireAdminToken(t *testing.T) {
	ts := newTestServer(t, echoChat())
	guarded := middleware.Auth("s3cret")(ts.mux)

	for _, target := range []string{"/api/admin/jobs", "/api/admin/jobs/j1"} {
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSamplesAndHealth(t *testing.T) {
	ts := newTestServer(t, echoChat())

	_, body := ts.do(t, http.MethodGet, "/api/samples", nil)
	assert.Len(t, body["questions"], len(SampleQuestions))

	rec, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}
