package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/finance-assistant/internal/config"
	"github.com/dvloznov/finance-assistant/internal/jobs"
	"github.com/dvloznov/finance-assistant/internal/knowledge"
	"github.com/dvloznov/finance-assistant/internal/llm"
	"github.com/dvloznov/finance-assistant/internal/llm/llmtest"
	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/dvloznov/finance-assistant/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPrices struct{}

func (fixedPrices) LatestPrice(context.Context, string) (float64, error) { return 190.126, nil }

type noSearch struct{}

func (noSearch) Search(context.Context, string, int) ([]tools.SearchResult, error) { return nil, nil }

func newTestApp(t *testing.T, model *llmtest.ChatModel, backend string) *App {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.HistoryBackend = backend

	a, err := New(context.Background(), cfg, logger.Nop(), Overrides{
		Models: Models{
			Chat:      model,
			Embedder:  llmtest.Embedder{},
			Extractor: llmtest.Extractor{Text: "PDF text"},
		},
		Prices: fixedPrices{},
		Search: noSearch{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNew_WiresEverything(t *testing.T) {
	a := newTestApp(t, &llmtest.ChatModel{}, config.HistorySQLite)

	assert.Equal(t, []string{
		"get_stock_price",
		"calculator",
		"market_research",
		"retrieve_financial_knowledge",
		"sql_db_query",
		"sql_db_schema",
		"sql_db_list_tables",
	}, a.Registry.Names())

	counts, err := a.Finance.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Users)
	assert.Positive(t, counts.Transactions)

	assert.Equal(t, len(knowledge.DefaultFacts), a.Knowledge.Store().Count())
}

func TestNew_ReopenDoesNotReseed(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	overrides := Overrides{
		Models: Models{Chat: &llmtest.ChatModel{}, Embedder: llmtest.Embedder{}, Extractor: llmtest.Extractor{}},
		Prices: fixedPrices{},
		Search: noSearch{},
	}

	a, err := New(ctx, cfg, logger.Nop(), overrides)
	require.NoError(t, err)
	before, err := a.Finance.Counts(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a, err = New(ctx, cfg, logger.Nop(), overrides)
	require.NoError(t, err)
	defer a.Close()
	after, err := a.Finance.Counts(ctx)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, len(knowledge.DefaultFacts), a.Knowledge.Store().Count())
}

func TestAgent_SeededTenantIsolation(t *testing.T) {
	var observed string
	model := &llmtest.ChatModel{GenerateFunc: func(_ context.Context, call int, req llm.Request) (*llm.Response, error) {
		if call == 0 {
			resp := llmtest.Call("sql_db_query", "SELECT DISTINCT email_id FROM transactions")
			return &resp, nil
		}
		observed = req.Messages[len(req.Messages)-1].ToolResults[0].Output
		return &llm.Response{Text: "done"}, nil
	}}
	a := newTestApp(t, model, config.HistoryMemory)

	reply, err := a.Agent.Respond(context.Background(), "rishik@gmail.com", "c1", "Which accounts have transactions?")
	require.NoError(t, err)
	require.NoError(t, reply.Err)
	assert.Equal(t, "email_id\nrishik@gmail.com", observed)
}

func TestAgent_StockQuestion(t *testing.T) {
	model := &llmtest.ChatModel{GenerateFunc: llmtest.Script(
		llmtest.Call("get_stock_price", "aapl"),
		llmtest.Text("AAPL is at $190.13."),
	)}
	a := newTestApp(t, model, config.HistoryMemory)

	reply, err := a.Agent.Respond(context.Background(), "siva@gmail.com", "c1", "What's the price of AAPL?")
	require.NoError(t, err)
	require.Len(t, reply.Invocations, 1)
	assert.Equal(t, "The current price of AAPL is $190.13", reply.Invocations[0].Output)

	records, err := a.Trace.Recent(context.Background(), "siva@gmail.com", 5)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestIngestJobHandler(t *testing.T) {
	a := newTestApp(t, &llmtest.ChatModel{}, config.HistoryMemory)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "guide.txt")
	require.NoError(t, os.WriteFile(path, []byte("Diversify across asset classes."), 0o644))

	job := &jobs.IngestDocumentJob{Location: path}
	require.NoError(t, a.IngestJobHandler()(ctx, job))
	assert.Equal(t, 1, job.Chunks)
	assert.Equal(t, "Successfully added 1 chunks from "+path, job.Message)

	bad := &jobs.IngestDocumentJob{Location: "notes.docx", MaxRetries: 3}
	require.Error(t, a.IngestJobHandler()(ctx, bad))
	assert.True(t, strings.HasPrefix(bad.Message, "Unsupported file type: .docx"))
	assert.Equal(t, bad.RetryCount, bad.MaxRetries, "unsupported files are not retried")
}
