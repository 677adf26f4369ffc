// Package app wires the assistant's components from configuration. The
// binaries in cmd/ build one App and use the parts they need.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-assistant/internal/agent"
	"github.com/dvloznov/finance-assistant/internal/config"
	"github.com/dvloznov/finance-assistant/internal/gcsuploader"
	"github.com/dvloznov/finance-assistant/internal/history"
	bq "github.com/dvloznov/finance-assistant/internal/infra/bigquery"
	"github.com/dvloznov/finance-assistant/internal/infra/sqlite"
	"github.com/dvloznov/finance-assistant/internal/jobs"
	"github.com/dvloznov/finance-assistant/internal/jobs/inmemory"
	"github.com/dvloznov/finance-assistant/internal/knowledge"
	"github.com/dvloznov/finance-assistant/internal/llm"
	"github.com/dvloznov/finance-assistant/internal/pipeline"
	"github.com/dvloznov/finance-assistant/internal/seed"
	"github.com/dvloznov/finance-assistant/internal/tools"
	"github.com/dvloznov/finance-assistant/internal/trace"
	"github.com/rs/zerolog"
)

// Models are the hosted-model collaborators. Nil fields are filled with a
// Gemini client built from the configuration.
type Models struct {
	Chat      llm.ChatModel
	Embedder  knowledge.Embedder
	Extractor llm.TextExtractor
}

// Overrides replace external collaborators, mainly in tests.
type Overrides struct {
	Models   Models
	Prices   tools.PriceProvider
	Search   tools.Searcher
	Recorder trace.Recorder
}

// App holds the wired components.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	Finance   *sqlite.FinanceStore
	Knowledge *knowledge.Index
	Chain     *knowledge.Chain
	Ingestor  *pipeline.Ingestor
	Storage   gcsuploader.Storage
	History   history.Store
	Trace     trace.Recorder
	Registry  *tools.Registry
	Agent     *agent.Agent

	JobStore *inmemory.Store
	Queue    *inmemory.Queue

	closers []func() error
}

// New builds the application. The structured store is migrated and, when
// empty, seeded; default knowledge is indexed when the index is empty.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, o Overrides) (_ *App, err error) {
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// Step 1: Models
	models := o.Models
	if models.Chat == nil || models.Embedder == nil || models.Extractor == nil {
		gemini, err := llm.NewGemini(ctx, llm.GeminiOptions{
			APIKey:         cfg.GeminiAPIKey,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
			Timeout:        cfg.LLMTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
		if models.Chat == nil {
			models.Chat = gemini
		}
		if models.Embedder == nil {
			models.Embedder = gemini
		}
		if models.Extractor == nil {
			models.Extractor = gemini
		}
	}

	// Step 2: Structured store
	a.Finance, err = sqlite.OpenFinanceStore(ctx, cfg.FinanceDBPath(), log)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.closers = append(a.closers, a.Finance.Close)

	if _, err := a.Finance.Seed(ctx, seed.New(cfg.Seed, time.Now().UTC())); err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}

	// Step 3: Knowledge base
	store, err := knowledge.OpenStore(ctx, cfg.KnowledgeDir(), log)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	a.Knowledge = knowledge.NewIndex(store, models.Embedder, knowledge.IndexOptions{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		MinScore:     cfg.MinScore,
	}, log)
	a.Chain = knowledge.NewChain(models.Chat, a.Knowledge, cfg.RetrievalK, log)

	if store.Count() == 0 {
		if _, err := a.Knowledge.AddDefaults(ctx); err != nil {
			log.Warn().Err(err).Msg("Indexing default knowledge failed")
		}
	}

	// Step 4: Document storage and ingestion
	fetcher := gcsuploader.Fetcher{}
	if cfg.GCSBucket != "" {
		gcs, err := gcsuploader.NewGCSStorage(ctx, cfg.GCSBucket, "knowledge")
		if err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		a.Storage = gcs
		fetcher.GCS = gcs
	} else {
		local, err := gcsuploader.NewLocalStorage(cfg.UploadPath())
		if err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Storage = local
	}
	a.Ingestor = pipeline.NewIngestor(a.Knowledge, fetcher, models.Extractor, log)

	// Step 5: History and trace
	a.History, err = OpenHistory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.closers = append(a.closers, a.History.Close)

	a.Trace = o.Recorder
	if a.Trace == nil {
		a.Trace, err = a.openTrace(ctx)
		if err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
	}

	// Step 6: Tools and agent
	prices, search := o.Prices, o.Search
	if prices == nil {
		prices = tools.NewYahooProvider()
	}
	if search == nil {
		search = tools.NewDuckDuckGo()
	}
	a.Registry = tools.NewDefaultRegistry(tools.Deps{
		Prices:       prices,
		Search:       search,
		Interpreter:  tools.NewInterpreter(),
		Knowledge:    a.Chain,
		Querier:      a.Finance,
		EnforceScope: cfg.EnforceTenantScope,
		Timeout:      cfg.ToolTimeout,
	}, log)

	selector := agent.NewLLMSelector(models.Chat, cfg.AgentMaxIterations, log)
	if cfg.Temperature > 0 {
		selector.WithTemperature(cfg.Temperature)
	}
	a.Agent = agent.New(agent.Options{
		History:  a.History,
		Registry: a.Registry,
		Selector: selector,
		Recorder: a.Trace,
	}, log)

	// Step 7: Jobs
	a.JobStore = inmemory.NewStore()
	a.Queue = inmemory.NewQueue(100, cfg.JobWorkers, a.JobStore, log)
	a.closers = append(a.closers, a.Queue.Close)

	log.Info().
		Str("history", cfg.HistoryBackend).
		Strs("tools", a.Registry.Names()).
		Int("knowledge_chunks", store.Count()).
		Msg("Application ready")

	return a, nil
}

// OpenHistory opens the configured history backend.
func OpenHistory(ctx context.Context, cfg *config.Config) (history.Store, error) {
	switch cfg.HistoryBackend {
	case config.HistorySQLite:
		return history.OpenSQLite(ctx, cfg.HistoryDBPath())
	case config.HistoryRedis:
		return history.OpenRedis(ctx, history.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return history.NewMemory(), nil
	}
}

func (a *App) openTrace(ctx context.Context) (trace.Recorder, error) {
	if a.Config.BigQueryProject == "" {
		return trace.NewMemory(0), nil
	}
	repo, err := bq.NewTraceRepository(ctx, a.Config.BigQueryProject, a.Config.BigQueryDataset)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, repo.Close)
	return trace.NewBigQuery(repo), nil
}

// IngestJobHandler indexes the document of an ingestion job.
func (a *App) IngestJobHandler() jobs.JobHandler {
	return func(ctx context.Context, job *jobs.IngestDocumentJob) error {
		n, err := a.Ingestor.IngestFile(ctx, job.Location)
		if err != nil {
			if errors.Is(err, pipeline.ErrUnsupportedFileType) {
				// Not retryable; record it and finish.
				job.Message = fmt.Sprintf("Unsupported file type: %s. Please use PDF or TXT files.", pipeline.Extension(job.Location))
				job.MaxRetries = job.RetryCount
			}
			return err
		}
		job.Chunks = n
		job.Message = fmt.Sprintf("Successfully added %d chunks from %s", n, job.Location)
		return nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
