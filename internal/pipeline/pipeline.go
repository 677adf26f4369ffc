// Package pipeline turns documents and raw text into indexed knowledge.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/dvloznov/finance-assistant/internal/knowledge"
	"github.com/dvloznov/finance-assistant/internal/llm"
	"github.com/rs/zerolog"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Ingestor adds documents and text to the knowledge index.
type Ingestor struct {
	index     *knowledge.Index
	fetcher   Fetcher
	extractor llm.TextExtractor
	log       zerolog.Logger
}

// NewIngestor wires the ingestion steps.
func NewIngestor(index *knowledge.Index, fetcher Fetcher, extractor llm.TextExtractor, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		index:     index,
		fetcher:   fetcher,
		extractor: extractor,
		log:       log,
	}
}

// NewDocumentPipeline creates the pipeline for a file or gs:// document.
func (in *Ingestor) NewDocumentPipeline() *Pipeline {
	return NewPipeline(
		&ValidateSourceStep{},
		&FetchStep{Fetcher: in.fetcher},
		&ExtractTextStep{Extractor: in.extractor},
		&SplitStep{Splitter: in.index.Splitter()},
		&EmbedStep{Embedder: in.index.Embedder()},
		&StoreStep{Index: in.index},
	)
}

// NewTextPipeline creates the pipeline for raw text.
func (in *Ingestor) NewTextPipeline() *Pipeline {
	return NewPipeline(
		&SplitStep{Splitter: in.index.Splitter()},
		&EmbedStep{Embedder: in.index.Embedder()},
		&StoreStep{Index: in.index},
	)
}

// IngestFile indexes a .txt or .pdf document and returns its chunk count.
func (in *Ingestor) IngestFile(ctx context.Context, location string) (int, error) {
	state := &PipelineState{
		Location: location,
		Metadata: map[string]string{"source": location},
	}
	if err := in.NewDocumentPipeline().Execute(ctx, state); err != nil {
		return 0, err
	}

	in.log.Info().
		Str("source", location).
		Int("chunks", state.Chunks).
		Int("new", state.Added).
		Msg("Document ingested")
	return state.Chunks, nil
}

// IngestText indexes raw text. Metadata defaults to a user_input source.
func (in *Ingestor) IngestText(ctx context.Context, text string, metadata map[string]string) (int, error) {
	meta := map[string]string{"source": knowledge.SourceUserInput}
	maps.Copy(meta, metadata)

	state := &PipelineState{Text: text, Metadata: meta}
	if err := in.NewTextPipeline().Execute(ctx, state); err != nil {
		return 0, err
	}

	in.log.Info().
		Str("source", meta["source"]).
		Int("chunks", state.Chunks).
		Int("new", state.Added).
		Msg("Text ingested")
	return state.Chunks, nil
}

// AddDocumentFromFile is IngestFile with a message for the admin screen.
func (in *Ingestor) AddDocumentFromFile(ctx context.Context, location string) string {
	n, err := in.IngestFile(ctx, location)
	if err != nil {
		var unsupported *UnsupportedFileTypeError
		if errors.As(err, &unsupported) {
			return fmt.Sprintf("Unsupported file type: %s. Please use PDF or TXT files.", unsupported.Ext)
		}
		in.log.Error().Err(err).Str("source", location).Msg("Document ingestion failed")
		return fmt.Sprintf("Error adding document: %v", err)
	}
	return fmt.Sprintf("Successfully added %d chunks from %s", n, location)
}

// AddText is IngestText with a message for the admin screen.
func (in *Ingestor) AddText(ctx context.Context, text string, metadata map[string]string) string {
	n, err := in.IngestText(ctx, text, metadata)
	if err != nil {
		in.log.Error().Err(err).Msg("Text ingestion failed")
		return fmt.Sprintf("Error adding text: %v", err)
	}
	return fmt.Sprintf("Successfully added text (%d chunks)", n)
}

// AddDefaultKnowledge indexes the built-in facts.
func (in *Ingestor) AddDefaultKnowledge(ctx context.Context) string {
	added, err := in.index.AddDefaults(ctx)
	if err != nil {
		in.log.Error().Err(err).Msg("Default knowledge failed")
		return fmt.Sprintf("Error adding default knowledge: %v", err)
	}
	in.log.Info().Int("new", added).Msg("Default knowledge indexed")
	return "Added default financial knowledge to the vector store."
}
