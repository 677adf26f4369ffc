package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/finance-assistant/internal/knowledge"
	"github.com/dvloznov/finance-assistant/internal/llm"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Location string
	Metadata map[string]string

	Raw     []byte
	Text    string
	Pieces  []knowledge.Piece
	Vectors [][]float32

	Chunks int
	Added  int
}

// Step 1: ValidateSourceStep rejects unsupported extensions before anything
// is downloaded.
type ValidateSourceStep struct{}

func (s *ValidateSourceStep) Execute(_ context.Context, state *PipelineState) error {
	return CheckExtension(state.Location)
}

// Step 2: FetchStep reads the document bytes.
type FetchStep struct {
	Fetcher Fetcher
}

func (s *FetchStep) Execute(ctx context.Context, state *PipelineState) error {
	raw, err := s.Fetcher.Fetch(ctx, state.Location)
	if err != nil {
		return fmt.Errorf("FetchStep: %w", err)
	}
	state.Raw = raw
	return nil
}

// Step 3: ExtractTextStep turns the document into plain text. PDFs are read
// by the language model.
type ExtractTextStep struct {
	Extractor llm.TextExtractor
}

func (s *ExtractTextStep) Execute(ctx context.Context, state *PipelineState) error {
	switch ext := Extension(state.Location); ext {
	case ExtText:
		text := string(state.Raw)
		if !utf8.ValidString(text) {
			text = strings.ToValidUTF8(text, "�")
		}
		state.Text = text
	case ExtPDF:
		text, err := s.Extractor.ExtractPDFText(ctx, state.Raw)
		if err != nil {
			return fmt.Errorf("ExtractTextStep: %w", err)
		}
		state.Text = text
	default:
		return &UnsupportedFileTypeError{Ext: ext}
	}
	state.Raw = nil
	return nil
}

// Step 4: SplitStep cuts the text into overlapping pieces.
type SplitStep struct {
	Splitter knowledge.Splitter
}

func (s *SplitStep) Execute(_ context.Context, state *PipelineState) error {
	state.Pieces = s.Splitter.Split(state.Text)
	if len(state.Pieces) == 0 {
		return knowledge.ErrEmptyText
	}
	state.Chunks = len(state.Pieces)
	return nil
}

// Step 5: EmbedStep embeds every piece.
type EmbedStep struct {
	Embedder knowledge.Embedder
}

func (s *EmbedStep) Execute(ctx context.Context, state *PipelineState) error {
	texts := make([]string, len(state.Pieces))
	for i, p := range state.Pieces {
		texts[i] = p.Text
	}

	vectors, err := s.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("EmbedStep: %w", err)
	}
	state.Vectors = vectors
	return nil
}

// Step 6: StoreStep persists the embedded chunks.
type StoreStep struct {
	Index *knowledge.Index
}

func (s *StoreStep) Execute(ctx context.Context, state *PipelineState) error {
	chunks, err := s.Index.Chunks(state.Pieces, state.Vectors, state.Metadata)
	if err != nil {
		return fmt.Errorf("StoreStep: %w", err)
	}

	added, err := s.Index.Store().Add(ctx, chunks)
	if err != nil {
		return fmt.Errorf("StoreStep: %w", err)
	}
	state.Added = added
	return nil
}
