// Package knowledge holds the document knowledge base: splitting text into
// chunks, embedding and persisting them, and answering questions grounded in
// the retrieved chunks.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/rs/zerolog"
)

// ErrEmptyText is returned when there is nothing to index.
var ErrEmptyText = errors.New("text is empty")

// Embedder turns text into vectors. Documents and queries may be embedded
// differently by the provider.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Hit, error)
}

// Index combines the splitter, the embedder and the store.
type Index struct {
	store    *Store
	embedder Embedder
	splitter Splitter
	minScore float64
	log      zerolog.Logger
}

var _ Retriever = (*Index)(nil)

// IndexOptions configures an Index.
type IndexOptions struct {
	ChunkSize    int
	ChunkOverlap int
	MinScore     float64
}

// NewIndex builds an index over an opened store.
func NewIndex(store *Store, embedder Embedder, opts IndexOptions, log zerolog.Logger) *Index {
	return &Index{
		store:    store,
		embedder: embedder,
		splitter: NewSplitter(opts.ChunkSize, opts.ChunkOverlap),
		minScore: opts.MinScore,
		log:      log,
	}
}

// Store returns the underlying chunk store.
func (x *Index) Store() *Store { return x.store }

// Embedder returns the embedder used for documents and queries.
func (x *Index) Embedder() Embedder { return x.embedder }

// Splitter returns the splitter used for new text.
func (x *Index) Splitter() Splitter { return x.splitter }

// Chunks pairs split pieces with their vectors. Each chunk gets a copy of
// metadata extended with its rune offsets.
func (x *Index) Chunks(pieces []Piece, vectors [][]float32, metadata map[string]string) ([]Chunk, error) {
	if len(vectors) != len(pieces) {
		return nil, fmt.Errorf("have %d vectors for %d pieces", len(vectors), len(pieces))
	}

	source := metadata["source"]
	if source == "" {
		source = SourceUserInput
	}

	now := time.Now().UTC()
	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		meta := make(map[string]string, len(metadata)+3)
		maps.Copy(meta, metadata)
		meta["source"] = source
		meta["start"] = fmt.Sprint(p.Start)
		meta["end"] = fmt.Sprint(p.End)

		chunks[i] = Chunk{
			ID:        ChunkID(source, p.Text),
			Source:    source,
			Content:   p.Text,
			Metadata:  meta,
			Embedding: vectors[i],
			CreatedAt: now,
		}
	}
	return chunks, nil
}

// Retrieve embeds the query and returns the k nearest chunks.
func (x *Index) Retrieve(ctx context.Context, query string, k int) ([]Hit, error) {
	if x.store.Count() == 0 {
		return nil, nil
	}

	vec, err := x.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Index.Retrieve: embed query: %w", err)
	}
	hits := x.store.Search(vec, k, x.minScore)
	x.log.Debug().Int("k", k).Int("hits", len(hits)).Msg("Retrieved chunks")
	return hits, nil
}
