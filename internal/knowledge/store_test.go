package knowledge

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/finance-assistant/internal/llm/llmtest"
	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T, dir string, minScore float64) *Index {
	t.Helper()
	store, err := OpenStore(context.Background(), dir, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewIndex(store, llmtest.Embedder{Dim: 1024}, IndexOptions{MinScore: minScore}, logger.Nop())
}

// addText stores text the way the ingestion pipeline does: split, embed, store.
func addText(t *testing.T, idx *Index, text string, metadata map[string]string) int {
	ctx := context.Background()
	pieces := idx.Splitter().Split(text)
	contents := make([]string, len(pieces))
	for i, p := range pieces {
		contents[i] = p.Text
	}
	vectors, err := idx.Embedder().EmbedDocuments(ctx, contents)
	if !assert.NoError(t, err) {
		return 0
	}
	chunks, err := idx.Chunks(pieces, vectors, metadata)
	if !assert.NoError(t, err) {
		return 0
	}
	_, err = idx.Store().Add(ctx, chunks)
	assert.NoError(t, err)
	return len(chunks)
}

func TestIndex_DefaultsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir(), 0)

	added, err := idx.AddDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultFacts), added)

	added, err = idx.AddDefaults(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Equal(t, len(DefaultFacts), idx.Store().Count())

	sources, err := idx.Store().Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []SourceCount{{Source: SourceDefault, Chunks: len(DefaultFacts)}}, sources)
}

func TestIndex_ReopenKeepsChunks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := OpenStore(ctx, dir, logger.Nop())
	require.NoError(t, err)
	idx := NewIndex(store, llmtest.Embedder{Dim: 1024}, IndexOptions{}, logger.Nop())
	_, err = idx.AddDefaults(ctx)
	require.NoError(t, err)
	n := addText(t, idx, "Budget 50% for needs, 30% for wants and 20% for savings.", map[string]string{"source": "budgeting.txt"})
	assert.Equal(t, 1, n)
	require.NoError(t, store.Close())

	reopened := openTestIndex(t, dir, 0)
	assert.Equal(t, len(DefaultFacts)+1, reopened.Store().Count())

	hits, err := reopened.Retrieve(ctx, "How many months should an emergency fund cover?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.True(t, strings.HasPrefix(hits[0].Chunk.Content, "Emergency funds"), "top hit: %s", hits[0].Chunk.Content)
	assert.Equal(t, SourceDefault, hits[0].Chunk.Metadata["source"])
}

func TestIndex_RetrieveRespectsK(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir(), 0)
	_, err := idx.AddDefaults(ctx)
	require.NoError(t, err)

	hits, err := idx.Retrieve(ctx, "investing in the market", 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hits), 5)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestStore_ConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, t.TempDir(), 0)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			addText(t, idx, strings.Repeat("note ", i+1), map[string]string{"source": "notes"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, err := idx.Retrieve(ctx, "note", 5)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	assert.Equal(t, 20, idx.Store().Count())
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3}
	got, err := decodeVector(encodeVector(vec), len(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3}, 1)
	assert.Error(t, err)
}
