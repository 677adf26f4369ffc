package knowledge

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dvloznov/finance-assistant/internal/infra/sqlite"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

// Metadata sources used by the ingestion paths.
const (
	SourceDefault   = "default_knowledge"
	SourceUserInput = "user_input"
)

// Chunk is an embedded piece of knowledge. Chunks are append-only.
type Chunk struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}

// Hit is a ranked search result.
type Hit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// SourceCount summarizes chunks per source.
type SourceCount struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// ChunkID derives the content address of a chunk.
func ChunkID(source, content string) string {
	sum := blake3.Sum256([]byte(source + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

type snapshot struct {
	chunks []Chunk
}

// Store is the persistent vector index. Writes are serialized and committed
// before the in-memory snapshot is swapped, so a concurrent Search sees
// either the previous or the new complete set of chunks.
type Store struct {
	db   *sql.DB
	log  zerolog.Logger
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// OpenStore opens dir/index.db and loads the index into memory.
func OpenStore(ctx context.Context, dir string, log zerolog.Logger) (*Store, error) {
	db, err := sqlite.Open(ctx, filepath.Join(dir, "index.db"), sqlite.SetKnowledge)
	if err != nil {
		return nil, fmt.Errorf("OpenStore: %w", err)
	}

	s := &Store{db: db, log: log}
	chunks, err := s.loadAll(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("OpenStore: %w", err)
	}
	s.snap.Store(&snapshot{chunks: chunks})

	log.Info().Str("dir", dir).Int("chunks", len(chunks)).Msg("Knowledge index loaded")
	return s, nil
}

// Close closes the index database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Count returns the number of indexed chunks.
func (s *Store) Count() int {
	return len(s.snap.Load().chunks)
}

// Add persists chunks and returns how many were new. Chunks whose ID is
// already indexed are skipped.
func (s *Store) Add(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("Store.Add: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO chunks (id, source, content, metadata, embedding, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("Store.Add: prepare: %w", err)
	}
	defer stmt.Close()

	var added []Chunk
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = ChunkID(c.Source, c.Content)
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return 0, fmt.Errorf("Store.Add: marshal metadata: %w", err)
		}

		res, err := stmt.ExecContext(ctx, c.ID, c.Source, c.Content, string(meta),
			encodeVector(c.Embedding), len(c.Embedding), c.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return 0, fmt.Errorf("Store.Add: insert %s: %w", c.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, c)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("Store.Add: commit: %w", err)
	}

	if len(added) > 0 {
		old := s.snap.Load().chunks
		next := make([]Chunk, 0, len(old)+len(added))
		next = append(next, old...)
		next = append(next, added...)
		s.snap.Store(&snapshot{chunks: next})
	}

	return len(added), nil
}

// Search ranks indexed chunks by cosine similarity to query and returns at
// most k hits scoring at least minScore.
func (s *Store) Search(query []float32, k int, minScore float64) []Hit {
	if k <= 0 {
		return nil
	}

	chunks := s.snap.Load().chunks
	hits := make([]Hit, 0, len(chunks))
	for _, c := range chunks {
		score := cosine(query, c.Embedding)
		if score < minScore {
			continue
		}
		hits = append(hits, Hit{Chunk: c, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Sources lists sources with their chunk counts.
func (s *Store) Sources(ctx context.Context) ([]SourceCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, COUNT(*) FROM chunks GROUP BY source ORDER BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("Store.Sources: %w", err)
	}
	defer rows.Close()

	var out []SourceCount
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Chunks); err != nil {
			return nil, fmt.Errorf("Store.Sources: scan: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) loadAll(ctx context.Context) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, content, metadata, embedding, dimensions, created_at
		FROM chunks
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c       Chunk
			meta    string
			blob    []byte
			dims    int
			created string
		)
		if err := rows.Scan(&c.ID, &c.Source, &c.Content, &meta, &blob, &dims, &created); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("chunk %s metadata: %w", c.ID, err)
		}
		if c.Embedding, err = decodeVector(blob, dims); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
