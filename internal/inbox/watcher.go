// Package inbox watches a directory and queues every document dropped into
// it for ingestion into the knowledge base.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dvloznov/finance-assistant/internal/jobs"
	"github.com/dvloznov/finance-assistant/internal/pipeline"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultQuiet is how long a file must go without writes before it is queued.
const DefaultQuiet = 500 * time.Millisecond

// Watcher publishes an ingestion job for each .txt or .pdf file that appears
// in its directory. A file is queued once per modification time.
type Watcher struct {
	dir       string
	publisher jobs.Publisher
	log       zerolog.Logger

	// Quiet is the debounce window for files still being written.
	Quiet time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	queued  map[string]time.Time
}

// NewWatcher creates the directory if needed.
func NewWatcher(dir string, publisher jobs.Publisher, log zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("inbox.NewWatcher: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("inbox.NewWatcher: create %s: %w", abs, err)
	}
	return &Watcher{
		dir:       abs,
		publisher: publisher,
		log:       log.With().Str("inbox", abs).Logger(),
		Quiet:     DefaultQuiet,
		pending:   make(map[string]time.Time),
		queued:    make(map[string]time.Time),
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Run watches until ctx is cancelled. Files already present when Run starts
// are queued too.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("Watcher.Run: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("Watcher.Run: watch %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("Watcher.Run: list %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.touch(filepath.Join(w.dir, e.Name()))
		}
	}

	w.log.Info().Msg("Watching inbox")

	if w.Quiet <= 0 {
		w.Quiet = DefaultQuiet
	}
	tick := time.NewTicker(w.Quiet / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.touch(event.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("Inbox watch error")

		case now := <-tick.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) touch(path string) {
	if pipeline.CheckExtension(path) != nil {
		w.log.Debug().Str("file", path).Msg("Ignoring unsupported file")
		return
	}
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// flush publishes pending files that have been quiet long enough.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.Quiet {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}

		w.mu.Lock()
		seen, ok := w.queued[path]
		if ok && seen.Equal(info.ModTime()) {
			w.mu.Unlock()
			continue
		}
		w.queued[path] = info.ModTime()
		w.mu.Unlock()

		job := &jobs.IngestDocumentJob{
			JobID:    uuid.NewString(),
			Location: path,
			Filename: filepath.Base(path),
		}
		if err := w.publisher.PublishIngestDocument(ctx, job); err != nil {
			w.log.Error().Err(err).Str("file", path).Msg("Failed to queue document")
			w.mu.Lock()
			delete(w.queued, path)
			w.mu.Unlock()
			continue
		}
		w.log.Info().Str("file", path).Str("job_id", job.JobID).Msg("Queued document")
	}
}
