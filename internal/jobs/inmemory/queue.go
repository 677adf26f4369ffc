// Package inmemory runs ingestion jobs on a channel-backed worker pool.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-assistant/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultWorkers is used when NewQueue gets a non-positive worker count.
const DefaultWorkers = 5

// Queue is an in-memory job publisher and consumer. It suits single-instance
// deployments and tests.
type Queue struct {
	jobChan   chan *jobs.IngestDocumentJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	workers   int
	closed    bool
	log       zerolog.Logger

	retryMu sync.Mutex
	retries map[*time.Timer]struct{}

	// Backoff returns the delay before the given retry. Defaults to
	// retry seconds.
	Backoff func(retry int) time.Duration
}

// NewQueue creates a queue. bufferSize is how many jobs may wait before
// PublishIngestDocument blocks.
func NewQueue(bufferSize, workers int, store jobs.JobStore, log zerolog.Logger) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		jobChan:   make(chan *jobs.IngestDocumentJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		log:       log,
		retries:   make(map[*time.Timer]struct{}),
		Backoff:   func(retry int) time.Duration { return time.Duration(retry) * time.Second },
	}
}

// PublishIngestDocument enqueues a job, assigning an ID and defaults.
func (q *Queue) PublishIngestDocument(ctx context.Context, job *jobs.IngestDocumentJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	queued := *job
	select {
	case q.jobChan <- &queued:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start launches the workers.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return jobs.ErrQueueClosed
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	q.log.Info().Int("workers", q.workers).Msg("Job queue started")
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single attempt and schedules a retry on failure.
func (q *Queue) processJob(ctx context.Context, job *jobs.IngestDocumentJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	job.CompletedAt = nil
	q.save(ctx, job)

	err := q.run(ctx, job, handler)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	log := q.log.With().Str("job_id", job.JobID).Str("location", job.Location).Logger()

	if err == nil {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		q.save(ctx, job)
		log.Info().Int("chunks", job.Chunks).Msg("Job completed")
		return
	}

	job.Error = err.Error()
	if job.RetryCount >= job.MaxRetries {
		job.Status = jobs.JobStatusFailed
		q.save(ctx, job)
		log.Error().Err(err).Int("attempts", job.RetryCount+1).Msg("Job failed")
		return
	}

	job.RetryCount++
	job.Status = jobs.JobStatusRetrying
	q.save(ctx, job)
	log.Warn().Err(err).Int("retry", job.RetryCount).Msg("Job failed, retrying")

	retry := *job
	retry.Status = jobs.JobStatusPending
	retry.StartedAt = nil
	retry.CompletedAt = nil
	q.scheduleRetry(ctx, &retry)
}

func (q *Queue) run(ctx context.Context, job *jobs.IngestDocumentJob, handler jobs.JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) scheduleRetry(ctx context.Context, job *jobs.IngestDocumentJob) {
	q.retryMu.Lock()
	defer q.retryMu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(q.Backoff(job.RetryCount), func() {
		q.retryMu.Lock()
		delete(q.retries, timer)
		q.retryMu.Unlock()

		if err := q.PublishIngestDocument(ctx, job); err != nil {
			q.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Re-enqueue failed")
		}
	})
	q.retries[timer] = struct{}{}
}

func (q *Queue) save(ctx context.Context, job *jobs.IngestDocumentJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Saving job failed")
	}
}

// Stop closes the queue, cancels pending retries and waits for in-flight
// jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	// Workers schedule retries, so timers are cancelled once they exit.
	defer q.cancelRetries()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) cancelRetries() {
	q.retryMu.Lock()
	defer q.retryMu.Unlock()
	for t := range q.retries {
		t.Stop()
	}
	clear(q.retries)
}

// Close stops the queue.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
