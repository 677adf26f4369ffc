// Package jobs defines asynchronous knowledge ingestion jobs.
package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeIngestDocument indexes a stored document into the knowledge base.
	JobTypeIngestDocument JobType = "ingest_document"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries is used when a job does not set MaxRetries.
const DefaultMaxRetries = 3

// IngestDocumentJob indexes one uploaded document.
type IngestDocumentJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Location is the local path or gs:// URI of the stored document.
	Location string `json:"location"`

	// Filename is the name the document was uploaded with.
	Filename string `json:"filename,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Chunks is the number of chunks the document was split into.
	Chunks int `json:"chunks"`

	// Message is the admin-facing result text.
	Message string `json:"message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *IngestDocumentJob) GetID() string { return j.JobID }

func (j *IngestDocumentJob) GetType() JobType { return JobTypeIngestDocument }

func (j *IngestDocumentJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues jobs.
type Publisher interface {
	PublishIngestDocument(ctx context.Context, job *IngestDocumentJob) error
	Close() error
}

// Consumer runs jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs. The handler is called for each job.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. It may set Chunks and Message on the job.
// A returned error marks the attempt failed and the job is retried.
type JobHandler func(ctx context.Context, job *IngestDocumentJob) error

// JobStore tracks job status.
type JobStore interface {
	SaveJob(ctx context.Context, job *IngestDocumentJob) error
	GetJob(ctx context.Context, jobID string) (*IngestDocumentJob, error)
	// ListJobs returns matching jobs, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*IngestDocumentJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Location string
	Status   JobStatus
	Limit    int
	Offset   int
}
