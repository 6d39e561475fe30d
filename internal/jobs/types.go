package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/ledger-processor/internal/session"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeProcessSession runs the pipeline for one upload session.
	JobTypeProcessSession JobType = "process_session"
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
	// JobStatusSkipped indicates the session had already been claimed elsewhere.
	JobStatusSkipped JobStatus = "skipped"
)

// IsActive reports whether a job with this status still owns its session.
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

var (
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
	// ErrDuplicateJob is returned when a session already has a pending or
	// running job.
	ErrDuplicateJob = errors.New("session already has an active job")
	// ErrQueueClosed is returned when publishing to a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrSkipped is returned by a JobHandler that found nothing to do.
	ErrSkipped = errors.New("job skipped")
)

// ProcessSessionJob represents one pipeline run for an upload session.
type ProcessSessionJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	// Session is the snapshot taken from the trigger event.
	Session *session.Session `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// ResultID is set once the run stored its result.
	ResultID string `json:"result_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// GetID returns the unique job identifier.
func (j *ProcessSessionJob) GetID() string {
	return j.JobID
}

// GetType returns the job type.
func (j *ProcessSessionJob) GetType() JobType {
	return JobTypeProcessSession
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishProcessSession enqueues a session run. ErrDuplicateJob means a
	// run for the same session is already pending or running.
	PublishProcessSession(ctx context.Context, job *ProcessSessionJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. Failed jobs are not retried: the session
// already carries its error status.
type JobHandler func(ctx context.Context, job *ProcessSessionJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// CreateJob stores a new job, rejecting it with ErrDuplicateJob when
	// its session already has an active job.
	CreateJob(ctx context.Context, job *ProcessSessionJob) error

	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ProcessSessionJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ProcessSessionJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ProcessSessionJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	SessionID string
	Status    JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
