package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/ledger-processor/internal/jobs"
	"github.com/dvloznov/ledger-processor/internal/logger"
	"github.com/google/uuid"
)

// DefaultWorkerCount is used when NewQueue is given no positive count.
const DefaultWorkerCount = 5

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs run at most once; a failed job is recorded and never re-enqueued.
type Queue struct {
	jobChan     chan *jobs.ProcessSessionJob
	closeChan   chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	store       jobs.JobStore
	workerCount int
	closed      bool
	now         func() time.Time
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before
// PublishProcessSession blocks.
func NewQueue(bufferSize, workerCount int, store jobs.JobStore) *Queue {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	return &Queue{
		jobChan:     make(chan *jobs.ProcessSessionJob, bufferSize),
		closeChan:   make(chan struct{}),
		store:       store,
		workerCount: workerCount,
		now:         time.Now,
	}
}

// PublishProcessSession implements the Publisher interface. The job is
// registered with the store before it is enqueued, so a second job for the
// same session is rejected while the first is pending or running.
func (q *Queue) PublishProcessSession(ctx context.Context, job *jobs.ProcessSessionJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	job.Status = jobs.JobStatusPending
	if job.CreatedAt.IsZero() {
		job.CreatedAt = q.now()
	}

	if q.store != nil {
		if err := q.store.CreateJob(ctx, job); err != nil {
			return fmt.Errorf("PublishProcessSession: %w", err)
		}
	}

	// Workers own the enqueued copy.
	queued := *job
	select {
	case q.jobChan <- &queued:
		return nil
	case <-ctx.Done():
		q.abandon(&queued, ctx.Err())
		return ctx.Err()
	case <-q.closeChan:
		q.abandon(&queued, jobs.ErrQueueClosed)
		return jobs.ErrQueueClosed
	}
}

// abandon releases the session of a job that never reached a worker.
func (q *Queue) abandon(job *jobs.ProcessSessionJob, cause error) {
	if q.store == nil {
		return
	}
	job.Status = jobs.JobStatusFailed
	job.Error = cause.Error()
	_ = q.store.SaveJob(context.Background(), job)
}

// Start implements the Consumer interface.
// It starts workerCount goroutines that call handler for each job.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
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

// processJob executes a single job and records its outcome.
func (q *Queue) processJob(ctx context.Context, job *jobs.ProcessSessionJob, handler jobs.JobHandler) {
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		logger.FieldJobID:     job.JobID,
		logger.FieldSessionID: job.SessionID,
		logger.FieldUserID:    job.UserID,
	})
	ctx = logger.WithContext(ctx, log)

	job.Status = jobs.JobStatusRunning
	startedAt := q.now()
	job.StartedAt = &startedAt
	q.save(ctx, job)

	err := q.call(ctx, job, handler)

	completedAt := q.now()
	job.CompletedAt = &completedAt

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	case errors.Is(err, jobs.ErrSkipped):
		job.Status = jobs.JobStatusSkipped
		job.Error = err.Error()
	default:
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		log.Error().Err(err).Msg("Job failed")
	}

	q.save(ctx, job)
	log.Info().
		Str("status", string(job.Status)).
		Dur("duration", completedAt.Sub(startedAt)).
		Msg("Job finished")
}

// call runs handler, turning a panic into an error so the worker survives.
func (q *Queue) call(ctx context.Context, job *jobs.ProcessSessionJob, handler jobs.JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.ProcessSessionJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to save job state")
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	return q.Wait(ctx)
}

// Wait blocks until every worker has returned or ctx is done. After Stop
// times out, callers cancel the workers' context and Wait again before
// releasing anything the handlers use.
func (q *Queue) Wait(ctx context.Context) error {
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

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
