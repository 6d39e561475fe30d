package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dvloznov/ledger-processor/internal/api/middleware"
	"github.com/dvloznov/ledger-processor/internal/jobs"
	"github.com/dvloznov/ledger-processor/internal/logger"
	"github.com/dvloznov/ledger-processor/internal/pipeline"
	"github.com/dvloznov/ledger-processor/internal/session"
)

// MaxEventBytes bounds the accepted event payload.
const MaxEventBytes = 1 << 20

// Handler serves POST /events/session-updated.
type Handler struct {
	publisher jobs.Publisher
}

// NewHandler creates a trigger handler that enqueues runs on publisher.
func NewHandler(publisher jobs.Publisher) *Handler {
	return &Handler{publisher: publisher}
}

// SessionUpdated decodes the event, applies the guard and enqueues a run.
func (h *Handler) SessionUpdated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxEventBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	event, err := DecodeEvent(body)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected session event")
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := event.After
	if !event.ShouldProcess() {
		log.Debug().
			Str(logger.FieldSessionID, sess.ID).
			Str("status", string(sess.Status)).
			Msg("Session event ignored")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status":     "skipped",
			"session_id": sess.ID,
		})
		return
	}

	job := &jobs.ProcessSessionJob{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Session:   sess,
	}
	if err := h.publisher.PublishProcessSession(ctx, job); err != nil {
		if errors.Is(err, jobs.ErrDuplicateJob) {
			log.Info().Str(logger.FieldSessionID, sess.ID).Msg("Session already queued")
			middleware.WriteJSON(w, http.StatusOK, map[string]string{
				"status":     "skipped",
				"session_id": sess.ID,
			})
			return
		}
		log.Error().Err(err).Str(logger.FieldSessionID, sess.ID).Msg("Failed to enqueue session job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue session job")
		return
	}

	log.Info().
		Str(logger.FieldJobID, job.JobID).
		Str(logger.FieldSessionID, sess.ID).
		Msg("Session job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":     "queued",
		"job_id":     job.JobID,
		"session_id": sess.ID,
	})
}

// Processor runs the pipeline for one session.
type Processor interface {
	Process(ctx context.Context, sess *session.Session) (string, error)
}

// NewJobHandler adapts a Processor to the job queue. Jobs without a
// snapshot load the session from sessions first.
func NewJobHandler(p Processor, sessions session.SessionStore) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.ProcessSessionJob) error {
		sess := job.Session
		if sess == nil {
			var err error
			if sess, err = sessions.GetSession(ctx, job.SessionID); err != nil {
				return fmt.Errorf("loading session %s: %w", job.SessionID, err)
			}
		}

		resultID, err := p.Process(ctx, sess)
		if errors.Is(err, pipeline.ErrAlreadyClaimed) {
			return fmt.Errorf("%w: %v", jobs.ErrSkipped, err)
		}
		if err != nil {
			return err
		}
		job.ResultID = resultID
		return nil
	}
}
