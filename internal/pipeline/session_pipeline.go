package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/dvloznov/ledger-processor/internal/blob"
	"github.com/dvloznov/ledger-processor/internal/config"
	"github.com/dvloznov/ledger-processor/internal/logger"
	"github.com/dvloznov/ledger-processor/internal/session"
)

// statusWriteTimeout bounds the terminal status write. It runs on a context
// detached from the run so a cancelled run still leaves a terminal status.
const statusWriteTimeout = 10 * time.Second

// Dependencies are the collaborators of a SessionPipeline.
type Dependencies struct {
	Config     *config.Config
	Sessions   session.SessionStore
	Results    session.ResultStore
	Blobs      blob.Store
	Classifier Classifier
	Detector   AnomalyDetector

	// TempDir is the parent of per-run work directories; empty means the
	// system default.
	TempDir string
	Now     func() time.Time
}

// SessionPipeline drives a session through
// ready_for_processing -> processing -> completed | error.
type SessionPipeline struct {
	sessions session.SessionStore
	results  session.ResultStore
	pipeline *Pipeline
	tempDir  string
}

// NewSessionPipeline wires the standard step sequence.
func NewSessionPipeline(deps Dependencies) *SessionPipeline {
	return &SessionPipeline{
		sessions: deps.Sessions,
		results:  deps.Results,
		tempDir:  deps.TempDir,
		pipeline: NewPipeline(
			&CheckConfigStep{Config: deps.Config},
			&CheckFilesStep{},
			&DownloadFilesStep{Blobs: deps.Blobs},
			&LoadTablesStep{},
			&JoinStep{},
			&PartitionStep{},
			&ClassifyRevenueStep{Classifier: deps.Classifier},
			&AggregateStep{},
			&DetectAnomaliesStep{Detector: deps.Detector},
			&PersistResultStep{Results: deps.Results, Now: deps.Now},
		),
	}
}

// Process runs the pipeline for sess and returns the stored result ID.
//
// The session is claimed (status processing) before any file I/O. Every
// failure after the claim is recorded as status error with a message and
// returned; no result is kept in that case. The terminal status is written
// even when ctx is cancelled. ErrAlreadyClaimed means the
// session was not ready and nothing was done.
func (p *SessionPipeline) Process(ctx context.Context, sess *session.Session) (string, error) {
	if sess == nil || sess.ID == "" {
		return "", errors.New("Process: session ID is required")
	}

	log := logger.ForSession(logger.FromContext(ctx), sess.ID, sess.UserID)
	ctx = logger.WithContext(ctx, log)

	if err := p.sessions.MarkProcessing(ctx, sess.ID); err != nil {
		if errors.Is(err, session.ErrStatusConflict) {
			log.Info().Err(err).Msg("Session not ready, skipping")
			return "", fmt.Errorf("Process: %s: %w", sess.ID, ErrAlreadyClaimed)
		}
		return "", fmt.Errorf("Process: marking %s processing: %w", sess.ID, err)
	}
	log.Info().Msg("Session processing started")

	state := &PipelineState{Session: sess}
	if err := p.run(ctx, state); err != nil {
		p.fail(ctx, sess.ID, err)
		return "", err
	}

	wctx, cancel := statusContext(ctx)
	defer cancel()
	if err := p.sessions.MarkCompleted(wctx, sess.ID, state.ResultID); err != nil {
		err = fmt.Errorf("recording completion: %w", err)
		if delErr := p.results.DeleteResult(wctx, state.ResultID); delErr != nil {
			log.Error().Err(delErr).Str("result_id", state.ResultID).Msg("Failed to remove result of uncompleted session")
		}
		p.fail(ctx, sess.ID, err)
		return "", err
	}

	log.Info().
		Str("result_id", state.ResultID).
		Str("total_costs", state.Metrics.TotalCosts.String()).
		Int("anomalies", len(state.Anomalies)).
		Msg("Session processing completed")
	return state.ResultID, nil
}

// run executes the steps inside a private work directory that is removed
// on every exit path, panics included.
func (p *SessionPipeline) run(ctx context.Context, state *PipelineState) (err error) {
	log := logger.FromContext(ctx)

	workDir, err := os.MkdirTemp(p.tempDir, "ledger-session-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	state.WorkDir = workDir

	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			log.Warn().Err(rmErr).Str("work_dir", workDir).Msg("Failed to remove work dir")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return p.pipeline.Execute(ctx, state)
}

func (p *SessionPipeline) fail(ctx context.Context, id string, cause error) {
	log := logger.FromContext(ctx)
	kind := ClassifyError(cause)

	event := log.Error().Err(cause).Str("error_kind", string(kind))
	var panicErr *PanicError
	if errors.As(cause, &panicErr) {
		event = event.Bytes("stack", panicErr.Stack)
	}
	event.Msg("Session processing failed")

	wctx, cancel := statusContext(ctx)
	defer cancel()
	if err := p.sessions.MarkFailed(wctx, id, kind, truncateMessage(cause.Error())); err != nil {
		log.Error().Err(err).Msg("Failed to record session error status")
	}
}

func statusContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
}
