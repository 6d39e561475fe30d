package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dvloznov/ledger-processor/internal/jobs"
	"github.com/dvloznov/ledger-processor/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-processor/internal/pipeline"
	"github.com/dvloznov/ledger-processor/internal/session"
	sessionmem "github.com/dvloznov/ledger-processor/internal/session/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPublisher is a func-field jobs.Publisher.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.ProcessSessionJob) error
}

func (m *MockPublisher) PublishProcessSession(ctx context.Context, job *jobs.ProcessSessionJob) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, job)
	}
	job.JobID = "job-1"
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func post(t *testing.T, h *Handler, body []byte) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.SessionUpdated(rec, httptest.NewRequest(http.MethodPost, "/events/session-updated", bytes.NewReader(body)))

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHandler_QueuesOncePerReadyTransition(t *testing.T) {
	store := inmemory.NewStore()
	// Not started: jobs stay pending so duplicates are visible.
	q := inmemory.NewQueue(10, 1, store)
	h := NewHandler(q)

	rec, resp := post(t, h, eventJSON("processing", "ready_for_processing"))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "queued", resp["status"])
	assert.Equal(t, "sess-42", resp["session_id"])
	assert.NotEmpty(t, resp["job_id"])

	rec, resp = post(t, h, eventJSON("ready_for_processing", "ready_for_processing"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "skipped", resp["status"])

	// A second genuine transition while the first run is pending is dropped too.
	rec, resp = post(t, h, eventJSON("error", "ready_for_processing"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "skipped", resp["status"])

	list, err := store.ListJobs(context.Background(), jobs.JobFilter{SessionID: "sess-42"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestHandler_SnapshotIsQueued(t *testing.T) {
	var got *jobs.ProcessSessionJob
	h := NewHandler(&MockPublisher{PublishFunc: func(ctx context.Context, job *jobs.ProcessSessionJob) error {
		got = job
		job.JobID = "j"
		return nil
	}})

	rec, _ := post(t, h, eventJSON("uploading", "ready_for_processing"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "sess-42", got.SessionID)
	assert.Equal(t, "user-7", got.UserID)
	require.NotNil(t, got.Session)
	assert.Len(t, got.Session.Files, 2)
}

func TestHandler_Errors(t *testing.T) {
	rec, resp := post(t, NewHandler(&MockPublisher{}), []byte(`{"value": 1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, resp["error"])

	failing := NewHandler(&MockPublisher{PublishFunc: func(ctx context.Context, job *jobs.ProcessSessionJob) error {
		return jobs.ErrQueueClosed
	}})
	rec, _ = post(t, failing, eventJSON("uploading", "ready_for_processing"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// MockProcessor is a func-field Processor.
type MockProcessor struct {
	ProcessFunc func(ctx context.Context, sess *session.Session) (string, error)
}

func (m *MockProcessor) Process(ctx context.Context, sess *session.Session) (string, error) {
	return m.ProcessFunc(ctx, sess)
}

func TestNewJobHandler(t *testing.T) {
	ctx := context.Background()
	sessions := sessionmem.NewSessionStore()
	require.NoError(t, sessions.PutSession(ctx, &session.Session{ID: "stored", UserID: "u", Status: session.StatusReadyForProcessing}))

	var processed []string
	handler := NewJobHandler(&MockProcessor{ProcessFunc: func(ctx context.Context, sess *session.Session) (string, error) {
		processed = append(processed, sess.ID+"/"+sess.UserID)
		switch sess.ID {
		case "claimed":
			return "", pipeline.ErrAlreadyClaimed
		case "broken":
			return "", errors.New("source read failed")
		}
		return "result-1", nil
	}}, sessions)

	job := &jobs.ProcessSessionJob{SessionID: "snap", Session: &session.Session{ID: "snap", UserID: "v"}}
	require.NoError(t, handler(ctx, job))
	assert.Equal(t, "result-1", job.ResultID)

	require.NoError(t, handler(ctx, &jobs.ProcessSessionJob{SessionID: "stored"}))

	err := handler(ctx, &jobs.ProcessSessionJob{SessionID: "claimed", Session: &session.Session{ID: "claimed"}})
	assert.ErrorIs(t, err, jobs.ErrSkipped)

	err = handler(ctx, &jobs.ProcessSessionJob{SessionID: "broken", Session: &session.Session{ID: "broken"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, jobs.ErrSkipped)

	err = handler(ctx, &jobs.ProcessSessionJob{SessionID: "unknown"})
	assert.ErrorIs(t, err, session.ErrNotFound)

	assert.Equal(t, []string{"snap/v", "stored/u", "claimed/", "broken/"}, processed)
}
