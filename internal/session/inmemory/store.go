// Package inmemory provides map-backed session and result stores for local
// runs and tests.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/ledger-processor/internal/session"
	"github.com/google/uuid"
)

// SessionStore is an in-memory session.SessionStore. It is safe for
// concurrent use and hands out copies so callers cannot mutate stored state.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	now      func() time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session.Session),
		now:      time.Now,
	}
}

// PutSession inserts or replaces a session.
func (s *SessionStore) PutSession(ctx context.Context, sess *session.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = copySession(sess)
	return nil
}

// GetSession implements session.SessionStore.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, session.ErrNotFound)
	}
	return copySession(sess), nil
}

// MarkProcessing implements session.SessionStore.
func (s *SessionStore) MarkProcessing(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, session.ErrNotFound)
	}
	if sess.Status != session.StatusReadyForProcessing {
		return fmt.Errorf("session %s is %s: %w", id, sess.Status, session.ErrStatusConflict)
	}

	now := s.now()
	sess.Status = session.StatusProcessing
	sess.ProcessedAt = &now
	sess.ErrorMessage = ""
	sess.ErrorKind = ""
	sess.ResultID = ""
	sess.CompletedAt = nil
	return nil
}

// MarkCompleted implements session.SessionStore.
func (s *SessionStore) MarkCompleted(ctx context.Context, id, resultID string) error {
	return s.finish(id, func(sess *session.Session) {
		sess.Status = session.StatusCompleted
		sess.ResultID = resultID
	})
}

// MarkFailed implements session.SessionStore.
func (s *SessionStore) MarkFailed(ctx context.Context, id string, kind session.ErrorKind, message string) error {
	return s.finish(id, func(sess *session.Session) {
		sess.Status = session.StatusError
		sess.ErrorKind = kind
		sess.ErrorMessage = message
	})
}

func (s *SessionStore) finish(id string, apply func(*session.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, session.ErrNotFound)
	}
	if sess.Status != session.StatusProcessing {
		return fmt.Errorf("session %s is %s: %w", id, sess.Status, session.ErrStatusConflict)
	}

	apply(sess)
	now := s.now()
	sess.CompletedAt = &now
	return nil
}

func copySession(sess *session.Session) *session.Session {
	c := *sess
	if sess.Files != nil {
		c.Files = make(map[string]session.FileMeta, len(sess.Files))
		for k, v := range sess.Files {
			c.Files[k] = v
		}
	}
	if sess.ProcessedAt != nil {
		t := *sess.ProcessedAt
		c.ProcessedAt = &t
	}
	if sess.CompletedAt != nil {
		t := *sess.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ResultStore is an in-memory session.ResultStore.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]session.Result
}

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]session.Result)}
}

// CreateResult implements session.ResultStore.
func (s *ResultStore) CreateResult(ctx context.Context, result *session.Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.results[id] = *result
	return id, nil
}

// DeleteResult implements session.ResultStore.
func (s *ResultStore) DeleteResult(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.results, id)
	return nil
}

// GetResult returns a stored result.
func (s *ResultStore) GetResult(ctx context.Context, id string) (*session.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return nil, fmt.Errorf("result %s: %w", id, session.ErrNotFound)
	}
	return &r, nil
}

// Len returns the number of stored results.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

var (
	_ session.SessionStore = (*SessionStore)(nil)
	_ session.ResultStore  = (*ResultStore)(nil)
)
