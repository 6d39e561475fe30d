// Package session defines upload sessions, their processing status and the
// result records produced for them.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/ledger-processor/internal/ledger"
)

// Status is the processing state of an upload session.
type Status string

const (
	StatusUploading          Status = "uploading"
	StatusReadyForProcessing Status = "ready_for_processing"
	StatusProcessing         Status = "processing"
	StatusCompleted          Status = "completed"
	StatusError              Status = "error"
)

// IsTerminal reports whether no further transition is expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Logical file types in a session's Files map.
const (
	FileGLEntries           = "glEntries"
	FileCostItemMap         = "costItemMap"
	FileBudgetHolderMapping = "budgetHolderMapping"
	FileRegionalMapping     = "regionalMapping"
	FileCorrections         = "corrections"
)

// RequiredFiles lists the file types every session must provide.
var RequiredFiles = []string{FileGLEntries, FileCostItemMap, FileBudgetHolderMapping, FileRegionalMapping}

// ErrorKind classifies why a run failed.
type ErrorKind string

const (
	ErrorKindConfiguration     ErrorKind = "configuration"
	ErrorKindSourceRead        ErrorKind = "source_read"
	ErrorKindUnsupportedFormat ErrorKind = "unsupported_format"
	ErrorKindUnexpected        ErrorKind = "unexpected"
)

var (
	// ErrNotFound is returned when a session or result does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict is returned when a status transition is not allowed
	// from the session's current status.
	ErrStatusConflict = errors.New("status conflict")
)

// FileMeta locates one uploaded file in the blob store.
type FileMeta struct {
	Name string `json:"name" firestore:"name"`
	Path string `json:"path" firestore:"path"`
}

// Session is an upload session document.
type Session struct {
	ID           string              `json:"id" firestore:"-"`
	UserID       string              `json:"userId" firestore:"userId"`
	Status       Status              `json:"status" firestore:"status"`
	Files        map[string]FileMeta `json:"files" firestore:"files"`
	ErrorMessage string              `json:"errorMessage,omitempty" firestore:"errorMessage,omitempty"`
	ErrorKind    ErrorKind           `json:"errorKind,omitempty" firestore:"errorKind,omitempty"`
	ResultID     string              `json:"resultId,omitempty" firestore:"resultId,omitempty"`
	ProcessedAt  *time.Time          `json:"processedAt,omitempty" firestore:"processedAt,omitempty"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty" firestore:"completedAt,omitempty"`
}

// MissingFiles returns the required file types absent from the session.
func (s *Session) MissingFiles() []string {
	var missing []string
	for _, ft := range RequiredFiles {
		if meta, ok := s.Files[ft]; !ok || meta.Path == "" {
			missing = append(missing, ft)
		}
	}
	return missing
}

// ShouldProcess is the trigger guard: a run starts only when the status
// moves into ready_for_processing from a different status.
func ShouldProcess(before, after Status) bool {
	return after == StatusReadyForProcessing && before != StatusReadyForProcessing
}

// AIAnalysis holds the advisory output of the AI services.
type AIAnalysis struct {
	Anomalies       []string `json:"anomalies" firestore:"anomalies"`
	Insights        []string `json:"insights" firestore:"insights"`
	Recommendations []string `json:"recommendations" firestore:"recommendations"`
}

// Result is the immutable outcome of one successful run.
type Result struct {
	UserID          string                 `json:"userId"`
	SessionID       string                 `json:"sessionId"`
	Timestamp       time.Time              `json:"timestamp"`
	VerifiedMetrics ledger.AggregateResult `json:"verifiedMetrics"`
	AIAnalysis      AIAnalysis             `json:"aiAnalysis"`
	RevenueRowCount int                    `json:"revenueRowCount"`
	CostRowCount    int                    `json:"costRowCount"`
	DroppedRowCount int                    `json:"droppedRowCount"`
}

// SessionStore reads and transitions session documents.
type SessionStore interface {
	// GetSession returns the session or ErrNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)

	// MarkProcessing claims the session for a run. It fails with
	// ErrStatusConflict if the session is already processing or finished.
	MarkProcessing(ctx context.Context, id string) error

	// MarkCompleted records success and the result reference.
	MarkCompleted(ctx context.Context, id, resultID string) error

	// MarkFailed records a failed run with a human-readable message.
	MarkFailed(ctx context.Context, id string, kind ErrorKind, message string) error
}

// ResultStore persists results and returns the generated identifier.
type ResultStore interface {
	CreateResult(ctx context.Context, result *Result) (string, error)

	// DeleteResult removes a result whose session could not be marked
	// completed. Deleting an unknown ID is not an error.
	DeleteResult(ctx context.Context, id string) error
}
