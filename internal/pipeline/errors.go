package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-processor/internal/config"
	"github.com/dvloznov/ledger-processor/internal/ledger"
	"github.com/dvloznov/ledger-processor/internal/session"
)

// MaxErrorMessageLen caps the error message stored on a session.
const MaxErrorMessageLen = 2000

// ErrAlreadyClaimed is returned when another run owns the session or the
// session is no longer ready for processing.
var ErrAlreadyClaimed = errors.New("session already claimed")

// MissingFilesError lists required file types absent from a session.
type MissingFilesError struct {
	FileTypes []string
}

func (e *MissingFilesError) Error() string {
	return fmt.Sprintf("missing required files: %s", strings.Join(e.FileTypes, ", "))
}

// PanicError wraps a panic recovered inside a run.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Value)
}

// ClassifyError maps a run failure to the kind recorded on the session.
func ClassifyError(err error) session.ErrorKind {
	var (
		cfgErr        *config.ConfigurationError
		unsupported   *ledger.UnsupportedFormatError
		readErr       *ledger.SourceReadError
		missingColumn *ledger.MissingColumnError
		missingFiles  *MissingFilesError
	)

	switch {
	case errors.As(err, &cfgErr):
		return session.ErrorKindConfiguration
	case errors.As(err, &unsupported):
		return session.ErrorKindUnsupportedFormat
	case errors.As(err, &readErr), errors.As(err, &missingColumn), errors.As(err, &missingFiles):
		return session.ErrorKindSourceRead
	default:
		return session.ErrorKindUnexpected
	}
}

// truncateMessage shortens msg to MaxErrorMessageLen runes.
func truncateMessage(msg string) string {
	if len(msg) <= MaxErrorMessageLen {
		return msg
	}
	runes := []rune(msg)
	if len(runes) <= MaxErrorMessageLen {
		return msg
	}
	return string(runes[:MaxErrorMessageLen])
}
