// Package trigger turns session document updates into pipeline jobs.
package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/dvloznov/ledger-processor/internal/session"
	"google.golang.org/protobuf/encoding/protojson"
)

// ErrMalformedEvent is wrapped by every DecodeEvent failure.
var ErrMalformedEvent = errors.New("malformed session event")

// Event is a decoded session document update.
type Event struct {
	// Before is nil when the document was just created.
	Before *session.Session
	After  *session.Session
	// UpdatedFields lists the changed field paths when the sender reports them.
	UpdatedFields []string
}

// ShouldProcess applies the trigger guard to the event.
func (e *Event) ShouldProcess() bool {
	var before session.Status
	if e.Before != nil {
		before = e.Before.Status
	}
	return session.ShouldProcess(before, e.After.Status)
}

// rawEvent is the Cloud Functions JSON form of a Firestore update.
type rawEvent struct {
	OldValue   json.RawMessage `json:"oldValue"`
	Value      json.RawMessage `json:"value"`
	UpdateMask struct {
		FieldPaths []string `json:"fieldPaths"`
	} `json:"updateMask"`
}

var documentJSON = protojson.UnmarshalOptions{DiscardUnknown: true}

// DecodeEvent parses a document-update payload. The session ID is the last
// segment of the new document's name.
func DecodeEvent(data []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("DecodeEvent: %w: %v", ErrMalformedEvent, err)
	}
	if isNull(raw.Value) {
		return nil, fmt.Errorf("DecodeEvent: %w: value is missing", ErrMalformedEvent)
	}

	after, err := decodeDocument(raw.Value)
	if err != nil {
		return nil, fmt.Errorf("DecodeEvent: value: %w", err)
	}
	id := path.Base(after.GetName())
	if after.GetName() == "" || id == "." || id == "/" {
		return nil, fmt.Errorf("DecodeEvent: %w: document name is missing", ErrMalformedEvent)
	}

	event := &Event{
		After:         sessionFromDocument(id, after),
		UpdatedFields: raw.UpdateMask.FieldPaths,
	}

	if !isNull(raw.OldValue) {
		before, err := decodeDocument(raw.OldValue)
		if err != nil {
			return nil, fmt.Errorf("DecodeEvent: oldValue: %w", err)
		}
		if len(before.GetFields()) > 0 {
			event.Before = sessionFromDocument(id, before)
		}
	}

	return event, nil
}

func isNull(msg json.RawMessage) bool {
	return len(msg) == 0 || string(msg) == "null"
}

func decodeDocument(data []byte) (*firestorepb.Document, error) {
	var doc firestorepb.Document
	if err := documentJSON.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &doc, nil
}

func sessionFromDocument(id string, doc *firestorepb.Document) *session.Session {
	fields := doc.GetFields()

	sess := &session.Session{
		ID:           id,
		UserID:       fields["userId"].GetStringValue(),
		Status:       session.Status(fields["status"].GetStringValue()),
		ErrorMessage: fields["errorMessage"].GetStringValue(),
		ErrorKind:    session.ErrorKind(fields["errorKind"].GetStringValue()),
		ResultID:     fields["resultId"].GetStringValue(),
		ProcessedAt:  timestampField(fields["processedAt"]),
		CompletedAt:  timestampField(fields["completedAt"]),
		Files:        make(map[string]session.FileMeta),
	}

	for fileType, v := range fields["files"].GetMapValue().GetFields() {
		meta := v.GetMapValue().GetFields()
		sess.Files[fileType] = session.FileMeta{
			Name: meta["name"].GetStringValue(),
			Path: meta["path"].GetStringValue(),
		}
	}

	return sess
}

func timestampField(v *firestorepb.Value) *time.Time {
	ts := v.GetTimestampValue()
	if ts == nil {
		return nil
	}
	t := ts.AsTime()
	return &t
}
