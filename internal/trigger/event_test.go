package trigger

import (
	"fmt"
	"testing"
	"time"

	"github.com/dvloznov/ledger-processor/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docName = "projects/p/databases/(default)/documents/upload_sessions/sess-42"

func sessionDoc(status string) string {
	return fmt.Sprintf(`{
		"name": %q,
		"createTime": "2024-05-01T09:00:00Z",
		"updateTime": "2024-05-01T10:00:00Z",
		"fields": {
			"userId": {"stringValue": "user-7"},
			"status": {"stringValue": %q},
			"files": {"mapValue": {"fields": {
				"glEntries": {"mapValue": {"fields": {
					"name": {"stringValue": "gl.xlsx"},
					"path": {"stringValue": "user-7/sess-42/gl.xlsx"}
				}}},
				"regionalMapping": {"mapValue": {"fields": {
					"name": {"stringValue": "regions.csv"},
					"path": {"stringValue": "user-7/sess-42/regions.csv"}
				}}}
			}}},
			"processedAt": {"timestampValue": "2024-05-01T09:30:00Z"},
			"uploadCount": {"integerValue": "2"}
		}
	}`, docName, status)
}

func eventJSON(before, after string) []byte {
	return []byte(fmt.Sprintf(`{"oldValue": %s, "value": %s, "updateMask": {"fieldPaths": ["status"]}}`,
		sessionDoc(before), sessionDoc(after)))
}

func TestDecodeEvent(t *testing.T) {
	event, err := DecodeEvent(eventJSON("uploading", "ready_for_processing"))
	require.NoError(t, err)

	require.NotNil(t, event.Before)
	assert.Equal(t, session.StatusUploading, event.Before.Status)

	after := event.After
	assert.Equal(t, "sess-42", after.ID)
	assert.Equal(t, "user-7", after.UserID)
	assert.Equal(t, session.StatusReadyForProcessing, after.Status)
	assert.Equal(t, session.FileMeta{Name: "gl.xlsx", Path: "user-7/sess-42/gl.xlsx"}, after.Files[session.FileGLEntries])
	assert.Equal(t, "user-7/sess-42/regions.csv", after.Files[session.FileRegionalMapping].Path)
	require.NotNil(t, after.ProcessedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), after.ProcessedAt.UTC())
	assert.Nil(t, after.CompletedAt)
	assert.Equal(t, []string{"status"}, event.UpdatedFields)

	assert.True(t, event.ShouldProcess())
}

func TestDecodeEvent_CreatedDocument(t *testing.T) {
	for _, payload := range []string{
		fmt.Sprintf(`{"value": %s}`, sessionDoc("ready_for_processing")),
		fmt.Sprintf(`{"oldValue": {}, "value": %s}`, sessionDoc("ready_for_processing")),
		fmt.Sprintf(`{"oldValue": null, "value": %s}`, sessionDoc("ready_for_processing")),
	} {
		event, err := DecodeEvent([]byte(payload))
		require.NoError(t, err)
		assert.Nil(t, event.Before)
		assert.True(t, event.ShouldProcess())
	}
}

func TestDecodeEvent_Guard(t *testing.T) {
	tests := []struct {
		before, after string
		want          bool
	}{
		{"uploading", "ready_for_processing", true},
		{"processing", "ready_for_processing", true},
		{"error", "ready_for_processing", true},
		{"ready_for_processing", "ready_for_processing", false},
		{"ready_for_processing", "processing", false},
		{"processing", "completed", false},
	}

	for _, tt := range tests {
		t.Run(tt.before+"->"+tt.after, func(t *testing.T) {
			event, err := DecodeEvent(eventJSON(tt.before, tt.after))
			require.NoError(t, err)
			assert.Equal(t, tt.want, event.ShouldProcess())
		})
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	tests := map[string]string{
		"not json":         `{"value":`,
		"missing value":    `{"oldValue": {}}`,
		"null value":       `{"value": null}`,
		"missing name":     `{"value": {"fields": {"status": {"stringValue": "ready_for_processing"}}}}`,
		"bad typed value":  `{"value": {"name": "a/b", "fields": {"status": {"stringValue": 5}}}}`,
		"bad old document": fmt.Sprintf(`{"oldValue": {"fields": 3}, "value": %s}`, sessionDoc("ready_for_processing")),
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(payload))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}
