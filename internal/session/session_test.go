package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcess(t *testing.T) {
	tests := []struct {
		before Status
		after  Status
		want   bool
	}{
		{StatusUploading, StatusReadyForProcessing, true},
		{StatusError, StatusReadyForProcessing, true},
		{StatusCompleted, StatusReadyForProcessing, true},
		{"", StatusReadyForProcessing, true},
		{StatusReadyForProcessing, StatusReadyForProcessing, false},
		{StatusReadyForProcessing, StatusProcessing, false},
		{StatusProcessing, StatusCompleted, false},
		{StatusUploading, StatusUploading, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.before)+"->"+string(tt.after), func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldProcess(tt.before, tt.after))
		})
	}
}

func TestShouldProcess_DuplicateFiring(t *testing.T) {
	transitions := [][2]Status{
		{StatusProcessing, StatusReadyForProcessing},
		{StatusReadyForProcessing, StatusReadyForProcessing},
	}

	runs := 0
	for _, tr := range transitions {
		if ShouldProcess(tr[0], tr[1]) {
			runs++
		}
	}
	assert.Equal(t, 1, runs)
}

func TestSession_MissingFiles(t *testing.T) {
	s := &Session{Files: map[string]FileMeta{
		FileGLEntries:       {Name: "gl.csv", Path: "u/gl.csv"},
		FileCostItemMap:     {Name: "ci.xlsx", Path: ""},
		FileRegionalMapping: {Name: "r.csv", Path: "u/r.csv"},
	}}

	assert.Equal(t, []string{FileCostItemMap, FileBudgetHolderMapping}, s.MissingFiles())

	s.Files[FileCostItemMap] = FileMeta{Path: "u/ci.xlsx"}
	s.Files[FileBudgetHolderMapping] = FileMeta{Path: "u/bh.xlsx"}
	assert.Empty(t, s.MissingFiles())
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.False(t, StatusReadyForProcessing.IsTerminal())
}
