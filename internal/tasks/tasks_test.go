package tasks

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromote_PreservesProvenance(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &PendingTask{
		ID:              "pending-1",
		Title:           "Send invoice",
		Context:         "Dana asked Alex to send the invoice",
		Confidence:      0.55,
		SourceNoteID:    "note-7",
		SourceNoteTitle: "Standup",
		ExtractedFrom:   OriginNote,
		CreatedAt:       created.Add(-time.Hour),
	}

	task := p.Promote(created)

	assert.NotEqual(t, p.ID, task.ID)
	assert.Equal(t, "pending-1", task.PendingID)
	assert.Equal(t, p.Title, task.Title)
	assert.Equal(t, p.Context, task.Context)
	assert.Equal(t, p.Confidence, task.Confidence)
	assert.Equal(t, "note-7", task.SourceNoteID)
	assert.Equal(t, "Standup", task.SourceNoteTitle)
	assert.Equal(t, OriginNote, task.ExtractedFrom)
	assert.Equal(t, created, task.CreatedAt)
}

func TestNewID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewID())
}

func TestOrigin_Valid(t *testing.T) {
	assert.True(t, OriginManual.Valid())
	assert.True(t, OriginNote.Valid())
	assert.False(t, Origin("email").Valid())
}
