// Package tasks defines the task records produced by extraction and the
// approval queue.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Origin records which flow produced a task.
type Origin string

const (
	// OriginManual is the user-triggered extract action.
	OriginManual Origin = "manual_extract"
	// OriginNote is automatic per-note processing.
	OriginNote Origin = "note_processing"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	return o == OriginManual || o == OriginNote
}

// Task is an accepted action item.
type Task struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Context         string    `json:"context,omitempty"`
	Confidence      float64   `json:"confidence"`
	SourceNoteID    string    `json:"source_note_id,omitempty"`
	SourceNoteTitle string    `json:"source_note_title,omitempty"`
	ExtractedFrom   Origin    `json:"extracted_from"`
	PendingID       string    `json:"pending_id,omitempty"` // set when promoted from the approval queue
	CreatedAt       time.Time `json:"created_at"`
}

// PendingTask is a low-confidence candidate awaiting approval or rejection.
// It is deleted on resolution and never re-enters the queue.
type PendingTask struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Context         string    `json:"context,omitempty"`
	Confidence      float64   `json:"confidence"`
	SourceNoteID    string    `json:"source_note_id,omitempty"`
	SourceNoteTitle string    `json:"source_note_title,omitempty"`
	ExtractedFrom   Origin    `json:"extracted_from"`
	CreatedAt       time.Time `json:"created_at"`
}

// Promote converts an approved pending task into a Task, preserving its
// provenance.
func (p *PendingTask) Promote(now time.Time) *Task {
	return &Task{
		ID:              NewID(),
		Title:           p.Title,
		Description:     p.Description,
		Context:         p.Context,
		Confidence:      p.Confidence,
		SourceNoteID:    p.SourceNoteID,
		SourceNoteTitle: p.SourceNoteTitle,
		ExtractedFrom:   p.ExtractedFrom,
		PendingID:       p.ID,
		CreatedAt:       now,
	}
}

// NewID returns a new random task identifier.
func NewID() string {
	return uuid.New().String()
}
