// Package events publishes task lifecycle events.
//
// Events are notifications only. They are published after the state they
// describe has been persisted, and a failed publish never undoes it.
package events

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/tasks"
)

// Event subjects, relative to the configured prefix.
const (
	SubjectTaskCreated         = "task.created"
	SubjectPendingCreated      = "pending.created"
	SubjectPendingApproved     = "pending.approved"
	SubjectPendingRejected     = "pending.rejected"
	SubjectExtractionCompleted = "extraction.completed"
)

// Publisher receives task lifecycle notifications.
type Publisher interface {
	TaskCreated(ctx context.Context, t *tasks.Task) error
	PendingCreated(ctx context.Context, p *tasks.PendingTask) error
	PendingApproved(ctx context.Context, p *tasks.PendingTask, t *tasks.Task) error
	PendingRejected(ctx context.Context, p *tasks.PendingTask) error
	ExtractionCompleted(ctx context.Context, s ExtractionSummary) error
	Close() error
}

// ExtractionSummary describes one finished extraction run.
type ExtractionSummary struct {
	ID         string       `json:"id"`
	Origin     tasks.Origin `json:"origin"`
	NoteID     string       `json:"note_id,omitempty"`
	Attempts   int          `json:"attempts"`
	Candidates int          `json:"candidates"`
	Created    int          `json:"created"`
	Queued     int          `json:"queued"`
	Discarded  int          `json:"discarded"`
	Redactions int          `json:"redactions"`
	Degraded   bool         `json:"degraded,omitempty"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	Type       string             `json:"type"`
	OccurredAt time.Time          `json:"occurred_at"`
	Task       *tasks.Task        `json:"task,omitempty"`
	Pending    *tasks.PendingTask `json:"pending,omitempty"`
	Extraction *ExtractionSummary `json:"extraction,omitempty"`
}

// NopPublisher discards every event.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) TaskCreated(context.Context, *tasks.Task) error { return nil }
func (NopPublisher) PendingCreated(context.Context, *tasks.PendingTask) error { return nil }
func (NopPublisher) PendingApproved(context.Context, *tasks.PendingTask, *tasks.Task) error { return nil }
func (NopPublisher) PendingRejected(context.Context, *tasks.PendingTask) error { return nil }
func (NopPublisher) ExtractionCompleted(context.Context, ExtractionSummary) error { return nil }
func (NopPublisher) Close() error { return nil }
