// Package notes feeds saved notes into automatic task extraction.
package notes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown note ids.
var ErrNotFound = errors.New("note not found")

var errNoID = errors.New("note id is required")

// Note is a saved free-text note.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Source lists notes that have not been run through extraction yet.
type Source interface {
	ListUnprocessed(ctx context.Context) ([]Note, error)
	MarkProcessed(ctx context.Context, id string) error
}

// Store is a Source that also accepts new and edited notes.
type Store interface {
	Source
	Put(ctx context.Context, n Note) error
}

// MemorySource is an in-process Source.
type MemorySource struct {
	mu        sync.Mutex
	notes     map[string]Note
	processed map[string]bool
}

var _ Store = (*MemorySource)(nil)

// NewMemorySource returns a source holding notes, all unprocessed.
func NewMemorySource(notes ...Note) *MemorySource {
	s := &MemorySource{
		notes:     make(map[string]Note, len(notes)),
		processed: make(map[string]bool),
	}
	for _, n := range notes {
		s.notes[n.ID] = n
	}
	return s
}

// Put adds or replaces a note and marks it unprocessed.
func (s *MemorySource) Put(ctx context.Context, n Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.ID == "" {
		return errNoID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.ID] = n
	delete(s.processed, n.ID)
	return nil
}

// ListUnprocessed returns unprocessed notes, oldest update first.
func (s *MemorySource) ListUnprocessed(ctx context.Context) ([]Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Note, 0, len(s.notes))
	for id, n := range s.notes {
		if !s.processed[id] {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemorySource) MarkProcessed(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.processed[id] = true
	return nil
}
