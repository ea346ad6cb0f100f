package store

import (
	"context"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/taskd/internal/tasks"
)

// MemoryStore is a mutex-guarded in-process Store. Records are copied on the
// way in and out so callers cannot mutate stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	tasks   map[string]tasks.Task
	pending map[string]tasks.PendingTask
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:   make(map[string]tasks.Task),
		pending: make(map[string]tasks.PendingTask),
	}
}

func (s *MemoryStore) CreateTask(ctx context.Context, t *tasks.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = *t
	return nil
}

func (s *MemoryStore) ListTasks(ctx context.Context) ([]*tasks.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*tasks.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CreatePendingTask(ctx context.Context, p *tasks.PendingTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPendingTask(ctx context.Context, id string) (*tasks.PendingTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) DeletePendingTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return ErrNotFound
	}
	delete(s.pending, id)
	return nil
}

func (s *MemoryStore) ListPendingTasks(ctx context.Context) ([]*tasks.PendingTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*tasks.PendingTask, 0, len(s.pending))
	for _, p := range s.pending {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
