// Package store persists tasks and pending tasks.
//
// Store is the contract the extraction orchestrator and approval queue use.
// MemoryStore suits tests and ephemeral runs; SQLiteStore keeps records
// across restarts. Neither offers transactions across calls: the last write
// for an ID wins.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/tasks"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the task and pending-task record store.
type Store interface {
	CreateTask(ctx context.Context, t *tasks.Task) error
	ListTasks(ctx context.Context) ([]*tasks.Task, error)

	CreatePendingTask(ctx context.Context, p *tasks.PendingTask) error
	GetPendingTask(ctx context.Context, id string) (*tasks.PendingTask, error)
	DeletePendingTask(ctx context.Context, id string) error
	ListPendingTasks(ctx context.Context) ([]*tasks.PendingTask, error)

	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
