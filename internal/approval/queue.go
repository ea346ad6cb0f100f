// Package approval implements the review queue for low-confidence tasks.
//
// The store is authoritative. The Queue keeps an in-memory mirror for
// listing and lookups and reloads it from the store whenever a lookup
// misses, so entries written by another process become visible. Every
// operation holds the queue mutex and follows the same order: build the
// new records, persist them, update the mirror, then notify.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/events"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/store"
	"github.com/fyrsmithlabs/taskd/internal/tasks"
	cache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrNotFound is returned for ids that are not pending.
var ErrNotFound = errors.New("pending task not found")

const (
	actionApprove = "approve"
	actionReject  = "reject"
)

// Config configures a Queue.
type Config struct {
	// CacheTTL expires mirror entries; zero keeps them until resolved.
	CacheTTL time.Duration
}

// BulkResult reports a bulk approve or reject. Every requested id lands in
// exactly one of Resolved, NotFound and Failed.
type BulkResult struct {
	Resolved []string         `json:"resolved"`
	Tasks    []*tasks.Task    `json:"tasks,omitempty"`
	NotFound []string         `json:"not_found,omitempty"`
	Failed   map[string]error `json:"-"`
}

// FailedMessages renders Failed for serialization.
func (r BulkResult) FailedMessages() map[string]string {
	if len(r.Failed) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Failed))
	for id, err := range r.Failed {
		out[id] = err.Error()
	}
	return out
}

// Option configures a Queue.
type Option func(*Queue)

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(q *Queue) { q.events = p }
}

// WithRegisterer registers the queue metrics on reg instead of the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(q *Queue) { q.registerer = reg }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(q *Queue) { q.now = fn }
}

// Queue holds pending tasks until they are approved or rejected.
type Queue struct {
	store      store.Store
	logger     *logging.Logger
	events     events.Publisher
	registerer prometheus.Registerer
	metrics    *Metrics
	now        func() time.Time
	ttl        time.Duration

	mu     sync.Mutex
	cache  *cache.Cache
	loaded bool
	count  int // pending entries in the store as of the last refresh or write
}

// New creates a Queue over st.
func New(st store.Store, cfg Config, logger *logging.Logger, opts ...Option) (*Queue, error) {
	if st == nil {
		return nil, errors.New("approval queue requires a store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	q := &Queue{
		store:      st,
		logger:     logger.Named("approval"),
		events:     events.NopPublisher{},
		registerer: prometheus.DefaultRegisterer,
		now:        time.Now,
		ttl:        ttl,
		cache:      cache.New(ttl, cleanupInterval(ttl)),
	}
	for _, opt := range opts {
		opt(q)
	}

	m, err := NewMetrics(q.registerer)
	if err != nil {
		return nil, fmt.Errorf("register approval metrics: %w", err)
	}
	q.metrics = m
	return q, nil
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl == cache.NoExpiration {
		return 0
	}
	return ttl
}

// Enqueue persists p and adds it to the queue.
func (q *Queue) Enqueue(ctx context.Context, p *tasks.PendingTask) error {
	if p == nil || p.ID == "" {
		return errors.New("pending task requires an id")
	}
	if p.Title == "" {
		return errors.New("pending task requires a title")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = q.now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.CreatePendingTask(ctx, p); err != nil {
		return fmt.Errorf("persist pending task: %w", err)
	}
	if _, found := q.cache.Get(p.ID); !found {
		q.count++
	}
	q.cache.Set(p.ID, *p, q.ttl)
	q.metrics.setPending(q.count)

	if err := q.events.PendingCreated(ctx, p); err != nil {
		q.logger.Warn(ctx, "failed to publish pending event", zap.String("pending_id", p.ID), zap.Error(err))
	}
	q.logger.Debug(ctx, "task queued for approval",
		zap.String("pending_id", p.ID),
		zap.Float64("confidence", p.Confidence))
	return nil
}

// List returns pending tasks, oldest first.
func (q *Queue) List(ctx context.Context) ([]*tasks.PendingTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.cache.Items()
	if !q.loaded || len(items) != q.count {
		if err := q.refresh(ctx); err != nil {
			return nil, err
		}
		items = q.cache.Items()
	}

	out := make([]*tasks.PendingTask, 0, len(items))
	for _, item := range items {
		p := item.Object.(tasks.PendingTask)
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Refresh reloads the mirror from the store.
func (q *Queue) Refresh(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.refresh(ctx)
}

func (q *Queue) refresh(ctx context.Context) error {
	pending, err := q.store.ListPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("load pending tasks: %w", err)
	}
	q.cache.Flush()
	for _, p := range pending {
		q.cache.Set(p.ID, *p, q.ttl)
	}
	q.loaded = true
	q.count = len(pending)
	q.metrics.setPending(q.count)
	return nil
}

// lookup finds id in the mirror, refreshing once on a miss.
func (q *Queue) lookup(ctx context.Context, id string) (*tasks.PendingTask, error) {
	if v, ok := q.cache.Get(id); ok {
		p := v.(tasks.PendingTask)
		return &p, nil
	}
	if err := q.refresh(ctx); err != nil {
		return nil, err
	}
	if v, ok := q.cache.Get(id); ok {
		p := v.(tasks.PendingTask)
		return &p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Approve turns a pending task into a task and removes it from the queue.
func (q *Queue) Approve(ctx context.Context, id string) (*tasks.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.approve(ctx, id)
}

func (q *Queue) approve(ctx context.Context, id string) (*tasks.Task, error) {
	p, err := q.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	// Deleting first claims the row, so an id resolved elsewhere fails here
	// before any task exists.
	if err := q.remove(ctx, id); err != nil {
		return nil, err
	}
	t := p.Promote(q.now().UTC())
	if err := q.store.CreateTask(ctx, t); err != nil {
		q.restore(ctx, p)
		return nil, fmt.Errorf("persist approved task: %w", err)
	}
	q.metrics.resolved(actionApprove)

	if err := q.events.PendingApproved(ctx, p, t); err != nil {
		q.logger.Warn(ctx, "failed to publish approval event", zap.String("pending_id", id), zap.Error(err))
	}
	q.logger.Info(ctx, "pending task approved", zap.String("pending_id", id), zap.String("task_id", t.ID))
	return t, nil
}

// Reject removes a pending task without creating a task.
func (q *Queue) Reject(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reject(ctx, id)
}

func (q *Queue) reject(ctx context.Context, id string) error {
	p, err := q.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := q.remove(ctx, id); err != nil {
		return err
	}
	q.metrics.resolved(actionReject)

	if err := q.events.PendingRejected(ctx, p); err != nil {
		q.logger.Warn(ctx, "failed to publish rejection event", zap.String("pending_id", id), zap.Error(err))
	}
	q.logger.Info(ctx, "pending task rejected", zap.String("pending_id", id))
	return nil
}

// remove deletes id from the store and the mirror. A concurrent delete by
// another process is reported as ErrNotFound.
func (q *Queue) remove(ctx context.Context, id string) error {
	if err := q.store.DeletePendingTask(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			q.cache.Delete(id)
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("delete pending task: %w", err)
	}
	q.cache.Delete(id)
	if q.count > 0 {
		q.count--
	}
	q.metrics.setPending(q.count)
	return nil
}

// restore puts back a pending task whose promotion failed.
func (q *Queue) restore(ctx context.Context, p *tasks.PendingTask) {
	if err := q.store.CreatePendingTask(ctx, p); err != nil {
		q.logger.Error(ctx, "failed to restore pending task", zap.String("pending_id", p.ID), zap.Error(err))
		return
	}
	q.cache.Set(p.ID, *p, q.ttl)
	q.count++
	q.metrics.setPending(q.count)
}

// BulkApprove approves each id independently.
func (q *Queue) BulkApprove(ctx context.Context, ids []string) BulkResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res BulkResult
	for _, id := range ids {
		t, err := q.approve(ctx, id)
		if res.record(id, err) {
			res.Tasks = append(res.Tasks, t)
		}
	}
	return res
}

// BulkReject rejects each id independently.
func (q *Queue) BulkReject(ctx context.Context, ids []string) BulkResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res BulkResult
	for _, id := range ids {
		res.record(id, q.reject(ctx, id))
	}
	return res
}

// record files id under the right bucket and reports success.
func (r *BulkResult) record(id string, err error) bool {
	switch {
	case err == nil:
		r.Resolved = append(r.Resolved, id)
		return true
	case errors.Is(err, ErrNotFound):
		r.NotFound = append(r.NotFound, id)
	default:
		if r.Failed == nil {
			r.Failed = make(map[string]error)
		}
		r.Failed[id] = err
	}
	return false
}
