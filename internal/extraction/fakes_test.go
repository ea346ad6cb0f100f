package extraction

import (
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/events"
	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/fyrsmithlabs/taskd/internal/tasks"
)

// step is one scripted provider reply.
type step struct {
	text     string
	err      error
	status   int
	degraded bool
}

// fakeClient replays steps in order, repeating the last one.
type fakeClient struct {
	mu      sync.Mutex
	steps   []step
	calls   int
	prompts []provider.Prompt
	opts    []provider.Options
	block   chan struct{} // when set, Send waits on it
	entered chan struct{}
}

func newFakeClient(steps ...step) *fakeClient {
	return &fakeClient{steps: steps}
}

func (f *fakeClient) Kind() provider.Kind { return provider.KindLocal }

func (f *fakeClient) Send(ctx context.Context, p provider.Prompt, opts provider.Options) (*provider.Reply, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, p)
	f.opts = append(f.opts, opts)
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	s := f.steps[i]
	if s.err != nil {
		return nil, s.err
	}
	status := s.status
	if status == 0 {
		status = 200
	}
	return &provider.Reply{StatusCode: status, Body: []byte(s.text), Degraded: s.degraded}, nil
}

func (f *fakeClient) Parse(r *provider.Reply, _ provider.Options) (string, error) {
	if r.StatusCode >= 300 {
		return "", &provider.ResponseError{StatusCode: r.StatusCode, Message: string(r.Body)}
	}
	return string(r.Body), nil
}

func (f *fakeClient) TestConnection(context.Context) error { return nil }

func (f *fakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQueue struct {
	mu      sync.Mutex
	pending []*tasks.PendingTask
	err     error
}

func (q *fakeQueue) Enqueue(_ context.Context, p *tasks.PendingTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.pending = append(q.pending, p)
	return nil
}

type recordingPublisher struct {
	events.NopPublisher
	mu          sync.Mutex
	created     []*tasks.Task
	extractions []events.ExtractionSummary
}

func (p *recordingPublisher) TaskCreated(_ context.Context, t *tasks.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, t)
	return nil
}

func (p *recordingPublisher) ExtractionCompleted(_ context.Context, s events.ExtractionSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extractions = append(p.extractions, s)
	return nil
}

// sleepRecorder records backoff waits without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return s.err
}
