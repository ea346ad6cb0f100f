package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/events"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/names"
	"github.com/fyrsmithlabs/taskd/internal/normalize"
	"github.com/fyrsmithlabs/taskd/internal/notes"
	"github.com/fyrsmithlabs/taskd/internal/prompt"
	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/fyrsmithlabs/taskd/internal/secrets"
	"github.com/fyrsmithlabs/taskd/internal/tasks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds extraction settings.
type Config struct {
	SystemPrompt   string
	NameVariants   []string
	MaxInputLength int // runes
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration // per attempt
	MaxRetries     int           // total attempts
	Backoff        time.Duration // delay unit; attempt n waits n*Backoff
}

// ConfigFromApp builds a Config from the file/env sections.
func ConfigFromApp(c config.ExtractionConfig, variants []string) *Config {
	return &Config{
		SystemPrompt:   c.SystemPrompt,
		NameVariants:   append([]string(nil), variants...),
		MaxInputLength: c.MaxInputLength,
		MaxTokens:      c.MaxTokens,
		Temperature:    c.Temperature,
		Timeout:        c.Timeout.Duration(),
		MaxRetries:     c.MaxRetries,
		Backoff:        c.Backoff.Duration(),
	}
}

func (c *Config) applyDefaults() {
	if c.SystemPrompt == "" {
		c.SystemPrompt = prompt.DefaultSystemTemplate
	}
	if c.MaxInputLength <= 0 {
		c.MaxInputLength = 20000
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
}

// TaskCreator persists accepted tasks.
type TaskCreator interface {
	CreateTask(ctx context.Context, t *tasks.Task) error
}

// PendingQueue accepts candidates that need review.
type PendingQueue interface {
	Enqueue(ctx context.Context, p *tasks.PendingTask) error
}

// Request is one extraction call. Zero Options fields take Config values.
type Request struct {
	SourceText           string           `json:"source_text"`
	SystemPromptTemplate string           `json:"system_prompt,omitempty"`
	Options              provider.Options `json:"-"`
}

// Source records where applied tasks came from.
type Source struct {
	Origin    tasks.Origin `json:"origin"`
	NoteID    string       `json:"note_id,omitempty"`
	NoteTitle string       `json:"note_title,omitempty"`
}

// Result describes one extraction. Created+Queued+Discarded always equals
// len(Candidates).
type Result struct {
	ID          string            `json:"id"`
	Outcome     normalize.Outcome `json:"outcome"`
	Candidates  []Candidate       `json:"candidates"`
	Created     int               `json:"created"`
	Queued      int               `json:"queued"`
	Discarded   int               `json:"discarded"`
	Attempts    int               `json:"attempts"`
	RetryDelays []time.Duration   `json:"retry_delays,omitempty"`
	Redactions  int               `json:"redactions"`
	Degraded    bool              `json:"degraded,omitempty"`

	// Set by Apply.
	Tasks   []*tasks.Task        `json:"tasks,omitempty"`
	Pending []*tasks.PendingTask `json:"pending,omitempty"`
}

// Retries returns how many attempts were retried.
func (r *Result) Retries() int { return len(r.RetryDelays) }

func (r *Result) recount() {
	r.Created, r.Queued, r.Discarded = count(r.Candidates)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScrubber redacts secrets from source text before it is sent.
func WithScrubber(s secrets.Scrubber) Option {
	return func(o *Orchestrator) { o.scrubber = s }
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithTracer sets the tracer for extraction spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithMeter sets the meter for extraction counters.
func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) { o.meter = m }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

// Orchestrator runs extractions and applies their results.
type Orchestrator struct {
	cfg     Config
	creator TaskCreator
	queue   PendingQueue
	logger  *logging.Logger

	scrubber secrets.Scrubber
	events   events.Publisher
	tracer   trace.Tracer
	meter    metric.Meter
	metrics  *Metrics
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	mu       sync.Mutex
	state    State
	client   provider.Client
	variants names.VariantSet
}

// New creates an Orchestrator.
func New(cfg *Config, client provider.Client, creator TaskCreator, queue PendingQueue, logger *logging.Logger, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("provider client is required")
	}
	if creator == nil || queue == nil {
		return nil, errors.New("task creator and pending queue are required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	o := &Orchestrator{
		cfg:      *cfg,
		creator:  creator,
		queue:    queue,
		logger:   logger.Named("extraction"),
		scrubber: &secrets.NoopScrubber{},
		events:   events.NopPublisher{},
		sleep:    sleepContext,
		now:      time.Now,
		client:   client,
		variants: names.NewVariantSet(cfg.NameVariants...),
	}
	o.cfg.applyDefaults()
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}

	m, err := NewMetrics(o.meter)
	if err != nil {
		o.logger.Warn(context.Background(), "extraction metrics disabled", zap.Error(err))
	}
	o.metrics = m

	return o, nil
}

// SetClient swaps the provider client. Runs already in flight keep the
// client they started with.
func (o *Orchestrator) SetClient(c provider.Client) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = c
}

// Reconfigure swaps the provider client and the user's name variants.
func (o *Orchestrator) Reconfigure(c provider.Client, variants []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.client = c
	o.variants = names.NewVariantSet(variants...)
}

// Client returns the current provider client.
func (o *Orchestrator) Client() provider.Client {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.client
}

func (o *Orchestrator) snapshot() (provider.Client, names.VariantSet) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.client, o.variants
}

// Extract runs the model over req.SourceText and triages the candidates
// without persisting anything.
func (o *Orchestrator) Extract(ctx context.Context, req Request) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "extraction.Extract")
	defer span.End()

	res, outcome, err := o.extract(ctx, req)
	o.metrics.run(ctx, outcome)
	span.SetAttributes(attribute.String("extraction.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("extraction.attempts", res.Attempts),
		attribute.Int("extraction.candidates", len(res.Candidates)),
		attribute.Int("extraction.created", res.Created),
		attribute.Int("extraction.queued", res.Queued),
		attribute.Int("extraction.discarded", res.Discarded),
	)
	return res, nil
}

func (o *Orchestrator) extract(ctx context.Context, req Request) (*Result, string, error) {
	if err := o.validate(req.SourceText); err != nil {
		return nil, "invalid", err
	}
	if err := o.transition(StateIdle, StateRequesting); err != nil {
		return nil, "busy", err
	}
	defer func() {
		if err := o.transition(o.State(), StateIdle); err != nil {
			o.logger.Error(ctx, "failed to release extractor", zap.Error(err))
		}
	}()

	client, variants := o.snapshot()
	res := &Result{ID: tasks.NewID()}
	ctx = logging.WithExtractionID(ctx, res.ID)

	scrubbed := o.scrubber.Scrub(req.SourceText)
	res.Redactions = scrubbed.Count()
	if res.Redactions > 0 {
		o.logger.Info(ctx, "redacted secrets from source text", zap.Int("redactions", res.Redactions))
	}

	template := req.SystemPromptTemplate
	if template == "" {
		template = o.cfg.SystemPrompt
	}
	p := provider.Prompt{
		System: prompt.Build(template, variants.Canonical(), variants),
		User:   scrubbed.Scrubbed,
	}

	text, err := o.send(ctx, client, p, o.options(req.Options), res)
	if err != nil {
		o.logger.Warn(ctx, "extraction failed",
			zap.Int("attempts", res.Attempts),
			zap.Error(err))
		return nil, failureOutcome(err), err
	}

	norm := normalize.Normalize(text)
	res.Outcome = norm.Outcome
	res.Candidates = make([]Candidate, 0, len(norm.Tasks))
	for _, c := range norm.Tasks {
		tc := Triage(c, variants)
		res.Candidates = append(res.Candidates, tc)
		o.metrics.candidate(ctx, tc.Decision)
	}
	res.recount()

	o.logger.Info(ctx, "extraction finished",
		zap.Stringer("outcome", res.Outcome),
		zap.Int("attempts", res.Attempts),
		zap.Int("created", res.Created),
		zap.Int("queued", res.Queued),
		zap.Int("discarded", res.Discarded))

	if res.Outcome == normalize.Empty {
		return res, "empty", nil
	}
	return res, "success", nil
}

// send drives the attempt loop. res.Attempts and res.RetryDelays are
// updated as it goes.
func (o *Orchestrator) send(ctx context.Context, client provider.Client, p provider.Prompt, opts provider.Options, res *Result) (string, error) {
	for {
		res.Attempts++
		text, degraded, err := o.attempt(ctx, client, p, opts)
		if err == nil {
			res.Degraded = degraded
			return text, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !provider.Retryable(err) {
			return "", err
		}
		if res.Attempts >= opts.MaxRetries {
			return "", &ExhaustedError{Attempts: res.Attempts, Last: err}
		}

		delay := o.cfg.Backoff * time.Duration(res.Attempts)
		res.RetryDelays = append(res.RetryDelays, delay)
		o.metrics.retry(ctx)
		o.logger.Warn(ctx, "provider attempt failed, retrying",
			zap.Int("attempt", res.Attempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := o.transition(StateRequesting, StateRetrying); err != nil {
			return "", err
		}
		if err := o.sleep(ctx, delay); err != nil {
			return "", err
		}
		if err := o.transition(StateRetrying, StateRequesting); err != nil {
			return "", err
		}
	}
}

func (o *Orchestrator) attempt(ctx context.Context, client provider.Client, p provider.Prompt, opts provider.Options) (string, bool, error) {
	reply, err := client.Send(ctx, p, opts)
	if err != nil {
		return "", false, err
	}
	text, err := client.Parse(reply, opts)
	if err != nil {
		return "", false, err
	}
	return text, reply.Degraded, nil
}

func (o *Orchestrator) validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "source_text", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(text); n > o.cfg.MaxInputLength {
		return &ValidationError{
			Field:  "source_text",
			Reason: fmt.Sprintf("%d characters exceeds the limit of %d", n, o.cfg.MaxInputLength),
		}
	}
	return nil
}

func (o *Orchestrator) options(in provider.Options) provider.Options {
	out := in
	if out.MaxTokens <= 0 {
		out.MaxTokens = o.cfg.MaxTokens
	}
	if out.Temperature <= 0 {
		out.Temperature = o.cfg.Temperature
	}
	if out.Timeout <= 0 {
		out.Timeout = o.cfg.Timeout
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = o.cfg.MaxRetries
	}
	return out
}

func failureOutcome(err error) string {
	var ee *ExhaustedError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &ee):
		return "exhausted"
	default:
		return "failed"
	}
}

// Apply persists the decisions in res. Candidates are re-checked against
// the triage rules, so a result edited by the user still lands in exactly
// one bucket each. The returned Result carries the created tasks and
// pending entries; on a persistence error it holds what was saved so far.
func (o *Orchestrator) Apply(ctx context.Context, res *Result, src Source) (*Result, error) {
	if res == nil {
		return nil, &ValidationError{Field: "result", Reason: "must not be nil"}
	}
	if !src.Origin.Valid() {
		return nil, &ValidationError{Field: "origin", Reason: fmt.Sprintf("unknown origin %q", src.Origin)}
	}
	if src.NoteID != "" {
		ctx = logging.WithNoteID(ctx, src.NoteID)
	}
	if res.ID != "" {
		ctx = logging.WithExtractionID(ctx, res.ID)
	}

	out := *res
	out.Candidates = make([]Candidate, len(res.Candidates))
	out.Tasks, out.Pending = nil, nil
	now := o.now().UTC()

	for i, c := range res.Candidates {
		c.Title = strings.TrimSpace(c.Title)
		c.Confidence = round4(normalize.Clamp(c.Confidence))
		c.Decision, c.Reason = decide(c)
		out.Candidates[i] = c

		switch c.Decision {
		case DecisionCreate:
			t := &tasks.Task{
				ID:              tasks.NewID(),
				Title:           c.Title,
				Description:     c.Description,
				Context:         c.Context,
				Confidence:      c.Confidence,
				SourceNoteID:    src.NoteID,
				SourceNoteTitle: src.NoteTitle,
				ExtractedFrom:   src.Origin,
				CreatedAt:       now,
			}
			if err := o.creator.CreateTask(ctx, t); err != nil {
				out.recount()
				return &out, fmt.Errorf("create task %q: %w", c.Title, err)
			}
			out.Tasks = append(out.Tasks, t)
			if err := o.events.TaskCreated(ctx, t); err != nil {
				o.logger.Warn(ctx, "failed to publish task event", zap.Error(err))
			}
		case DecisionQueue:
			p := &tasks.PendingTask{
				ID:              tasks.NewID(),
				Title:           c.Title,
				Description:     c.Description,
				Context:         c.Context,
				Confidence:      c.Confidence,
				SourceNoteID:    src.NoteID,
				SourceNoteTitle: src.NoteTitle,
				ExtractedFrom:   src.Origin,
				CreatedAt:       now,
			}
			if err := o.queue.Enqueue(ctx, p); err != nil {
				out.recount()
				return &out, fmt.Errorf("queue task %q: %w", c.Title, err)
			}
			out.Pending = append(out.Pending, p)
		}
	}
	out.recount()

	summary := events.ExtractionSummary{
		ID:         out.ID,
		Origin:     src.Origin,
		NoteID:     src.NoteID,
		Attempts:   out.Attempts,
		Candidates: len(out.Candidates),
		Created:    out.Created,
		Queued:     out.Queued,
		Discarded:  out.Discarded,
		Redactions: out.Redactions,
		Degraded:   out.Degraded,
		FinishedAt: now,
	}
	if err := o.events.ExtractionCompleted(ctx, summary); err != nil {
		o.logger.Warn(ctx, "failed to publish extraction event", zap.Error(err))
	}

	o.logger.Info(ctx, "extraction applied",
		zap.String("origin", string(src.Origin)),
		zap.Int("created", out.Created),
		zap.Int("queued", out.Queued))
	return &out, nil
}

// ProcessNote extracts and applies tasks from a saved note.
func (o *Orchestrator) ProcessNote(ctx context.Context, n notes.Note) (*Result, error) {
	ctx = logging.WithNoteID(ctx, n.ID)

	text := n.Body
	if title := strings.TrimSpace(n.Title); title != "" {
		text = title + "\n\n" + n.Body
	}
	res, err := o.Extract(ctx, Request{SourceText: text})
	if err != nil {
		return nil, err
	}
	return o.Apply(ctx, res, Source{Origin: tasks.OriginNote, NoteID: n.ID, NoteTitle: n.Title})
}

// NoteProcessor adapts ProcessNote for notes.Sweeper. A busy extractor
// defers the sweep; a note with nothing to extract counts as processed.
func (o *Orchestrator) NoteProcessor() notes.ProcessFunc {
	return func(ctx context.Context, n notes.Note) error {
		_, err := o.ProcessNote(ctx, n)
		var ve *ValidationError
		switch {
		case errors.Is(err, ErrBusy):
			return fmt.Errorf("%w: %w", notes.ErrDeferred, err)
		case errors.As(err, &ve):
			o.logger.Debug(ctx, "note skipped", zap.String("reason", ve.Reason))
			return nil
		default:
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
