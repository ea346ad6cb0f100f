package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// ErrDeferred tells the sweeper to leave a note for the next sweep and stop
// the current one, typically because the extractor is busy.
var ErrDeferred = errors.New("note processing deferred")

// ProcessFunc runs extraction for one note.
type ProcessFunc func(ctx context.Context, n Note) error

// SweepReport summarizes one sweep.
type SweepReport struct {
	Processed int
	Deferred  int
	Failed    int
}

// Sweeper periodically processes unprocessed notes. A note is marked
// processed only after its ProcessFunc succeeds.
type Sweeper struct {
	source   Source
	process  ProcessFunc
	interval time.Duration
	logger   *logging.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
}

// NewSweeper creates a stopped sweeper.
func NewSweeper(source Source, process ProcessFunc, interval time.Duration, logger *logging.Logger) (*Sweeper, error) {
	if source == nil || process == nil {
		return nil, errors.New("sweeper requires a source and a process func")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sweeper{
		source:   source,
		process:  process,
		interval: interval,
		logger:   logger.Named("notes"),
	}, nil
}

// Start schedules sweeps every interval until Stop or ctx is done. A sweep
// still running when the next is due is not overlapped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return errors.New("sweeper already started")
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			s.SweepOnce(runCtx)
		}),
		gocron.WithName("note-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to create sweep job: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler
	s.cancel = cancel
	s.logger.Info(ctx, "note sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels any running sweep and shuts the scheduler down.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return nil
	}
	s.cancel()
	err := s.scheduler.Shutdown()
	s.scheduler = nil
	return err
}

// SweepOnce processes every unprocessed note once.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepReport {
	var report SweepReport

	pending, err := s.source.ListUnprocessed(ctx)
	if err != nil {
		s.logger.Warn(ctx, "failed to list unprocessed notes", zap.Error(err))
		return report
	}

	for i, n := range pending {
		if ctx.Err() != nil {
			break
		}
		noteCtx := logging.WithNoteID(ctx, n.ID)

		err := s.process(noteCtx, n)
		switch {
		case errors.Is(err, ErrDeferred):
			report.Deferred = len(pending) - i
			s.logger.Debug(noteCtx, "note sweep deferred", zap.Int("remaining", report.Deferred))
			return report
		case err != nil:
			report.Failed++
			s.logger.Warn(noteCtx, "note processing failed", zap.Error(err))
			continue
		}

		if err := s.source.MarkProcessed(ctx, n.ID); err != nil {
			report.Failed++
			s.logger.Warn(noteCtx, "failed to mark note processed", zap.Error(err))
			continue
		}
		report.Processed++
	}

	if report.Processed > 0 || report.Failed > 0 {
		s.logger.Info(ctx, "note sweep finished",
			zap.Int("processed", report.Processed),
			zap.Int("failed", report.Failed))
	}
	return report
}
