package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	KindExpire = "expire"
	KindPurge  = "purge"
)

// Sweeps are the maintenance operations of the call lifecycle.
type Sweeps interface {
	ExpireStale(ctx context.Context, timeout time.Duration) (int, error)
	PurgeEnded(ctx context.Context, retention time.Duration) (int64, error)
}

// Recorder persists a sweep run (audit trail).
type Recorder interface {
	LogSweep(ctx context.Context, kind string, affected int64) error
}

// Counter counts affected calls (metrics).
type Counter interface {
	SweepCompleted(kind string, affected int64)
}

type Options struct {
	RingTimeout       time.Duration
	Retention         time.Duration
	SweepSchedule     string
	RetentionSchedule string
	// JobTimeout bounds a single run. Defaults to 30s.
	JobTimeout time.Duration

	Recorder Recorder
	Counter  Counter
	Logger   *slog.Logger
}

// Sweeper runs ExpireStale and PurgeEnded on cron schedules. Runs of the
// same job never overlap.
type Sweeper struct {
	sweeps Sweeps
	opts   Options
	log    *slog.Logger
	cron   *cron.Cron
}

func New(sweeps Sweeps, opts Options) *Sweeper {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	if opts.SweepSchedule == "" {
		opts.SweepSchedule = "@every 1m"
	}
	if opts.RetentionSchedule == "" {
		opts.RetentionSchedule = "@daily"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "sweeper")

	cl := cronLogger{log: log}
	return &Sweeper{
		sweeps: sweeps,
		opts:   opts,
		log:    log,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start registers both jobs and starts the scheduler. Jobs derive their
// context from ctx.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.opts.SweepSchedule, func() { s.runJob(ctx, KindExpire) }); err != nil {
		return fmt.Errorf("schedule expire sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.opts.RetentionSchedule, func() { s.runJob(ctx, KindPurge) }); err != nil {
		return fmt.Errorf("schedule purge sweep: %w", err)
	}
	s.cron.Start()
	s.log.Info("sweeper started", "expire_schedule", s.opts.SweepSchedule, "purge_schedule", s.opts.RetentionSchedule)
	return nil
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("sweeper stop timed out")
	}
}

func (s *Sweeper) runJob(parent context.Context, kind string) {
	ctx, cancel := context.WithTimeout(parent, s.opts.JobTimeout)
	defer cancel()

	var err error
	switch kind {
	case KindExpire:
		_, err = s.Expire(ctx)
	case KindPurge:
		_, err = s.Purge(ctx)
	}
	if err != nil {
		s.log.Error("sweep failed", "kind", kind, "err", err)
	}
}

// Expire runs one expire_stale pass now.
func (s *Sweeper) Expire(ctx context.Context) (int64, error) {
	n, err := s.sweeps.ExpireStale(ctx, s.opts.RingTimeout)
	if err != nil {
		return 0, err
	}
	s.completed(ctx, KindExpire, int64(n))
	return int64(n), nil
}

// Purge runs one retention pass now.
func (s *Sweeper) Purge(ctx context.Context) (int64, error) {
	n, err := s.sweeps.PurgeEnded(ctx, s.opts.Retention)
	if err != nil {
		return 0, err
	}
	s.completed(ctx, KindPurge, n)
	return n, nil
}

func (s *Sweeper) completed(ctx context.Context, kind string, affected int64) {
	if s.opts.Counter != nil {
		s.opts.Counter.SweepCompleted(kind, affected)
	}
	if affected == 0 {
		s.log.Debug("sweep completed", "kind", kind, "affected", affected)
		return
	}
	s.log.Info("sweep completed", "kind", kind, "affected", affected)
	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.LogSweep(ctx, kind, affected); err != nil {
			s.log.Warn("sweep audit failed", "kind", kind, "err", err)
		}
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
