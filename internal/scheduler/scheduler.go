// Package scheduler triggers the daily run on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"token-screener/internal/logging"
)

// Fields is the accepted schedule syntax: optional seconds, descriptors
// such as @daily, and a CRON_TZ= prefix.
const Fields = cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// Parse validates a schedule expression.
func Parse(spec string) (cron.Schedule, error) {
	return cron.NewParser(Fields).Parse(spec)
}

// Job is the scheduled work.
type Job func(ctx context.Context) error

// Options configures a Scheduler.
type Options struct {
	Schedule    string
	Location    *time.Location // Default: UTC
	StopTimeout time.Duration  // Default: 5s
	Logger      *zap.Logger
}

// Scheduler runs one job on a cron schedule. A tick that fires while the
// previous run is still executing is skipped.
type Scheduler struct {
	cron        *cron.Cron
	entry       cron.EntryID
	job         Job
	runner      cron.Job // job wrapped with recover and skip-if-running
	stopTimeout time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler for job.
func New(job Job, opts Options) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	logger := logging.OrNop(opts.Logger).Named("scheduler")

	c := cron.New(
		cron.WithParser(cron.NewParser(Fields)),
		cron.WithLocation(opts.Location),
		cron.WithLogger(cronLogger{logger}),
	)

	s := &Scheduler{cron: c, job: job, stopTimeout: opts.StopTimeout, logger: logger}
	s.runner = cron.NewChain(
		cron.Recover(cronLogger{logger}),
		cron.SkipIfStillRunning(cronLogger{logger}),
	).Then(cron.FuncJob(s.tick))

	id, err := c.AddJob(opts.Schedule, s.runner)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", opts.Schedule, err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing. Jobs receive a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Time("next", s.Next()))
}

// Stop halts the schedule, cancels a running job and waits for it up to the
// stop timeout.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
	case <-time.After(s.stopTimeout):
		s.logger.Warn("stop timeout waiting for running job")
	}
	s.logger.Info("scheduler stopped")
}

// Next returns the next activation time, zero if not started.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.Warn("scheduled run failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Info("scheduled run finished", zap.Duration("elapsed", time.Since(start)))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
