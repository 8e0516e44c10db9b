// Package scheduler runs billing work in the background: the periodic
// dispatch of due orders and the workers that drain the task queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is a periodic job. now is the scheduled fire time in UTC.
type JobFunc func(ctx context.Context, now time.Time) error

// BillingCronConfig holds configuration for BillingCron
type BillingCronConfig struct {
	// Schedule is a standard five field cron expression or a descriptor such as "@every 5m"
	Schedule string
	// Timeout bounds a single run
	Timeout time.Duration
}

// DefaultBillingCronConfig returns the default configuration: every five minutes
func DefaultBillingCronConfig() BillingCronConfig {
	return BillingCronConfig{
		Schedule: "*/5 * * * *",
		Timeout:  4 * time.Minute,
	}
}

// BillingCron fires a job on a cron schedule. Runs never overlap: a tick that
// arrives while the previous run is still going is skipped.
type BillingCron struct {
	config BillingCronConfig
	job    JobFunc
	logger *zap.Logger
	now    func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
	active  atomic.Bool

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewBillingCron creates a BillingCron. The schedule is validated here so a
// bad expression fails at startup.
func NewBillingCron(config BillingCronConfig, job JobFunc, logger *zap.Logger) (*BillingCron, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: job is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Schedule == "" {
		config.Schedule = DefaultBillingCronConfig().Schedule
	}

	b := &BillingCron{
		config: config,
		job:    job,
		logger: logger,
		now:    time.Now,
	}
	b.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(zapCronLogger{logger.Sugar()}),
	)
	id, err := b.cron.AddFunc(config.Schedule, b.tick)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, config.Schedule, err)
	}
	b.entryID = id
	return b, nil
}

// Start starts the cron loop. Runs use ctx, so canceling it aborts a run in progress.
func (b *BillingCron) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.running = true
	b.cron.Start()

	b.logger.Info("Billing cron started",
		zap.String("schedule", b.config.Schedule),
		zap.Time("next_run", b.cron.Entry(b.entryID).Next))
	return nil
}

// Stop stops scheduling new runs and waits for the current run to finish
// or for ctx to expire.
func (b *BillingCron) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.mu.Unlock()

	done := b.cron.Stop()
	select {
	case <-done.Done():
		b.cancel()
		b.logger.Info("Billing cron stopped")
		return nil
	case <-ctx.Done():
		b.cancel()
		b.logger.Warn("Billing cron stop timed out, run canceled")
		return ctx.Err()
	}
}

// RunNow runs the job immediately on the caller's goroutine. It returns
// ErrAlreadyRunning if a run is in progress.
func (b *BillingCron) RunNow(ctx context.Context) error {
	return b.run(ctx, b.now().UTC())
}

func (b *BillingCron) tick() {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil {
		return
	}
	if err := b.run(ctx, b.now().UTC()); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		b.logger.Error("Billing cron run failed", zap.Error(err))
	}
}

func (b *BillingCron) run(ctx context.Context, now time.Time) error {
	if !b.active.CompareAndSwap(false, true) {
		b.logger.Warn("Skipping billing cron run, previous run still in progress")
		return ErrAlreadyRunning
	}
	defer b.active.Store(false)

	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	started := time.Now()
	err := b.job(ctx, now)
	b.logger.Debug("Billing cron run finished",
		zap.Time("scheduled_at", now),
		zap.Duration("duration", time.Since(started)),
		zap.Error(err))
	return err
}

// zapCronLogger adapts zap to cron.Logger
type zapCronLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
