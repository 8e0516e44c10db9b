package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"go.uber.org/zap"
)

// Task processing defaults
const (
	DefaultLockTTL              = 5 * time.Minute
	DefaultLockRetryDelay       = 30 * time.Second
	DefaultTransientRetryDelay  = time.Minute
	DefaultMaxTransientAttempts = 10
	maxTransientBackoff         = time.Hour
)

// TaskProcessor executes claimed queue tasks and reports their outcome back
// to the queue.
type TaskProcessor struct {
	queue                billing.TaskQueue
	locker               billing.OrderLocker
	dunning              *DunningScheduler
	manager              *RecurringOrderManager
	orders               billing.RecurringOrderRepository
	lockTTL              time.Duration
	lockRetryDelay       time.Duration
	transientRetryDelay  time.Duration
	maxTransientAttempts int
	metrics              Metrics
	logger               *zap.Logger
}

// TaskProcessorConfig contains the dependencies of TaskProcessor
type TaskProcessorConfig struct {
	Queue                billing.TaskQueue
	Locker               billing.OrderLocker
	Dunning              *DunningScheduler
	Manager              *RecurringOrderManager
	Orders               billing.RecurringOrderRepository
	LockTTL              time.Duration
	LockRetryDelay       time.Duration
	TransientRetryDelay  time.Duration
	MaxTransientAttempts int
	Metrics              Metrics
	Logger               *zap.Logger
}

// NewTaskProcessor creates a new TaskProcessor
func NewTaskProcessor(cfg TaskProcessorConfig) *TaskProcessor {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.LockRetryDelay <= 0 {
		cfg.LockRetryDelay = DefaultLockRetryDelay
	}
	if cfg.TransientRetryDelay <= 0 {
		cfg.TransientRetryDelay = DefaultTransientRetryDelay
	}
	if cfg.MaxTransientAttempts <= 0 {
		cfg.MaxTransientAttempts = DefaultMaxTransientAttempts
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &TaskProcessor{
		queue:                cfg.Queue,
		locker:               cfg.Locker,
		dunning:              cfg.Dunning,
		manager:              cfg.Manager,
		orders:               cfg.Orders,
		lockTTL:              cfg.LockTTL,
		lockRetryDelay:       cfg.LockRetryDelay,
		transientRetryDelay:  cfg.TransientRetryDelay,
		maxTransientAttempts: cfg.MaxTransientAttempts,
		metrics:              cfg.Metrics,
		logger:               cfg.Logger,
	}
}

// Process runs a claimed task and either completes it or puts it back on the
// queue. The returned error is only non-nil when the queue itself failed.
func (p *TaskProcessor) Process(ctx context.Context, task *billing.Task, now time.Time) error {
	started := time.Now()
	outcome := "completed"
	defer func() {
		p.metrics.RecordTaskProcessed(ctx, string(task.Type), outcome, time.Since(started))
	}()

	if p.locker != nil {
		release, err := p.locker.Acquire(ctx, task.OrderID, p.lockTTL)
		if errors.Is(err, billing.ErrOrderLocked) {
			outcome = "locked"
			return p.queue.Retry(ctx, task, now.Add(p.lockRetryDelay))
		}
		if err != nil {
			outcome = "transient"
			return p.retryTransient(ctx, task, now, fmt.Errorf("acquire order lock: %w", err))
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("Failed to release order lock",
					zap.String("order_id", task.OrderID.String()),
					zap.Error(err))
			}
		}()
	}

	switch task.Type {
	case billing.TaskTypeCloseOrder:
		result, err := p.dunning.ProcessCloseTask(ctx, task.OrderID, JobMeta{NumRetries: task.NumRetries, Now: now})
		if err != nil {
			outcome = "transient"
			return p.retryTransient(ctx, task, now, err)
		}
		outcome = string(result.Status)
		if result.Status == JobStatusRetry {
			task.NumRetries = result.NumRetries
			task.Attempts = 0
			return p.queue.Retry(ctx, task, result.AvailableAt)
		}
		return p.queue.Complete(ctx, task)

	case billing.TaskTypeRenewOrder:
		order, err := p.orders.FindByID(ctx, task.OrderID)
		if err != nil {
			outcome = "transient"
			return p.retryTransient(ctx, task, now, err)
		}
		if _, err := p.manager.RenewOrder(ctx, order, now); err != nil {
			outcome = "transient"
			return p.retryTransient(ctx, task, now, err)
		}
		return p.queue.Complete(ctx, task)
	}

	outcome = "unknown"
	p.logger.Error("Dropping task of unknown type",
		zap.String("task_id", task.ID.String()),
		zap.String("type", string(task.Type)))
	return p.queue.Complete(ctx, task)
}

// retryTransient redelivers a task after a failure that is not a decline,
// backing off exponentially. The dunning retry count is left unchanged.
func (p *TaskProcessor) retryTransient(ctx context.Context, task *billing.Task, now time.Time, cause error) error {
	if task.Attempts >= p.maxTransientAttempts {
		p.logger.Error("Giving up on task after repeated failures",
			zap.String("task_id", task.ID.String()),
			zap.String("order_id", task.OrderID.String()),
			zap.String("type", string(task.Type)),
			zap.Int("attempts", task.Attempts),
			zap.Error(cause))
		return p.queue.Complete(ctx, task)
	}

	delay := p.transientRetryDelay
	for i := 1; i < task.Attempts && delay < maxTransientBackoff; i++ {
		delay *= 2
	}
	if delay > maxTransientBackoff {
		delay = maxTransientBackoff
	}
	p.logger.Warn("Task failed, retrying",
		zap.String("task_id", task.ID.String()),
		zap.String("order_id", task.OrderID.String()),
		zap.String("type", string(task.Type)),
		zap.Int("attempts", task.Attempts),
		zap.Duration("delay", delay),
		zap.Error(cause))
	return p.queue.Retry(ctx, task, now.Add(delay))
}
