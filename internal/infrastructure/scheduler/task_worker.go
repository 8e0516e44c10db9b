package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// TaskHandler processes a claimed task and settles it on the queue
type TaskHandler interface {
	Process(ctx context.Context, task *billing.Task, now time.Time) error
}

// TaskWorkerConfig holds configuration for TaskWorker
type TaskWorkerConfig struct {
	// Workers is the number of goroutines claiming tasks
	Workers int
	// PollInterval is how long an idle worker waits before claiming again
	PollInterval time.Duration
	// TaskTimeout bounds the processing of a single task
	TaskTimeout time.Duration
}

// DefaultTaskWorkerConfig returns default worker configuration
func DefaultTaskWorkerConfig() TaskWorkerConfig {
	return TaskWorkerConfig{
		Workers:      4,
		PollInterval: 2 * time.Second,
		TaskTimeout:  2 * time.Minute,
	}
}

// TaskWorker is a pool of goroutines that claim due tasks from the queue and
// hand them to a TaskHandler.
type TaskWorker struct {
	config  TaskWorkerConfig
	queue   billing.TaskQueue
	handler TaskHandler
	logger  *zap.Logger
	now     func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewTaskWorker creates a new task worker pool
func NewTaskWorker(config TaskWorkerConfig, queue billing.TaskQueue, handler TaskHandler, logger *zap.Logger) (*TaskWorker, error) {
	if queue == nil || handler == nil {
		return nil, fmt.Errorf("%w: queue and handler are required", ErrInvalidConfig)
	}
	defaults := DefaultTaskWorkerConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = defaults.TaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskWorker{
		config:  config,
		queue:   queue,
		handler: handler,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Start starts the worker pool
func (w *TaskWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return nil
	}
	w.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	for i := 0; i < w.config.Workers; i++ {
		w.wg.Add(1)
		go w.worker(ctx, i)
	}

	w.logger.Info("Task workers started",
		zap.Int("workers", w.config.Workers),
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Duration("task_timeout", w.config.TaskTimeout))
	return nil
}

// Stop stops claiming new tasks and waits for in-flight tasks to finish
func (w *TaskWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.mu.Unlock()

	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Task workers stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Task workers stop timed out")
		return ctx.Err()
	}
}

func (w *TaskWorker) worker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.ProcessNext(ctx)
		if processed && err == nil {
			continue
		}
		if err != nil {
			w.logger.Error("Task worker error", zap.Int("worker_id", workerID), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.config.PollInterval):
		}
	}
}

// ProcessNext claims and processes one due task. It reports false when the
// queue had nothing due.
func (w *TaskWorker) ProcessNext(ctx context.Context) (bool, error) {
	now := w.now()
	task, err := w.queue.Claim(ctx, now)
	if errors.Is(err, billing.ErrNoTask) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}

	// A claimed task is finished even when the pool is stopping so a charge
	// is never abandoned halfway.
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.config.TaskTimeout)
	defer cancel()

	w.logger.Debug("Processing task",
		zap.String("task_id", task.ID.String()),
		zap.String("order_id", task.OrderID.String()),
		zap.String("type", string(task.Type)),
		zap.Int("num_retries", task.NumRetries),
		zap.Int("attempts", task.Attempts))

	taskCtx, span := telemetry.StartSpan(taskCtx, "billing.task",
		telemetry.AttrTaskType.String(string(task.Type)),
		telemetry.UUID(telemetry.AttrOrderID, task.OrderID),
		telemetry.AttrAttempt.Int(task.Attempts))
	defer span.End()

	if err := w.process(taskCtx, task, now); err != nil {
		telemetry.RecordError(span, err)
		return true, fmt.Errorf("process task %s: %w", task.ID, err)
	}
	telemetry.SetOK(span)
	return true, nil
}

// process runs the handler, turning a panic into an error. The task lease
// expires and the queue redelivers it.
func (w *TaskWorker) process(ctx context.Context, task *billing.Task, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return w.handler.Process(ctx, task, now)
}
