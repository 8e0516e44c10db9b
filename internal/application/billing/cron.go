package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	// DefaultCronBatchSize limits the draft orders loaded per cron run
	DefaultCronBatchSize = 500
	// DefaultDispatchTTL is how long a dispatched order is remembered across instances
	DefaultDispatchTTL = 24 * time.Hour
)

// CronResult summarises one dispatch run
type CronResult struct {
	Scanned       int
	CloseEnqueued int
	RenewEnqueued int
	Duplicates    int
	Skipped       int
}

// Cron finds draft orders whose billing period has ended and queues the
// close and renew tasks for them.
type Cron struct {
	orders        billing.RecurringOrderRepository
	subscriptions billing.SubscriptionRepository
	queue         billing.TaskQueue
	dispatched    shared.IdempotencyStore
	batchSize     int
	dispatchTTL   time.Duration
	metrics       Metrics
	logger        *zap.Logger
}

// CronConfig contains the dependencies of Cron
type CronConfig struct {
	Orders        billing.RecurringOrderRepository
	Subscriptions billing.SubscriptionRepository
	Queue         billing.TaskQueue
	// Dispatched is optional. When set, an order is dispatched once per
	// billing period even if several instances run the cron.
	Dispatched  shared.IdempotencyStore
	BatchSize   int
	DispatchTTL time.Duration
	Metrics     Metrics
	Logger      *zap.Logger
}

// NewCron creates a new Cron
func NewCron(cfg CronConfig) *Cron {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultCronBatchSize
	}
	if cfg.DispatchTTL <= 0 {
		cfg.DispatchTTL = DefaultDispatchTTL
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Cron{
		orders:        cfg.Orders,
		subscriptions: cfg.Subscriptions,
		queue:         cfg.Queue,
		dispatched:    cfg.Dispatched,
		batchSize:     cfg.BatchSize,
		dispatchTTL:   cfg.DispatchTTL,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

// RunCron queues one close task and one renew task for every draft order
// whose billing period ended at or before now. Tasks are keyed by order so a
// task that is still pending is not queued twice. The renew task is skipped
// when none of the order's subscriptions is billable.
func (c *Cron) RunCron(ctx context.Context, now time.Time) (CronResult, error) {
	var result CronResult

	orders, err := c.orders.FindDraftEndedBefore(ctx, now, c.batchSize)
	if err != nil {
		return result, fmt.Errorf("find ended draft orders: %w", err)
	}
	result.Scanned = len(orders)

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		guardKey := ""
		if c.dispatched != nil {
			key := fmt.Sprintf("billing:cron:%s:%d", order.ID, order.BillingPeriod.End().Unix())
			fresh, err := c.dispatched.MarkProcessed(ctx, key, c.dispatchTTL)
			switch {
			case err != nil:
				c.logger.Warn("Dispatch guard unavailable, relying on task keys",
					zap.String("order_id", order.ID.String()),
					zap.Error(err))
			case !fresh:
				result.Skipped++
				continue
			default:
				guardKey = key
			}
		}

		if err := c.dispatch(ctx, order, now, &result); err != nil {
			c.release(ctx, guardKey)
			return result, err
		}
	}

	c.metrics.RecordCronRun(ctx, result.Scanned, result.CloseEnqueued+result.RenewEnqueued)
	if result.Scanned > 0 {
		c.logger.Info("Billing cron dispatched orders",
			zap.Int("scanned", result.Scanned),
			zap.Int("close_enqueued", result.CloseEnqueued),
			zap.Int("renew_enqueued", result.RenewEnqueued),
			zap.Int("duplicates", result.Duplicates),
			zap.Int("skipped", result.Skipped))
	}
	return result, nil
}

// dispatch queues the close task of order and, while a subscription on it is
// still billable, its renew task.
func (c *Cron) dispatch(ctx context.Context, order *billing.RecurringOrder, now time.Time, result *CronResult) error {
	closeTask := billing.NewTask(billing.TaskTypeCloseOrder, order.ID, "close:"+order.ID.String(), now)
	if err := c.enqueue(ctx, closeTask, result); err != nil {
		return err
	}

	billable, err := c.hasBillableSubscription(ctx, order)
	if err != nil {
		return err
	}
	if !billable {
		return nil
	}
	renewTask := billing.NewTask(billing.TaskTypeRenewOrder, order.ID, "renew:"+order.ID.String(), now)
	return c.enqueue(ctx, renewTask, result)
}

// release forgets a dispatch guard key so the next run retries the order.
// Tasks already queued are deduplicated by their unique keys.
func (c *Cron) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := c.dispatched.Release(context.WithoutCancel(ctx), key); err != nil {
		c.logger.Error("Failed to release dispatch guard",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (c *Cron) enqueue(ctx context.Context, task billing.Task, result *CronResult) error {
	_, err := c.queue.Enqueue(ctx, task)
	switch {
	case errors.Is(err, billing.ErrDuplicateTask):
		result.Duplicates++
		return nil
	case err != nil:
		return fmt.Errorf("enqueue %s task for order %s: %w", task.Type, task.OrderID, err)
	}
	if task.Type == billing.TaskTypeCloseOrder {
		result.CloseEnqueued++
	} else {
		result.RenewEnqueued++
	}
	return nil
}

func (c *Cron) hasBillableSubscription(ctx context.Context, order *billing.RecurringOrder) (bool, error) {
	subs, err := c.subscriptions.FindByIDs(ctx, order.SubscriptionIDs())
	if err != nil {
		return false, err
	}
	for _, sub := range subs {
		if sub.IsBillable() {
			return true, nil
		}
	}
	return false, nil
}
