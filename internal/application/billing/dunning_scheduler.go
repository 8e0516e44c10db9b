package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus is the outcome of a close task
type JobStatus string

const (
	JobStatusSuccess         JobStatus = "success"
	JobStatusRetry           JobStatus = "retry"
	JobStatusTerminalFailure JobStatus = "terminal_failure"
)

// JobMeta describes the delivery of a close task
type JobMeta struct {
	NumRetries int       // dunning retries already made for the order
	Now        time.Time // time of this attempt
}

// JobResult tells the queue what to do with a close task
type JobResult struct {
	Status       JobStatus
	DelaySeconds int64
	AvailableAt  time.Time
	NumRetries   int // dunning retries made once the retry is delivered
	Attempt      int
	Disposition  billing.DunningDisposition
}

// DunningScheduler closes orders and walks declined payments through the
// dunning schedule of their billing schedule.
type DunningScheduler struct {
	manager        *RecurringOrderManager
	orders         billing.RecurringOrderRepository
	subscriptions  billing.SubscriptionRepository
	schedules      billing.BillingScheduleRepository
	notifier       billing.Notifier
	eventPublisher shared.EventPublisher
	metrics        Metrics
	logger         *zap.Logger
}

// DunningSchedulerConfig contains the dependencies of DunningScheduler
type DunningSchedulerConfig struct {
	Manager        *RecurringOrderManager
	Orders         billing.RecurringOrderRepository
	Subscriptions  billing.SubscriptionRepository
	Schedules      billing.BillingScheduleRepository
	Notifier       billing.Notifier
	EventPublisher shared.EventPublisher
	Metrics        Metrics
	Logger         *zap.Logger
}

// NewDunningScheduler creates a new DunningScheduler
func NewDunningScheduler(cfg DunningSchedulerConfig) *DunningScheduler {
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &DunningScheduler{
		manager:        cfg.Manager,
		orders:         cfg.Orders,
		subscriptions:  cfg.Subscriptions,
		schedules:      cfg.Schedules,
		notifier:       cfg.Notifier,
		eventPublisher: cfg.EventPublisher,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}
}

// ProcessCloseTask attempts to close an order.
//
// A decline is turned into either a retry, delayed by the schedule entry for
// the current attempt, or the terminal outcome once the schedule is exhausted.
// Hard declines are terminal straight away. Errors that are not declines are
// returned so the caller can redeliver the task without consuming a dunning
// attempt.
func (d *DunningScheduler) ProcessCloseTask(ctx context.Context, orderID uuid.UUID, meta JobMeta) (JobResult, error) {
	order, err := d.orders.FindByID(ctx, orderID)
	if err != nil {
		return JobResult{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	switch order.State {
	case billing.OrderStateCompleted:
		return JobResult{Status: JobStatusSuccess}, nil
	case billing.OrderStateFailed:
		return JobResult{Status: JobStatusTerminalFailure, Attempt: meta.NumRetries + 1}, nil
	}

	closeErr := d.manager.CloseOrder(ctx, order, meta.Now)
	if closeErr == nil {
		d.logger.Info("Recurring order closed",
			zap.String("order_id", orderID.String()),
			zap.Int("num_retries", meta.NumRetries))
		return JobResult{Status: JobStatusSuccess}, nil
	}
	if !billing.IsDecline(closeErr) {
		return JobResult{}, closeErr
	}

	schedule, err := d.schedules.FindByID(ctx, order.BillingScheduleID)
	if err != nil {
		return JobResult{}, fmt.Errorf("load billing schedule %s: %w", order.BillingScheduleID, err)
	}

	job := schedule.RetryJob(orderID, meta.NumRetries, meta.Now)
	decision := schedule.DecideDunning(job, meta.Now)
	if billing.IsHardDecline(closeErr) && !decision.Terminal {
		decision = billing.DunningDecision{
			Terminal:    true,
			Attempt:     job.NumRetries + 1,
			MaxRetries:  job.MaxRetries,
			Disposition: schedule.DunningDisposition,
		}
	}
	reason := declineReason(closeErr)

	if !decision.Terminal {
		d.metrics.RecordDunningDecision(ctx, string(JobStatusRetry), decision.Attempt)
		d.notify(ctx, billing.NewDunningNotification(order, decision, reason, meta.Now))
		d.logger.Info("Scheduled payment retry",
			zap.String("order_id", orderID.String()),
			zap.Int("attempt", decision.Attempt),
			zap.Int("retry_days", decision.RetryDays),
			zap.Time("available_at", decision.AvailableAt))
		return JobResult{
			Status:       JobStatusRetry,
			DelaySeconds: decision.DelaySeconds(),
			AvailableAt:  decision.Next.AvailableAt,
			NumRetries:   decision.Next.NumRetries,
			Attempt:      decision.Attempt,
		}, nil
	}

	if err := d.applyTerminal(ctx, order, decision.Disposition, meta.Now); err != nil {
		return JobResult{}, err
	}
	d.metrics.RecordDunningDecision(ctx, string(JobStatusTerminalFailure), decision.Attempt)
	d.notify(ctx, billing.NewDunningNotification(order, decision, reason, meta.Now))
	d.logger.Warn("Dunning exhausted",
		zap.String("order_id", orderID.String()),
		zap.Int("attempt", decision.Attempt),
		zap.String("disposition", string(decision.Disposition)),
		zap.String("reason", reason))
	return JobResult{
		Status:      JobStatusTerminalFailure,
		Attempt:     decision.Attempt,
		Disposition: decision.Disposition,
	}, nil
}

// applyTerminal applies the dunning disposition to every subscription of the
// order, drops them from the draft orders renewed ahead of the decline and
// fails the order. Subscriptions already in the target state are not saved
// again so a redelivered task converges.
func (d *DunningScheduler) applyTerminal(ctx context.Context, order *billing.RecurringOrder, disposition billing.DunningDisposition, now time.Time) error {
	subs, err := d.subscriptions.FindByIDs(ctx, order.SubscriptionIDs())
	if err != nil {
		return err
	}
	for _, sub := range subs {
		version := sub.Version
		if err := sub.ApplyDisposition(disposition, now); err != nil {
			return err
		}
		if sub.Version != version {
			if err := d.subscriptions.Save(ctx, sub); err != nil {
				return err
			}
			d.publish(ctx, sub)
		}
		if err := d.manager.ReleaseSubscription(ctx, sub, disposition, now); err != nil {
			return err
		}
	}

	if order.State == billing.OrderStateFailed {
		return nil
	}
	if err := order.MarkFailed(now); err != nil {
		return err
	}
	if err := d.orders.Save(ctx, order); err != nil {
		return err
	}
	d.publish(ctx, order)
	return nil
}

func (d *DunningScheduler) notify(ctx context.Context, n billing.DunningNotification) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.logger.Error("Failed to send dunning notification",
			zap.String("order_id", n.OrderID.String()),
			zap.String("kind", string(n.Kind)),
			zap.Error(err))
	}
}

func (d *DunningScheduler) publish(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	agg.ClearDomainEvents()
	if d.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := d.eventPublisher.Publish(ctx, events...); err != nil {
		d.logger.Warn("Failed to publish domain events",
			zap.String("aggregate_id", agg.GetID().String()),
			zap.Error(err))
	}
}

func declineReason(err error) string {
	var decline *billing.DeclineError
	if errors.As(err, &decline) {
		return decline.Message
	}
	if errors.Is(err, billing.ErrPaymentMethodNotFound) {
		return billing.ErrPaymentMethodNotFound.Message
	}
	return err.Error()
}
