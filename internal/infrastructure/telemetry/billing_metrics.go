package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when no meter is supplied
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// QueueDepthFunc reports the number of tasks held by the queue
type QueueDepthFunc func(ctx context.Context) (int64, error)

// BillingMetrics records billing engine measurements. It satisfies the
// metrics port of the billing application services.
type BillingMetrics struct {
	logger *zap.Logger

	ordersCreated    *Counter
	chargeAttempts   *Counter
	chargedAmount    *Counter
	dunningDecisions *Counter
	tasksProcessed   *Counter
	taskDuration     *Histogram
	cronRuns         *Counter
	cronScanned      *Gauge
	cronEnqueued     *Counter

	registration metric.Registration
}

// BillingMetricsConfig holds configuration for billing metrics.
type BillingMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
	// QueueDepth is optional. When set, the queue size is observed on every collection.
	QueueDepth QueueDepthFunc
}

// NewBillingMetrics creates the billing instruments on the given meter
func NewBillingMetrics(cfg BillingMetricsConfig) (*BillingMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &BillingMetrics{logger: logger}
	counters := []struct {
		target           **Counter
		name, desc, unit string
	}{
		{&m.ordersCreated, "billing_orders_created_total", "Recurring orders created", "{orders}"},
		{&m.chargeAttempts, "billing_charge_attempts_total", "Payment gateway charge attempts", "{charges}"},
		{&m.chargedAmount, "billing_charge_amount_total", "Charged amount in currency minor units", "{minor_units}"},
		{&m.dunningDecisions, "billing_dunning_decisions_total", "Dunning decisions after a declined payment", "{decisions}"},
		{&m.tasksProcessed, "billing_tasks_processed_total", "Queue tasks processed", "{tasks}"},
		{&m.cronRuns, "billing_cron_runs_total", "Dispatch cron runs", "{runs}"},
		{&m.cronEnqueued, "billing_cron_tasks_enqueued_total", "Tasks enqueued by the dispatch cron", "{tasks}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	var err error
	m.taskDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "billing_task_duration_seconds",
		Description: "Time spent processing a queue task",
		Unit:        "s",
		Boundaries:  TaskDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	m.cronScanned, err = NewGauge(cfg.Meter, "billing_cron_orders_scanned", "Draft orders scanned by the last cron run", "{orders}")
	if err != nil {
		return nil, err
	}

	if cfg.QueueDepth != nil {
		depth, err := cfg.Meter.Int64ObservableGauge("billing_queue_depth",
			metric.WithDescription("Tasks held by the billing queue"),
			metric.WithUnit("{tasks}"))
		if err != nil {
			return nil, err
		}
		m.registration, err = cfg.Meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			n, err := cfg.QueueDepth(ctx)
			if err != nil {
				logger.Warn("Failed to read queue depth", zap.Error(err))
				return nil
			}
			o.ObserveInt64(depth, n)
			return nil
		}, depth)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordOrderCreated counts a new recurring order, labeled with why it was created
func (m *BillingMetrics) RecordOrderCreated(ctx context.Context, reason string) {
	m.ordersCreated.Inc(ctx, AttrReason.String(reason))
}

// RecordChargeAttempt counts a gateway call. Only successful charges add to the amount.
func (m *BillingMetrics) RecordChargeAttempt(ctx context.Context, outcome string, amountMinor int64, currency string) {
	m.chargeAttempts.Inc(ctx, AttrOutcome.String(outcome), AttrCurrency.String(currency))
	if outcome == "succeeded" && amountMinor > 0 {
		m.chargedAmount.Add(ctx, amountMinor, AttrCurrency.String(currency))
	}
}

// RecordDunningDecision counts a retry or terminal decision
func (m *BillingMetrics) RecordDunningDecision(ctx context.Context, kind string, attempt int) {
	m.dunningDecisions.Inc(ctx, AttrDecision.String(kind), AttrAttempt.Int(attempt))
}

// RecordTaskProcessed counts a processed task and records its duration
func (m *BillingMetrics) RecordTaskProcessed(ctx context.Context, taskType, outcome string, duration time.Duration) {
	m.tasksProcessed.Inc(ctx, AttrTaskType.String(taskType), AttrOutcome.String(outcome))
	m.taskDuration.RecordDuration(ctx, duration, AttrTaskType.String(taskType))
}

// RecordCronRun counts a cron run
func (m *BillingMetrics) RecordCronRun(ctx context.Context, scanned, enqueued int) {
	m.cronRuns.Inc(ctx)
	m.cronScanned.Record(ctx, int64(scanned))
	m.cronEnqueued.Add(ctx, int64(enqueued))
}

// Close unregisters the queue depth callback
func (m *BillingMetrics) Close() error {
	if m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
