package billing

import (
	"context"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
)

// StrategyResolver resolves the strategies configured on schedules and subscriptions
type StrategyResolver interface {
	NewScheduleStrategy(name string, config map[string]any) (billing.BillingScheduleStrategy, error)
	ScheduleStrategyFor(schedule *billing.BillingSchedule) (billing.BillingScheduleStrategy, error)
	GetSubscriptionType(name string) (billing.SubscriptionType, error)
	GetProrater(name string) (billing.Prorater, error)
}

// Metrics records billing engine measurements
type Metrics interface {
	RecordOrderCreated(ctx context.Context, reason string)
	RecordChargeAttempt(ctx context.Context, outcome string, amountMinor int64, currency string)
	RecordDunningDecision(ctx context.Context, kind string, attempt int)
	RecordTaskProcessed(ctx context.Context, taskType, outcome string, duration time.Duration)
	RecordCronRun(ctx context.Context, scanned, enqueued int)
}

// NopMetrics discards all measurements
type NopMetrics struct{}

func (NopMetrics) RecordOrderCreated(context.Context, string)                         {}
func (NopMetrics) RecordChargeAttempt(context.Context, string, int64, string)         {}
func (NopMetrics) RecordDunningDecision(context.Context, string, int)                 {}
func (NopMetrics) RecordTaskProcessed(context.Context, string, string, time.Duration) {}
func (NopMetrics) RecordCronRun(context.Context, int, int)                            {}
