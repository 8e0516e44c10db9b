package event

import (
	"context"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"go.uber.org/zap"
)

// AuditLogHandler writes one structured log line per billing event
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates an AuditLogHandler
func NewAuditLogHandler(logger *zap.Logger) *AuditLogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogHandler{logger: logger.Named("audit")}
}

// EventTypes subscribes to order and subscription lifecycle events
func (h *AuditLogHandler) EventTypes() []string {
	return []string{"recurring_order.*", "subscription.*"}
}

// Handle logs the event
func (h *AuditLogHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("store_id", event.StoreID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}

	switch e := event.(type) {
	case *billing.RecurringOrderEvent:
		fields = append(fields,
			zap.String("order_id", e.OrderID.String()),
			zap.String("customer_id", e.CustomerID.String()),
			zap.String("state", string(e.State)),
			zap.Time("period_start", e.PeriodStart),
			zap.Time("period_end", e.PeriodEnd),
			zap.String("total", e.Total.String()))
	case *billing.SubscriptionStateChangedEvent:
		fields = append(fields,
			zap.String("subscription_id", e.SubscriptionID.String()),
			zap.String("customer_id", e.CustomerID.String()),
			zap.String("state", string(e.State)))
		if e.EndsAt != nil {
			fields = append(fields, zap.Time("ends_at", *e.EndsAt))
		}
	default:
		fields = append(fields,
			zap.String("aggregate_type", event.AggregateType()),
			zap.String("aggregate_id", event.AggregateID().String()))
	}

	h.logger.Info("Billing event", fields...)
	return nil
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)
