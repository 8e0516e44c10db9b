package billing

import (
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeRecurringOrder = "RecurringOrder"

// Event type constants
const (
	EventTypeRecurringOrderCreated = "recurring_order.created"
	EventTypeRecurringOrderPlaced  = "recurring_order.placed"
	EventTypeRecurringOrderPaid    = "recurring_order.paid"
	EventTypeRecurringOrderFailed  = "recurring_order.failed"
)

// RecurringOrderEvent is raised on recurring order lifecycle changes
type RecurringOrderEvent struct {
	shared.BaseDomainEvent
	OrderID     uuid.UUID         `json:"order_id"`
	CustomerID  uuid.UUID         `json:"customer_id"`
	State       OrderState        `json:"state"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	Total       valueobject.Money `json:"total"`
}

// NewRecurringOrderEvent creates a new RecurringOrderEvent
func NewRecurringOrderEvent(eventType string, o *RecurringOrder, at time.Time) *RecurringOrderEvent {
	return &RecurringOrderEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeRecurringOrder, o.ID, o.StoreID, at),
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		State:           o.State,
		PeriodStart:     o.BillingPeriod.Start(),
		PeriodEnd:       o.BillingPeriod.End(),
		Total:           o.TotalPrice(),
	}
}
