package billing

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies a dunning notification
type NotificationKind string

const (
	NotificationPaymentDeclined NotificationKind = "payment_declined"
	NotificationDunningComplete NotificationKind = "dunning_complete"
)

// DunningNotification tells the customer about a declined payment: either
// when the next retry happens or that retries are over and what happened
// to the subscriptions.
type DunningNotification struct {
	Kind        NotificationKind   `json:"kind"`
	OrderID     uuid.UUID          `json:"order_id"`
	StoreID     uuid.UUID          `json:"store_id"`
	CustomerID  uuid.UUID          `json:"customer_id"`
	RetryDays   int                `json:"retry_days"`
	Attempt     int                `json:"attempt"`
	MaxRetries  int                `json:"max_retries"`
	Disposition DunningDisposition `json:"disposition,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// NewDunningNotification builds the notification for a dunning decision
func NewDunningNotification(order *RecurringOrder, d DunningDecision, reason string, now time.Time) DunningNotification {
	n := DunningNotification{
		Kind:       NotificationPaymentDeclined,
		OrderID:    order.ID,
		StoreID:    order.StoreID,
		CustomerID: order.CustomerID,
		RetryDays:  d.RetryDays,
		Attempt:    d.Attempt,
		MaxRetries: d.MaxRetries,
		Reason:     reason,
		OccurredAt: now,
	}
	if d.Terminal {
		n.Kind = NotificationDunningComplete
		n.RetryDays = 0
		n.Disposition = d.Disposition
	}
	return n
}
