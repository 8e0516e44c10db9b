package billing

import (
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeSubscription = "Subscription"

// Event type constants
const (
	EventTypeSubscriptionActivated = "subscription.activated"
	EventTypeSubscriptionSuspended = "subscription.suspended"
	EventTypeSubscriptionCanceled  = "subscription.canceled"
	EventTypeSubscriptionExpired   = "subscription.expired"
	EventTypeSubscriptionRenewed   = "subscription.renewed"
)

// SubscriptionStateChangedEvent is raised on every subscription lifecycle change
type SubscriptionStateChangedEvent struct {
	shared.BaseDomainEvent
	SubscriptionID uuid.UUID         `json:"subscription_id"`
	CustomerID     uuid.UUID         `json:"customer_id"`
	State          SubscriptionState `json:"state"`
	EndsAt         *time.Time        `json:"ends_at,omitempty"`
}

// NewSubscriptionStateChangedEvent creates a new SubscriptionStateChangedEvent
func NewSubscriptionStateChangedEvent(eventType string, s *Subscription, at time.Time) *SubscriptionStateChangedEvent {
	return &SubscriptionStateChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeSubscription, s.ID, s.StoreID, at),
		SubscriptionID:  s.ID,
		CustomerID:      s.CustomerID,
		State:           s.State,
		EndsAt:          s.EndsAt,
	}
}
