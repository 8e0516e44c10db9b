package billing

import (
	"fmt"
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionState represents the lifecycle state of a subscription
type SubscriptionState string

const (
	SubscriptionStatePending   SubscriptionState = "pending"
	SubscriptionStateActive    SubscriptionState = "active"
	SubscriptionStateSuspended SubscriptionState = "suspended"
	SubscriptionStateCanceled  SubscriptionState = "canceled"
	SubscriptionStateExpired   SubscriptionState = "expired"
)

// IsValid checks if the state is a valid SubscriptionState
func (s SubscriptionState) IsValid() bool {
	switch s {
	case SubscriptionStatePending, SubscriptionStateActive, SubscriptionStateSuspended,
		SubscriptionStateCanceled, SubscriptionStateExpired:
		return true
	}
	return false
}

// String returns the string representation of SubscriptionState
func (s SubscriptionState) String() string {
	return string(s)
}

// CanTransitionTo checks if the state can transition to the target state
func (s SubscriptionState) CanTransitionTo(target SubscriptionState) bool {
	switch s {
	case SubscriptionStatePending:
		return target == SubscriptionStateActive || target == SubscriptionStateCanceled
	case SubscriptionStateActive:
		return target == SubscriptionStateSuspended || target == SubscriptionStateCanceled || target == SubscriptionStateExpired
	case SubscriptionStateSuspended:
		return target == SubscriptionStateActive || target == SubscriptionStateCanceled || target == SubscriptionStateExpired
	case SubscriptionStateCanceled, SubscriptionStateExpired:
		return false // Terminal states
	}
	return false
}

// Subscription is a customer's recurring purchase
type Subscription struct {
	shared.StoreAggregateRoot
	Type               string // subscription type strategy name
	CustomerID         uuid.UUID
	BillingScheduleID  uuid.UUID
	PaymentMethodID    *uuid.UUID
	PurchasedEntityRef string
	Title              string
	Quantity           decimal.Decimal
	UnitPrice          valueobject.Money
	State              SubscriptionState
	StartsAt           *time.Time
	EndsAt             *time.Time // nil means unbounded
	RenewedAt          *time.Time
}

// SubscriptionParams holds the inputs of NewSubscription
type SubscriptionParams struct {
	Type               string
	StoreID            uuid.UUID
	CustomerID         uuid.UUID
	BillingScheduleID  uuid.UUID
	PaymentMethodID    *uuid.UUID
	PurchasedEntityRef string
	Title              string
	Quantity           decimal.Decimal
	UnitPrice          valueobject.Money
	StartsAt           *time.Time
	EndsAt             *time.Time
}

// NewSubscription creates a pending subscription
func NewSubscription(p SubscriptionParams, now time.Time) (*Subscription, error) {
	if p.Type == "" {
		return nil, shared.NewDomainError("INVALID_SUBSCRIPTION_TYPE", "Subscription type is required")
	}
	if p.StoreID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_STORE", "Store ID cannot be empty")
	}
	if p.CustomerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if p.BillingScheduleID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BILLING_SCHEDULE", "Billing schedule ID cannot be empty")
	}
	if p.Title == "" {
		return nil, shared.NewDomainError("INVALID_TITLE", "Subscription title cannot be empty")
	}
	if p.UnitPrice.Currency() == "" {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price is required")
	}
	if p.UnitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}
	if p.Quantity.IsNegative() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity cannot be negative")
	}
	if p.StartsAt != nil && p.EndsAt != nil && !p.StartsAt.Before(*p.EndsAt) {
		return nil, shared.NewDomainError("INVALID_DATES", "Subscription must start before it ends")
	}
	return &Subscription{
		StoreAggregateRoot: shared.NewStoreAggregateRoot(p.StoreID, now),
		Type:               p.Type,
		CustomerID:         p.CustomerID,
		BillingScheduleID:  p.BillingScheduleID,
		PaymentMethodID:    p.PaymentMethodID,
		PurchasedEntityRef: p.PurchasedEntityRef,
		Title:              p.Title,
		Quantity:           p.Quantity,
		UnitPrice:          p.UnitPrice,
		State:              SubscriptionStatePending,
		StartsAt:           p.StartsAt,
		EndsAt:             p.EndsAt,
	}, nil
}

func (s *Subscription) transition(target SubscriptionState, now time.Time) error {
	if !s.State.CanTransitionTo(target) {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot transition subscription from %s to %s", s.State, target))
	}
	s.State = target
	s.Touch(now)
	s.IncrementVersion()
	return nil
}

// Activate moves a pending subscription to active. StartsAt defaults to now.
func (s *Subscription) Activate(now time.Time) error {
	if s.State != SubscriptionStatePending {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot activate subscription in %s state", s.State))
	}
	if s.StartsAt == nil {
		start := now
		s.StartsAt = &start
	}
	if err := s.transition(SubscriptionStateActive, now); err != nil {
		return err
	}
	s.AddDomainEvent(NewSubscriptionStateChangedEvent(EventTypeSubscriptionActivated, s, now))
	return nil
}

// Reactivate resumes a suspended subscription
func (s *Subscription) Reactivate(now time.Time) error {
	if s.State != SubscriptionStateSuspended {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot reactivate subscription in %s state", s.State))
	}
	if err := s.transition(SubscriptionStateActive, now); err != nil {
		return err
	}
	s.AddDomainEvent(NewSubscriptionStateChangedEvent(EventTypeSubscriptionActivated, s, now))
	return nil
}

// Suspend stops billing until the subscription is reactivated
func (s *Subscription) Suspend(now time.Time) error {
	if err := s.transition(SubscriptionStateSuspended, now); err != nil {
		return err
	}
	s.AddDomainEvent(NewSubscriptionStateChangedEvent(EventTypeSubscriptionSuspended, s, now))
	return nil
}

// Cancel ends the subscription at now unless it already ends earlier
func (s *Subscription) Cancel(now time.Time) error {
	if err := s.transition(SubscriptionStateCanceled, now); err != nil {
		return err
	}
	if s.EndsAt == nil || s.EndsAt.After(now) {
		end := now
		s.EndsAt = &end
	}
	s.AddDomainEvent(NewSubscriptionStateChangedEvent(EventTypeSubscriptionCanceled, s, now))
	return nil
}

// Expire marks a subscription whose end date was reached
func (s *Subscription) Expire(now time.Time) error {
	if err := s.transition(SubscriptionStateExpired, now); err != nil {
		return err
	}
	s.AddDomainEvent(NewSubscriptionStateChangedEvent(EventTypeSubscriptionExpired, s, now))
	return nil
}

// MarkRenewed records that a follow-up order was created
func (s *Subscription) MarkRenewed(now time.Time) {
	renewed := now
	s.RenewedAt = &renewed
	s.Touch(now)
	s.IncrementVersion()
	s.AddDomainEvent(NewSubscriptionStateChangedEvent(EventTypeSubscriptionRenewed, s, now))
}

// ApplyDisposition applies the dunning disposition after payment retries are exhausted.
// Subscriptions already in a terminal state are left alone.
func (s *Subscription) ApplyDisposition(d DunningDisposition, now time.Time) error {
	switch d {
	case DunningDispositionSuspend:
		if s.State == SubscriptionStateSuspended || s.IsTerminal() {
			return nil
		}
		return s.Suspend(now)
	case DunningDispositionCancel:
		if s.IsTerminal() {
			return nil
		}
		return s.Cancel(now)
	}
	return invalidConfig("invalid dunning disposition %q", d)
}

// IsTerminal reports whether the subscription is canceled or expired
func (s *Subscription) IsTerminal() bool {
	return s.State == SubscriptionStateCanceled || s.State == SubscriptionStateExpired
}

// IsBillable reports whether the subscription takes part in billing runs
func (s *Subscription) IsBillable() bool {
	return s.State == SubscriptionStateActive
}

// EndsBy reports whether the subscription has an end date at or before t
func (s *Subscription) EndsBy(t time.Time) bool {
	return s.EndsAt != nil && !s.EndsAt.After(t)
}
