package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionRepository defines persistence operations for subscriptions
type SubscriptionRepository interface {
	// FindByID returns shared.ErrNotFound when the subscription does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// FindByIDs skips ids that do not exist
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Subscription, error)
	FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]*Subscription, error)
	Save(ctx context.Context, sub *Subscription) error
}

// RecurringOrderRepository defines persistence operations for recurring orders
type RecurringOrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*RecurringOrder, error)
	// FindDraftEndedBefore returns draft orders whose period ended at or before t
	FindDraftEndedBefore(ctx context.Context, t time.Time, limit int) ([]*RecurringOrder, error)
	// FindDraftBySubscription returns the draft orders containing the subscription
	FindDraftBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*RecurringOrder, error)
	// FindBySubscription returns every order containing the subscription, newest period first
	FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*RecurringOrder, error)
	// Save creates or updates the order and replaces its line items
	Save(ctx context.Context, order *RecurringOrder) error
}

// BillingScheduleRepository defines persistence operations for billing schedules
type BillingScheduleRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*BillingSchedule, error)
	FindAll(ctx context.Context) ([]*BillingSchedule, error)
	Save(ctx context.Context, schedule *BillingSchedule) error
}

// PaymentMethodRepository defines persistence operations for payment methods
type PaymentMethodRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentMethod, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*PaymentMethod, error)
	FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]*PaymentMethod, error)
	Save(ctx context.Context, method *PaymentMethod) error
}

// LicenseRepository defines persistence operations for licenses
type LicenseRepository interface {
	FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*License, error)
	Save(ctx context.Context, license *License) error
}
