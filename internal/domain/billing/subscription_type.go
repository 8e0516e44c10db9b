package billing

import (
	"context"
	"fmt"

	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/domain/shared/strategy"
)

// Built-in subscription type names
const (
	SubscriptionTypeProductVariation = "product_variation"
	SubscriptionTypeStandalone       = "standalone"
	SubscriptionTypeLicense          = "license"
)

// SubscriptionType collects the charges of a subscription and hooks into
// order creation and renewal without the order manager knowing the concrete type.
type SubscriptionType interface {
	strategy.Strategy
	// CollectCharges returns the charges of sub for period. Proration is
	// applied by the caller.
	CollectCharges(sub *Subscription, period BillingPeriod) ([]Charge, error)
	// OnActivate runs after the first order of sub was created
	OnActivate(ctx context.Context, sub *Subscription, order *RecurringOrder) error
	// OnRenew runs after next was created as the successor of closed
	OnRenew(ctx context.Context, sub *Subscription, closed, next *RecurringOrder) error
	// OnDisposition runs after dunning suspended or canceled sub
	OnDisposition(ctx context.Context, sub *Subscription, d DunningDisposition) error
}

func singleCharge(sub *Subscription, period BillingPeriod) ([]Charge, error) {
	c, err := NewCharge(ChargeParams{
		PurchasedEntityRef: sub.PurchasedEntityRef,
		Title:              sub.Title,
		Quantity:           sub.Quantity,
		UnitPrice:          sub.UnitPrice,
		Period:             period,
	})
	if err != nil {
		return nil, err
	}
	return []Charge{c}, nil
}

// ProductVariationType bills a purchasable product variation
type ProductVariationType struct {
	strategy.BaseStrategy
}

// NewProductVariationType creates the product variation subscription type
func NewProductVariationType() *ProductVariationType {
	return &ProductVariationType{
		BaseStrategy: strategy.NewBaseStrategy(
			SubscriptionTypeProductVariation,
			strategy.StrategyTypeSubscriptionType,
			"Recurring purchase of a product variation",
		),
	}
}

// CollectCharges returns one charge referencing the product variation
func (t *ProductVariationType) CollectCharges(sub *Subscription, period BillingPeriod) ([]Charge, error) {
	if sub.PurchasedEntityRef == "" {
		return nil, shared.NewDomainError("INVALID_SUBSCRIPTION",
			fmt.Sprintf("Subscription %s has no purchased entity", sub.ID))
	}
	return singleCharge(sub, period)
}

func (t *ProductVariationType) OnActivate(context.Context, *Subscription, *RecurringOrder) error {
	return nil
}

func (t *ProductVariationType) OnRenew(context.Context, *Subscription, *RecurringOrder, *RecurringOrder) error {
	return nil
}

func (t *ProductVariationType) OnDisposition(context.Context, *Subscription, DunningDisposition) error {
	return nil
}

// StandaloneType bills a subscription without a purchasable entity
type StandaloneType struct {
	strategy.BaseStrategy
}

// NewStandaloneType creates the standalone subscription type
func NewStandaloneType() *StandaloneType {
	return &StandaloneType{
		BaseStrategy: strategy.NewBaseStrategy(
			SubscriptionTypeStandalone,
			strategy.StrategyTypeSubscriptionType,
			"Recurring charge with a title and price but no product",
		),
	}
}

// CollectCharges returns one charge without a purchased entity
func (t *StandaloneType) CollectCharges(sub *Subscription, period BillingPeriod) ([]Charge, error) {
	c, err := NewCharge(ChargeParams{
		Title:     sub.Title,
		Quantity:  sub.Quantity,
		UnitPrice: sub.UnitPrice,
		Period:    period,
	})
	if err != nil {
		return nil, err
	}
	return []Charge{c}, nil
}

func (t *StandaloneType) OnActivate(context.Context, *Subscription, *RecurringOrder) error {
	return nil
}

func (t *StandaloneType) OnRenew(context.Context, *Subscription, *RecurringOrder, *RecurringOrder) error {
	return nil
}

func (t *StandaloneType) OnDisposition(context.Context, *Subscription, DunningDisposition) error {
	return nil
}

// LicenseType is a product variation subscription that keeps a license in
// sync with the paid period.
type LicenseType struct {
	ProductVariationType
	licenses LicenseService
}

// NewLicenseType creates the license subscription type
func NewLicenseType(licenses LicenseService) *LicenseType {
	return &LicenseType{
		ProductVariationType: ProductVariationType{
			BaseStrategy: strategy.NewBaseStrategy(
				SubscriptionTypeLicense,
				strategy.StrategyTypeSubscriptionType,
				"Product variation that grants a license valid until the end of the billed period",
			),
		},
		licenses: licenses,
	}
}

// OnActivate grants a license valid until the end of the first order's period
func (t *LicenseType) OnActivate(ctx context.Context, sub *Subscription, order *RecurringOrder) error {
	if err := t.licenses.Grant(ctx, sub, order.BillingPeriod.End()); err != nil {
		return fmt.Errorf("grant license for subscription %s: %w", sub.ID, err)
	}
	return nil
}

// OnRenew extends the license to the end of the next order's period
func (t *LicenseType) OnRenew(ctx context.Context, sub *Subscription, _, next *RecurringOrder) error {
	if err := t.licenses.Extend(ctx, sub, next.BillingPeriod.End()); err != nil {
		return fmt.Errorf("extend license for subscription %s: %w", sub.ID, err)
	}
	return nil
}

// OnDisposition revokes the license; access ends with the unpaid order
func (t *LicenseType) OnDisposition(ctx context.Context, sub *Subscription, _ DunningDisposition) error {
	if err := t.licenses.Revoke(ctx, sub); err != nil {
		return fmt.Errorf("revoke license for subscription %s: %w", sub.ID, err)
	}
	return nil
}
