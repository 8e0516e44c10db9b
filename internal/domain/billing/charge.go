package billing

import (
	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Charge is the amount to bill for a purchased item or service over a period.
// Charges are computed fresh for every billing run and mapped into order line items.
type Charge struct {
	purchasedEntityRef string
	title              string
	quantity           decimal.Decimal
	unitPrice          valueobject.Money
	period             BillingPeriod
}

// ChargeParams holds the inputs of NewCharge
type ChargeParams struct {
	PurchasedEntityRef string // optional, empty for standalone charges
	Title              string
	Quantity           decimal.Decimal
	UnitPrice          valueobject.Money
	Period             BillingPeriod
}

// NewCharge creates a charge
func NewCharge(p ChargeParams) (Charge, error) {
	if p.Title == "" {
		return Charge{}, shared.NewDomainError("INVALID_CHARGE", "Charge title is required")
	}
	if p.UnitPrice.Currency() == "" {
		return Charge{}, shared.NewDomainError("INVALID_CHARGE", "Charge unit price is required")
	}
	if p.Period.IsZero() {
		return Charge{}, shared.NewDomainError("INVALID_CHARGE", "Charge billing period is required")
	}
	if p.Quantity.IsNegative() {
		return Charge{}, shared.NewDomainError("INVALID_CHARGE", "Charge quantity cannot be negative")
	}
	return Charge{
		purchasedEntityRef: p.PurchasedEntityRef,
		title:              p.Title,
		quantity:           p.Quantity,
		unitPrice:          p.UnitPrice,
		period:             p.Period,
	}, nil
}

// PurchasedEntityRef returns the referenced product variation, if any
func (c Charge) PurchasedEntityRef() string   { return c.purchasedEntityRef }
func (c Charge) Title() string                { return c.title }
func (c Charge) Quantity() decimal.Decimal    { return c.quantity }
func (c Charge) UnitPrice() valueobject.Money { return c.unitPrice }
func (c Charge) BillingPeriod() BillingPeriod { return c.period }

// TotalPrice returns unitPrice * quantity
func (c Charge) TotalPrice() valueobject.Money {
	return c.unitPrice.Multiply(c.quantity)
}

// WithUnitPrice returns a copy of the charge with a different unit price
func (c Charge) WithUnitPrice(price valueobject.Money) Charge {
	c.unitPrice = price
	return c
}
