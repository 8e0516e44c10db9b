package billing

import (
	"fmt"
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderTypeRecurring is the only order type produced by the billing engine
const OrderTypeRecurring = "recurring"

// OrderState represents the state of a recurring order
type OrderState string

const (
	OrderStateDraft        OrderState = "draft"
	OrderStateNeedsPayment OrderState = "needs_payment"
	OrderStateCompleted    OrderState = "completed"
	OrderStateFailed       OrderState = "failed"
)

// IsValid checks if the state is a valid OrderState
func (s OrderState) IsValid() bool {
	switch s {
	case OrderStateDraft, OrderStateNeedsPayment, OrderStateCompleted, OrderStateFailed:
		return true
	}
	return false
}

// String returns the string representation of OrderState
func (s OrderState) String() string {
	return string(s)
}

// CanTransitionTo checks if the state can transition to the target state
func (s OrderState) CanTransitionTo(target OrderState) bool {
	switch s {
	case OrderStateDraft:
		return target == OrderStateNeedsPayment
	case OrderStateNeedsPayment:
		return target == OrderStateCompleted || target == OrderStateFailed
	case OrderStateCompleted, OrderStateFailed:
		return false // Terminal states
	}
	return false
}

// OrderLineItem is one subscription's charge on a recurring order
type OrderLineItem struct {
	ID                 uuid.UUID
	OrderID            uuid.UUID
	SubscriptionID     uuid.UUID
	PurchasedEntityRef string
	Title              string
	Quantity           decimal.Decimal
	UnitPrice          valueobject.Money
	Period             BillingPeriod
}

// TotalPrice returns unitPrice * quantity
func (i *OrderLineItem) TotalPrice() valueobject.Money {
	return i.UnitPrice.Multiply(i.Quantity)
}

func (i *OrderLineItem) matches(c Charge) bool {
	return i.PurchasedEntityRef == c.PurchasedEntityRef() &&
		i.Title == c.Title() &&
		i.Quantity.Equal(c.Quantity()) &&
		i.UnitPrice.Equals(c.UnitPrice()) &&
		i.Period.Equals(c.BillingPeriod())
}

func (i *OrderLineItem) apply(c Charge) {
	i.PurchasedEntityRef = c.PurchasedEntityRef()
	i.Title = c.Title()
	i.Quantity = c.Quantity()
	i.UnitPrice = c.UnitPrice()
	i.Period = c.BillingPeriod()
}

// SubscriptionCharge ties a charge to the subscription it was collected for
type SubscriptionCharge struct {
	SubscriptionID uuid.UUID
	Charge         Charge
}

// ReconcileResult reports the line item changes made by ReconcileLineItems
type ReconcileResult struct {
	Created []uuid.UUID
	Updated []uuid.UUID
	Removed []uuid.UUID
}

// Changed reports whether reconciliation mutated the order
func (r ReconcileResult) Changed() bool {
	return len(r.Created)+len(r.Updated)+len(r.Removed) > 0
}

// RecurringOrder is the order generated for one billing period
type RecurringOrder struct {
	shared.StoreAggregateRoot
	Type              string
	CustomerID        uuid.UUID
	BillingScheduleID uuid.UUID
	BillingPeriod     BillingPeriod
	Currency          valueobject.Currency
	LineItems         []OrderLineItem
	State             OrderState
	PaymentMethodID   *uuid.UUID
	DeclinedAttempts  int
	LastDeclineReason string
	PlacedAt          *time.Time
	CompletedAt       *time.Time
	FailedAt          *time.Time
}

// NewRecurringOrder creates an empty draft order for a billing period
func NewRecurringOrder(storeID, customerID, scheduleID uuid.UUID, period BillingPeriod, currency valueobject.Currency, now time.Time) (*RecurringOrder, error) {
	if storeID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_STORE", "Store ID cannot be empty")
	}
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if period.IsZero() {
		return nil, ErrInvalidPeriod
	}
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	o := &RecurringOrder{
		StoreAggregateRoot: shared.NewStoreAggregateRoot(storeID, now),
		Type:               OrderTypeRecurring,
		CustomerID:         customerID,
		BillingScheduleID:  scheduleID,
		BillingPeriod:      period,
		Currency:           currency,
		LineItems:          make([]OrderLineItem, 0),
		State:              OrderStateDraft,
	}
	o.AddDomainEvent(NewRecurringOrderEvent(EventTypeRecurringOrderCreated, o, now))
	return o, nil
}

// ReconcileLineItems brings the line items in line with charges, keyed by
// subscription. Existing items of a subscription are reused in order and only
// updated when they differ, surplus items are removed and missing ones created.
// Calling it again with equal charges changes nothing.
func (o *RecurringOrder) ReconcileLineItems(charges []SubscriptionCharge, now time.Time) (ReconcileResult, error) {
	var result ReconcileResult
	if o.State != OrderStateDraft {
		return result, ErrOrderNotDraft
	}
	for _, sc := range charges {
		if c := sc.Charge.UnitPrice().Currency(); c != o.Currency {
			return result, shared.NewDomainError("CURRENCY_MISMATCH",
				fmt.Sprintf("Charge currency %s does not match order currency %s", c, o.Currency))
		}
	}

	existing := make(map[uuid.UUID][]OrderLineItem)
	for _, item := range o.LineItems {
		existing[item.SubscriptionID] = append(existing[item.SubscriptionID], item)
	}

	items := make([]OrderLineItem, 0, len(charges))
	used := make(map[uuid.UUID]int)
	for _, sc := range charges {
		key := sc.SubscriptionID
		idx := used[key]
		used[key] = idx + 1
		if idx < len(existing[key]) {
			item := existing[key][idx]
			if !item.matches(sc.Charge) {
				item.apply(sc.Charge)
				result.Updated = append(result.Updated, item.ID)
			}
			items = append(items, item)
			continue
		}
		item := OrderLineItem{ID: uuid.New(), OrderID: o.ID, SubscriptionID: key}
		item.apply(sc.Charge)
		items = append(items, item)
		result.Created = append(result.Created, item.ID)
	}

	for _, item := range o.LineItems {
		if used[item.SubscriptionID] > 0 {
			used[item.SubscriptionID]--
			continue
		}
		result.Removed = append(result.Removed, item.ID)
	}

	o.LineItems = items
	if result.Changed() {
		o.Touch(now)
		o.IncrementVersion()
	}
	return result, nil
}

// TotalPrice sums the line item totals
func (o *RecurringOrder) TotalPrice() valueobject.Money {
	total := decimal.Zero
	for i := range o.LineItems {
		total = total.Add(o.LineItems[i].TotalPrice().Amount())
	}
	m, _ := valueobject.NewMoney(total, o.Currency)
	return m
}

// SubscriptionIDs returns the distinct subscriptions on the order in line item order
func (o *RecurringOrder) SubscriptionIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	ids := make([]uuid.UUID, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		if !seen[item.SubscriptionID] {
			seen[item.SubscriptionID] = true
			ids = append(ids, item.SubscriptionID)
		}
	}
	return ids
}

func (o *RecurringOrder) transition(target OrderState, now time.Time) error {
	if !o.State.CanTransitionTo(target) {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot transition order from %s to %s", o.State, target))
	}
	o.State = target
	o.Touch(now)
	o.IncrementVersion()
	return nil
}

// Place moves the order from draft to needs_payment
func (o *RecurringOrder) Place(now time.Time) error {
	if err := o.transition(OrderStateNeedsPayment, now); err != nil {
		return err
	}
	placed := now
	o.PlacedAt = &placed
	o.AddDomainEvent(NewRecurringOrderEvent(EventTypeRecurringOrderPlaced, o, now))
	return nil
}

// AssignPaymentMethod records the payment method used to pay the order
func (o *RecurringOrder) AssignPaymentMethod(id uuid.UUID) {
	o.PaymentMethodID = &id
}

// RecordDecline counts a declined payment attempt. The count feeds the
// idempotency key of the next charge so retries are not replayed by the gateway.
func (o *RecurringOrder) RecordDecline(reason string, now time.Time) error {
	if o.State != OrderStateNeedsPayment {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Cannot record a decline for an order in %s state", o.State))
	}
	o.DeclinedAttempts++
	o.LastDeclineReason = reason
	o.Touch(now)
	o.IncrementVersion()
	return nil
}

// PaymentIdempotencyKey identifies the current charge attempt for the gateway
func (o *RecurringOrder) PaymentIdempotencyKey() string {
	return fmt.Sprintf("order:%s:%d", o.ID, o.DeclinedAttempts)
}

// MarkPaid completes the order
func (o *RecurringOrder) MarkPaid(now time.Time) error {
	if err := o.transition(OrderStateCompleted, now); err != nil {
		return err
	}
	completed := now
	o.CompletedAt = &completed
	o.AddDomainEvent(NewRecurringOrderEvent(EventTypeRecurringOrderPaid, o, now))
	return nil
}

// MarkFailed ends the order after dunning gave up
func (o *RecurringOrder) MarkFailed(now time.Time) error {
	if err := o.transition(OrderStateFailed, now); err != nil {
		return err
	}
	failed := now
	o.FailedAt = &failed
	o.AddDomainEvent(NewRecurringOrderEvent(EventTypeRecurringOrderFailed, o, now))
	return nil
}

// IsDraft reports whether the order is still a draft
func (o *RecurringOrder) IsDraft() bool {
	return o.State == OrderStateDraft
}

// IsTerminal reports whether the order is completed or failed
func (o *RecurringOrder) IsTerminal() bool {
	return o.State == OrderStateCompleted || o.State == OrderStateFailed
}
