package models

import (
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingScheduleModel is the persistence model for the BillingSchedule aggregate.
type BillingScheduleModel struct {
	AggregateModel
	Label              string                     `gorm:"type:varchar(200);not null"`
	BillingType        billing.BillingType        `gorm:"type:varchar(20);not null"`
	StrategyID         string                     `gorm:"type:varchar(50);not null"`
	StrategyConfig     map[string]any             `gorm:"type:text;serializer:json"`
	ProraterID         string                     `gorm:"type:varchar(50);not null"`
	DunningSchedule    []int                      `gorm:"type:text;serializer:json"`
	DunningDisposition billing.DunningDisposition `gorm:"type:varchar(20);not null"`
	Status             billing.ScheduleStatus     `gorm:"type:varchar(20);not null;default:'enabled'"`
}

// TableName returns the table name for GORM
func (BillingScheduleModel) TableName() string {
	return "billing_schedules"
}

// ToDomain converts the persistence model to a domain BillingSchedule.
func (m *BillingScheduleModel) ToDomain() *billing.BillingSchedule {
	s := &billing.BillingSchedule{
		Label:              m.Label,
		BillingType:        m.BillingType,
		StrategyID:         m.StrategyID,
		StrategyConfig:     m.StrategyConfig,
		ProraterID:         m.ProraterID,
		DunningSchedule:    m.DunningSchedule,
		DunningDisposition: m.DunningDisposition,
		Status:             m.Status,
	}
	s.BaseEntity = m.BaseModel.ToDomain()
	s.Version = m.Version
	return s
}

// FromDomain populates the persistence model from a domain BillingSchedule.
func (m *BillingScheduleModel) FromDomain(s *billing.BillingSchedule) {
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	m.Label = s.Label
	m.BillingType = s.BillingType
	m.StrategyID = s.StrategyID
	m.StrategyConfig = s.StrategyConfig
	m.ProraterID = s.ProraterID
	m.DunningSchedule = s.DunningSchedule
	m.DunningDisposition = s.DunningDisposition
	m.Status = s.Status
}

// BillingScheduleModelFromDomain creates a new persistence model from a domain BillingSchedule.
func BillingScheduleModelFromDomain(s *billing.BillingSchedule) *BillingScheduleModel {
	m := &BillingScheduleModel{}
	m.FromDomain(s)
	return m
}

// SubscriptionModel is the persistence model for the Subscription aggregate.
type SubscriptionModel struct {
	StoreAggregateModel
	Type               string                    `gorm:"type:varchar(50);not null"`
	CustomerID         uuid.UUID                 `gorm:"type:uuid;not null;index"`
	BillingScheduleID  uuid.UUID                 `gorm:"type:uuid;not null;index"`
	PaymentMethodID    *uuid.UUID                `gorm:"type:uuid"`
	PurchasedEntityRef string                    `gorm:"type:varchar(100)"`
	Title              string                    `gorm:"type:varchar(255);not null"`
	Quantity           decimal.Decimal           `gorm:"type:decimal(18,4);not null;default:1"`
	UnitPrice          decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	Currency           string                    `gorm:"type:varchar(3);not null"`
	State              billing.SubscriptionState `gorm:"type:varchar(20);not null;index"`
	StartsAt           *time.Time
	EndsAt             *time.Time
	RenewedAt          *time.Time
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription.
func (m *SubscriptionModel) ToDomain() (*billing.Subscription, error) {
	price, err := valueobject.NewMoney(m.UnitPrice, valueobject.Currency(m.Currency))
	if err != nil {
		return nil, err
	}
	s := &billing.Subscription{
		Type:               m.Type,
		CustomerID:         m.CustomerID,
		BillingScheduleID:  m.BillingScheduleID,
		PaymentMethodID:    m.PaymentMethodID,
		PurchasedEntityRef: m.PurchasedEntityRef,
		Title:              m.Title,
		Quantity:           m.Quantity,
		UnitPrice:          price,
		State:              m.State,
		StartsAt:           m.StartsAt,
		EndsAt:             m.EndsAt,
		RenewedAt:          m.RenewedAt,
	}
	m.PopulateStoreAggregateRoot(&s.StoreAggregateRoot)
	return s, nil
}

// FromDomain populates the persistence model from a domain Subscription.
func (m *SubscriptionModel) FromDomain(s *billing.Subscription) {
	m.FromDomainStoreAggregateRoot(s.StoreAggregateRoot)
	m.Type = s.Type
	m.CustomerID = s.CustomerID
	m.BillingScheduleID = s.BillingScheduleID
	m.PaymentMethodID = s.PaymentMethodID
	m.PurchasedEntityRef = s.PurchasedEntityRef
	m.Title = s.Title
	m.Quantity = s.Quantity
	m.UnitPrice = s.UnitPrice.Amount()
	m.Currency = string(s.UnitPrice.Currency())
	m.State = s.State
	m.StartsAt = s.StartsAt
	m.EndsAt = s.EndsAt
	m.RenewedAt = s.RenewedAt
}

// SubscriptionModelFromDomain creates a new persistence model from a domain Subscription.
func SubscriptionModelFromDomain(s *billing.Subscription) *SubscriptionModel {
	m := &SubscriptionModel{}
	m.FromDomain(s)
	return m
}

// RecurringOrderModel is the persistence model for the RecurringOrder aggregate.
type RecurringOrderModel struct {
	StoreAggregateModel
	Type              string               `gorm:"type:varchar(50);not null"`
	CustomerID        uuid.UUID            `gorm:"type:uuid;not null;index"`
	BillingScheduleID uuid.UUID            `gorm:"type:uuid;not null"`
	PeriodStart       time.Time            `gorm:"not null"`
	PeriodEnd         time.Time            `gorm:"not null;index:idx_recurring_orders_state_end,priority:2"`
	Currency          string               `gorm:"type:varchar(3);not null"`
	State             billing.OrderState   `gorm:"type:varchar(20);not null;index:idx_recurring_orders_state_end,priority:1"`
	PaymentMethodID   *uuid.UUID           `gorm:"type:uuid"`
	DeclinedAttempts  int                  `gorm:"not null;default:0"`
	LastDeclineReason string               `gorm:"type:varchar(500)"`
	PlacedAt          *time.Time
	CompletedAt       *time.Time
	FailedAt          *time.Time
	LineItems         []OrderLineItemModel `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the table name for GORM
func (RecurringOrderModel) TableName() string {
	return "recurring_orders"
}

// ToDomain converts the persistence model to a domain RecurringOrder.
func (m *RecurringOrderModel) ToDomain() (*billing.RecurringOrder, error) {
	period, err := billing.NewBillingPeriod(m.PeriodStart, m.PeriodEnd)
	if err != nil {
		return nil, err
	}
	o := &billing.RecurringOrder{
		Type:              m.Type,
		CustomerID:        m.CustomerID,
		BillingScheduleID: m.BillingScheduleID,
		BillingPeriod:     period,
		Currency:          valueobject.Currency(m.Currency),
		LineItems:         make([]billing.OrderLineItem, 0, len(m.LineItems)),
		State:             m.State,
		PaymentMethodID:   m.PaymentMethodID,
		DeclinedAttempts:  m.DeclinedAttempts,
		LastDeclineReason: m.LastDeclineReason,
		PlacedAt:          m.PlacedAt,
		CompletedAt:       m.CompletedAt,
		FailedAt:          m.FailedAt,
	}
	m.PopulateStoreAggregateRoot(&o.StoreAggregateRoot)
	for i := range m.LineItems {
		item, err := m.LineItems[i].ToDomain(o.Currency)
		if err != nil {
			return nil, err
		}
		o.LineItems = append(o.LineItems, item)
	}
	return o, nil
}

// FromDomain populates the persistence model from a domain RecurringOrder.
func (m *RecurringOrderModel) FromDomain(o *billing.RecurringOrder) {
	m.FromDomainStoreAggregateRoot(o.StoreAggregateRoot)
	m.Type = o.Type
	m.CustomerID = o.CustomerID
	m.BillingScheduleID = o.BillingScheduleID
	m.PeriodStart = o.BillingPeriod.Start()
	m.PeriodEnd = o.BillingPeriod.End()
	m.Currency = string(o.Currency)
	m.State = o.State
	m.PaymentMethodID = o.PaymentMethodID
	m.DeclinedAttempts = o.DeclinedAttempts
	m.LastDeclineReason = o.LastDeclineReason
	m.PlacedAt = o.PlacedAt
	m.CompletedAt = o.CompletedAt
	m.FailedAt = o.FailedAt
	m.LineItems = make([]OrderLineItemModel, len(o.LineItems))
	for i := range o.LineItems {
		m.LineItems[i].FromDomain(o.ID, &o.LineItems[i], i)
	}
}

// RecurringOrderModelFromDomain creates a new persistence model from a domain RecurringOrder.
func RecurringOrderModelFromDomain(o *billing.RecurringOrder) *RecurringOrderModel {
	m := &RecurringOrderModel{}
	m.FromDomain(o)
	return m
}

// OrderLineItemModel is the persistence model for a recurring order line item.
type OrderLineItemModel struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	SubscriptionID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position           int             `gorm:"not null;default:0"`
	PurchasedEntityRef string          `gorm:"type:varchar(100)"`
	Title              string          `gorm:"type:varchar(255);not null"`
	Quantity           decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice          decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PeriodStart        time.Time       `gorm:"not null"`
	PeriodEnd          time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderLineItemModel) TableName() string {
	return "recurring_order_items"
}

// ToDomain converts the persistence model to a domain OrderLineItem.
func (m *OrderLineItemModel) ToDomain(currency valueobject.Currency) (billing.OrderLineItem, error) {
	period, err := billing.NewBillingPeriod(m.PeriodStart, m.PeriodEnd)
	if err != nil {
		return billing.OrderLineItem{}, err
	}
	price, err := valueobject.NewMoney(m.UnitPrice, currency)
	if err != nil {
		return billing.OrderLineItem{}, err
	}
	return billing.OrderLineItem{
		ID:                 m.ID,
		OrderID:            m.OrderID,
		SubscriptionID:     m.SubscriptionID,
		PurchasedEntityRef: m.PurchasedEntityRef,
		Title:              m.Title,
		Quantity:           m.Quantity,
		UnitPrice:          price,
		Period:             period,
	}, nil
}

// FromDomain populates the persistence model from a domain OrderLineItem.
func (m *OrderLineItemModel) FromDomain(orderID uuid.UUID, item *billing.OrderLineItem, position int) {
	m.ID = item.ID
	m.OrderID = orderID
	m.SubscriptionID = item.SubscriptionID
	m.Position = position
	m.PurchasedEntityRef = item.PurchasedEntityRef
	m.Title = item.Title
	m.Quantity = item.Quantity
	m.UnitPrice = item.UnitPrice.Amount()
	m.PeriodStart = item.Period.Start()
	m.PeriodEnd = item.Period.End()
}

// PaymentMethodModel is the persistence model for a stored payment method.
type PaymentMethodModel struct {
	BaseModel
	StoreID            uuid.UUID `gorm:"type:uuid;not null;index"`
	CustomerID         uuid.UUID `gorm:"type:uuid;not null;index"`
	GatewayCustomerRef string    `gorm:"type:varchar(100)"`
	GatewayMethodRef   string    `gorm:"type:varchar(100);not null"`
	Label              string    `gorm:"type:varchar(200)"`
}

// TableName returns the table name for GORM
func (PaymentMethodModel) TableName() string {
	return "payment_methods"
}

// ToDomain converts the persistence model to a domain PaymentMethod.
func (m *PaymentMethodModel) ToDomain() *billing.PaymentMethod {
	return &billing.PaymentMethod{
		BaseEntity:         m.BaseModel.ToDomain(),
		StoreID:            m.StoreID,
		CustomerID:         m.CustomerID,
		GatewayCustomerRef: m.GatewayCustomerRef,
		GatewayMethodRef:   m.GatewayMethodRef,
		Label:              m.Label,
	}
}

// FromDomain populates the persistence model from a domain PaymentMethod.
func (m *PaymentMethodModel) FromDomain(p *billing.PaymentMethod) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.StoreID = p.StoreID
	m.CustomerID = p.CustomerID
	m.GatewayCustomerRef = p.GatewayCustomerRef
	m.GatewayMethodRef = p.GatewayMethodRef
	m.Label = p.Label
}

// LicenseModel is the persistence model for a license.
type LicenseModel struct {
	BaseModel
	StoreID            uuid.UUID            `gorm:"type:uuid;not null;index"`
	SubscriptionID     uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex"`
	CustomerID         uuid.UUID            `gorm:"type:uuid;not null;index"`
	PurchasedEntityRef string               `gorm:"type:varchar(100)"`
	State              billing.LicenseState `gorm:"type:varchar(20);not null"`
	ExpiresAt          time.Time            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LicenseModel) TableName() string {
	return "licenses"
}

// ToDomain converts the persistence model to a domain License.
func (m *LicenseModel) ToDomain() *billing.License {
	return &billing.License{
		BaseEntity:         m.BaseModel.ToDomain(),
		StoreID:            m.StoreID,
		SubscriptionID:     m.SubscriptionID,
		CustomerID:         m.CustomerID,
		PurchasedEntityRef: m.PurchasedEntityRef,
		State:              m.State,
		ExpiresAt:          m.ExpiresAt,
	}
}

// FromDomain populates the persistence model from a domain License.
func (m *LicenseModel) FromDomain(l *billing.License) {
	m.FromDomainBaseEntity(l.BaseEntity)
	m.StoreID = l.StoreID
	m.SubscriptionID = l.SubscriptionID
	m.CustomerID = l.CustomerID
	m.PurchasedEntityRef = l.PurchasedEntityRef
	m.State = l.State
	m.ExpiresAt = l.ExpiresAt
}

// BillingModels lists every billing model for auto-migration in tests.
func BillingModels() []any {
	return []any{
		&BillingScheduleModel{},
		&SubscriptionModel{},
		&RecurringOrderModel{},
		&OrderLineItemModel{},
		&PaymentMethodModel{},
		&LicenseModel{},
	}
}
