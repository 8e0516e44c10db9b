package billing

import (
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Billing schedule DTOs
// =============================================================================

// CreateScheduleRequest represents a request to create a billing schedule
type CreateScheduleRequest struct {
	Label              string         `json:"label" binding:"required,min=1,max=200"`
	BillingType        string         `json:"billing_type" binding:"required,oneof=prepaid postpaid"`
	StrategyID         string         `json:"strategy_id" binding:"required"`
	StrategyConfig     map[string]any `json:"strategy_config"`
	ProraterID         string         `json:"prorater_id"`
	DunningSchedule    []int          `json:"dunning_schedule" binding:"dive,min=0"`
	DunningDisposition string         `json:"dunning_disposition" binding:"required,oneof=suspend cancel"`
}

// ScheduleResponse represents a billing schedule in API responses
type ScheduleResponse struct {
	ID                 uuid.UUID      `json:"id"`
	Label              string         `json:"label"`
	BillingType        string         `json:"billing_type"`
	StrategyID         string         `json:"strategy_id"`
	StrategyConfig     map[string]any `json:"strategy_config,omitempty"`
	ProraterID         string         `json:"prorater_id"`
	DunningSchedule    []int          `json:"dunning_schedule"`
	DunningDisposition string         `json:"dunning_disposition"`
	MaxRetries         int            `json:"max_retries"`
	Status             string         `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ToScheduleResponse converts a domain BillingSchedule to ScheduleResponse
func ToScheduleResponse(s *billing.BillingSchedule) ScheduleResponse {
	dunning := make([]int, len(s.DunningSchedule))
	copy(dunning, s.DunningSchedule)
	return ScheduleResponse{
		ID:                 s.ID,
		Label:              s.Label,
		BillingType:        string(s.BillingType),
		StrategyID:         s.StrategyID,
		StrategyConfig:     s.StrategyConfig,
		ProraterID:         s.ProraterID,
		DunningSchedule:    dunning,
		DunningDisposition: string(s.DunningDisposition),
		MaxRetries:         s.MaxRetries(),
		Status:             string(s.Status),
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

// PeriodResponse represents a billing period in API responses
type PeriodResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ToPeriodResponse converts a BillingPeriod to PeriodResponse
func ToPeriodResponse(p billing.BillingPeriod) PeriodResponse {
	return PeriodResponse{Start: p.Start(), End: p.End()}
}

// =============================================================================
// Payment method DTOs
// =============================================================================

// AddPaymentMethodRequest represents a request to store a payment method
type AddPaymentMethodRequest struct {
	StoreID            uuid.UUID `json:"store_id" binding:"required"`
	CustomerID         uuid.UUID `json:"customer_id" binding:"required"`
	GatewayCustomerRef string    `json:"gateway_customer_ref" binding:"max=255"`
	GatewayMethodRef   string    `json:"gateway_method_ref" binding:"required,max=255"`
	Label              string    `json:"label" binding:"max=200"`
}

// PaymentMethodResponse represents a payment method in API responses
type PaymentMethodResponse struct {
	ID                 uuid.UUID `json:"id"`
	StoreID            uuid.UUID `json:"store_id"`
	CustomerID         uuid.UUID `json:"customer_id"`
	GatewayCustomerRef string    `json:"gateway_customer_ref,omitempty"`
	GatewayMethodRef   string    `json:"gateway_method_ref"`
	Label              string    `json:"label,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// ToPaymentMethodResponse converts a domain PaymentMethod to PaymentMethodResponse
func ToPaymentMethodResponse(m *billing.PaymentMethod) PaymentMethodResponse {
	return PaymentMethodResponse{
		ID:                 m.ID,
		StoreID:            m.StoreID,
		CustomerID:         m.CustomerID,
		GatewayCustomerRef: m.GatewayCustomerRef,
		GatewayMethodRef:   m.GatewayMethodRef,
		Label:              m.Label,
		CreatedAt:          m.CreatedAt,
	}
}

// =============================================================================
// Subscription DTOs
// =============================================================================

// CreateSubscriptionRequest represents a request to create a subscription
type CreateSubscriptionRequest struct {
	Type               string           `json:"type"`
	StoreID            uuid.UUID        `json:"store_id" binding:"required"`
	CustomerID         uuid.UUID        `json:"customer_id" binding:"required"`
	BillingScheduleID  uuid.UUID        `json:"billing_schedule_id" binding:"required"`
	PaymentMethodID    *uuid.UUID       `json:"payment_method_id"`
	PurchasedEntityRef string           `json:"purchased_entity_ref" binding:"max=255"`
	Title              string           `json:"title" binding:"required,min=1,max=255"`
	Quantity           *decimal.Decimal `json:"quantity"`
	UnitPrice          decimal.Decimal  `json:"unit_price" binding:"required"`
	Currency           string           `json:"currency" binding:"omitempty,len=3"`
	StartsAt           *time.Time       `json:"starts_at"`
	EndsAt             *time.Time       `json:"ends_at"`
}

// ActivateSubscriptionRequest represents a request to activate a subscription
type ActivateSubscriptionRequest struct {
	StartsAt *time.Time `json:"starts_at"`
}

// SubscriptionResponse represents a subscription in API responses
type SubscriptionResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Type               string          `json:"type"`
	StoreID            uuid.UUID       `json:"store_id"`
	CustomerID         uuid.UUID       `json:"customer_id"`
	BillingScheduleID  uuid.UUID       `json:"billing_schedule_id"`
	PaymentMethodID    *uuid.UUID      `json:"payment_method_id,omitempty"`
	PurchasedEntityRef string          `json:"purchased_entity_ref,omitempty"`
	Title              string          `json:"title"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Currency           string          `json:"currency"`
	State              string          `json:"state"`
	StartsAt           *time.Time      `json:"starts_at,omitempty"`
	EndsAt             *time.Time      `json:"ends_at,omitempty"`
	RenewedAt          *time.Time      `json:"renewed_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int             `json:"version"`
}

// ToSubscriptionResponse converts a domain Subscription to SubscriptionResponse
func ToSubscriptionResponse(s *billing.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:                 s.ID,
		Type:               s.Type,
		StoreID:            s.StoreID,
		CustomerID:         s.CustomerID,
		BillingScheduleID:  s.BillingScheduleID,
		PaymentMethodID:    s.PaymentMethodID,
		PurchasedEntityRef: s.PurchasedEntityRef,
		Title:              s.Title,
		Quantity:           s.Quantity,
		UnitPrice:          s.UnitPrice.Amount(),
		Currency:           string(s.UnitPrice.Currency()),
		State:              string(s.State),
		StartsAt:           s.StartsAt,
		EndsAt:             s.EndsAt,
		RenewedAt:          s.RenewedAt,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
		Version:            s.Version,
	}
}

// =============================================================================
// Recurring order DTOs
// =============================================================================

// OrderLineItemResponse represents an order line item in API responses
type OrderLineItemResponse struct {
	ID                 uuid.UUID       `json:"id"`
	SubscriptionID     uuid.UUID       `json:"subscription_id"`
	PurchasedEntityRef string          `json:"purchased_entity_ref,omitempty"`
	Title              string          `json:"title"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	Period             PeriodResponse  `json:"period"`
}

// RecurringOrderResponse represents a recurring order in API responses
type RecurringOrderResponse struct {
	ID                uuid.UUID               `json:"id"`
	Type              string                  `json:"type"`
	StoreID           uuid.UUID               `json:"store_id"`
	CustomerID        uuid.UUID               `json:"customer_id"`
	BillingScheduleID uuid.UUID               `json:"billing_schedule_id"`
	BillingPeriod     PeriodResponse          `json:"billing_period"`
	Currency          string                  `json:"currency"`
	State             string                  `json:"state"`
	TotalPrice        decimal.Decimal         `json:"total_price"`
	LineItems         []OrderLineItemResponse `json:"line_items"`
	PaymentMethodID   *uuid.UUID              `json:"payment_method_id,omitempty"`
	DeclinedAttempts  int                     `json:"declined_attempts"`
	LastDeclineReason string                  `json:"last_decline_reason,omitempty"`
	PlacedAt          *time.Time              `json:"placed_at,omitempty"`
	CompletedAt       *time.Time              `json:"completed_at,omitempty"`
	FailedAt          *time.Time              `json:"failed_at,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
	Version           int                     `json:"version"`
}

// ToRecurringOrderResponse converts a domain RecurringOrder to RecurringOrderResponse
func ToRecurringOrderResponse(o *billing.RecurringOrder) RecurringOrderResponse {
	items := make([]OrderLineItemResponse, len(o.LineItems))
	for i := range o.LineItems {
		item := &o.LineItems[i]
		items[i] = OrderLineItemResponse{
			ID:                 item.ID,
			SubscriptionID:     item.SubscriptionID,
			PurchasedEntityRef: item.PurchasedEntityRef,
			Title:              item.Title,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice.Amount(),
			TotalPrice:         item.TotalPrice().Amount(),
			Period:             ToPeriodResponse(item.Period),
		}
	}
	return RecurringOrderResponse{
		ID:                o.ID,
		Type:              o.Type,
		StoreID:           o.StoreID,
		CustomerID:        o.CustomerID,
		BillingScheduleID: o.BillingScheduleID,
		BillingPeriod:     ToPeriodResponse(o.BillingPeriod),
		Currency:          string(o.Currency),
		State:             string(o.State),
		TotalPrice:        o.TotalPrice().Amount(),
		LineItems:         items,
		PaymentMethodID:   o.PaymentMethodID,
		DeclinedAttempts:  o.DeclinedAttempts,
		LastDeclineReason: o.LastDeclineReason,
		PlacedAt:          o.PlacedAt,
		CompletedAt:       o.CompletedAt,
		FailedAt:          o.FailedAt,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		Version:           o.Version,
	}
}

// ToRecurringOrderResponses converts a slice of orders
func ToRecurringOrderResponses(orders []*billing.RecurringOrder) []RecurringOrderResponse {
	responses := make([]RecurringOrderResponse, len(orders))
	for i, o := range orders {
		responses[i] = ToRecurringOrderResponse(o)
	}
	return responses
}

// CronRunResponse reports a manual cron run
type CronRunResponse struct {
	Scanned       int       `json:"scanned"`
	CloseEnqueued int       `json:"close_enqueued"`
	RenewEnqueued int       `json:"renew_enqueued"`
	Duplicates    int       `json:"duplicates"`
	Skipped       int       `json:"skipped"`
	RanAt         time.Time `json:"ran_at"`
}

// ToCronRunResponse converts a CronResult to CronRunResponse
func ToCronRunResponse(r CronResult, at time.Time) CronRunResponse {
	return CronRunResponse{
		Scanned:       r.Scanned,
		CloseEnqueued: r.CloseEnqueued,
		RenewEnqueued: r.RenewEnqueued,
		Duplicates:    r.Duplicates,
		Skipped:       r.Skipped,
		RanAt:         at,
	}
}
