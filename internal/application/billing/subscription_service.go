package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubscriptionService handles subscription-related business operations
type SubscriptionService struct {
	subscriptions  billing.SubscriptionRepository
	orders         billing.RecurringOrderRepository
	schedules      billing.BillingScheduleRepository
	paymentMethods billing.PaymentMethodRepository
	manager        *RecurringOrderManager
	strategies     StrategyResolver
	eventPublisher shared.EventPublisher
	now            func() time.Time
	logger         *zap.Logger
}

// SubscriptionServiceConfig contains the dependencies of SubscriptionService
type SubscriptionServiceConfig struct {
	Subscriptions  billing.SubscriptionRepository
	Orders         billing.RecurringOrderRepository
	Schedules      billing.BillingScheduleRepository
	PaymentMethods billing.PaymentMethodRepository
	Manager        *RecurringOrderManager
	Strategies     StrategyResolver
	Clock          func() time.Time
	Logger         *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(cfg SubscriptionServiceConfig) *SubscriptionService {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &SubscriptionService{
		subscriptions:  cfg.Subscriptions,
		orders:         cfg.Orders,
		schedules:      cfg.Schedules,
		paymentMethods: cfg.PaymentMethods,
		manager:        cfg.Manager,
		strategies:     cfg.Strategies,
		now:            cfg.Clock,
		logger:         cfg.Logger,
	}
}

// SetEventPublisher sets the event publisher for domain events
func (s *SubscriptionService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// CreateSubscription creates a pending subscription
func (s *SubscriptionService) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionResponse, error) {
	schedule, err := s.schedules.FindByID(ctx, req.BillingScheduleID)
	if err != nil {
		return nil, err
	}
	if !schedule.IsEnabled() {
		return nil, shared.NewDomainError(shared.ErrInvalidState.Code, "Billing schedule is disabled")
	}

	subType, err := s.strategies.GetSubscriptionType(req.Type)
	if err != nil {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, err.Error())
	}

	if req.PaymentMethodID != nil {
		method, err := s.paymentMethods.FindByID(ctx, *req.PaymentMethodID)
		if err != nil {
			return nil, err
		}
		if method.CustomerID != req.CustomerID {
			return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Payment method belongs to another customer")
		}
	}

	currency := valueobject.DefaultCurrency
	if req.Currency != "" {
		if currency, err = valueobject.ParseCurrency(req.Currency); err != nil {
			return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, err.Error())
		}
	}
	unitPrice, err := valueobject.NewMoney(req.UnitPrice, currency)
	if err != nil {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, err.Error())
	}
	now := s.now()
	quantity := decimal.NewFromInt(1)
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	sub, err := billing.NewSubscription(billing.SubscriptionParams{
		Type:               subType.Name(),
		StoreID:            req.StoreID,
		CustomerID:         req.CustomerID,
		BillingScheduleID:  schedule.ID,
		PaymentMethodID:    req.PaymentMethodID,
		PurchasedEntityRef: req.PurchasedEntityRef,
		Title:              req.Title,
		Quantity:           quantity,
		UnitPrice:          unitPrice,
		StartsAt:           req.StartsAt,
		EndsAt:             req.EndsAt,
	}, now)
	if err != nil {
		return nil, err
	}

	// Reject subscriptions the type cannot bill before they are stored
	probe := billing.MustBillingPeriod(now, now.Add(time.Hour))
	if _, err := subType.CollectCharges(sub, probe); err != nil {
		return nil, err
	}

	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}

	resp := ToSubscriptionResponse(sub)
	return &resp, nil
}

// ActivateSubscription activates a pending subscription and creates its first order
func (s *SubscriptionService) ActivateSubscription(ctx context.Context, id uuid.UUID, req ActivateSubscriptionRequest) (*RecurringOrderResponse, error) {
	sub, err := s.subscriptions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if req.StartsAt != nil && sub.StartsAt == nil {
		start := *req.StartsAt
		sub.StartsAt = &start
	}
	if err := sub.Activate(now); err != nil {
		return nil, err
	}
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}
	s.publish(ctx, sub)

	order, err := s.manager.EnsureOrder(ctx, sub, now)
	if err != nil {
		return nil, fmt.Errorf("create initial order for subscription %s: %w", id, err)
	}

	s.logger.Info("Subscription activated",
		zap.String("subscription_id", id.String()),
		zap.String("order_id", order.ID.String()))
	resp := ToRecurringOrderResponse(order)
	return &resp, nil
}

// CancelSubscription cancels a subscription and refreshes its draft orders so
// that charges stop at the cancellation time
func (s *SubscriptionService) CancelSubscription(ctx context.Context, id uuid.UUID) (*SubscriptionResponse, error) {
	sub, err := s.subscriptions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := sub.Cancel(now); err != nil {
		return nil, err
	}
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}
	s.publish(ctx, sub)

	drafts, err := s.orders.FindDraftBySubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, order := range drafts {
		if err := s.manager.RefreshOrder(ctx, order, now); err != nil {
			return nil, fmt.Errorf("refresh order %s: %w", order.ID, err)
		}
	}

	s.logger.Info("Subscription canceled",
		zap.String("subscription_id", id.String()),
		zap.Int("refreshed_orders", len(drafts)))
	resp := ToSubscriptionResponse(sub)
	return &resp, nil
}

// GetSubscription retrieves a subscription by ID
func (s *SubscriptionService) GetSubscription(ctx context.Context, id uuid.UUID) (*SubscriptionResponse, error) {
	sub, err := s.subscriptions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToSubscriptionResponse(sub)
	return &resp, nil
}

// ListOrdersForSubscription lists the recurring orders of a subscription, newest first
func (s *SubscriptionService) ListOrdersForSubscription(ctx context.Context, id uuid.UUID) ([]RecurringOrderResponse, error) {
	if _, err := s.subscriptions.FindByID(ctx, id); err != nil {
		return nil, err
	}
	orders, err := s.orders.FindBySubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToRecurringOrderResponses(orders), nil
}

// GetOrder retrieves a recurring order by ID
func (s *SubscriptionService) GetOrder(ctx context.Context, id uuid.UUID) (*RecurringOrderResponse, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToRecurringOrderResponse(order)
	return &resp, nil
}

// RefreshOrder re-collects the charges of a draft order
func (s *SubscriptionService) RefreshOrder(ctx context.Context, id uuid.UUID) (*RecurringOrderResponse, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.manager.RefreshOrder(ctx, order, s.now()); err != nil {
		return nil, err
	}
	resp := ToRecurringOrderResponse(order)
	return &resp, nil
}

// AddPaymentMethod stores a payment method for a customer
func (s *SubscriptionService) AddPaymentMethod(ctx context.Context, req AddPaymentMethodRequest) (*PaymentMethodResponse, error) {
	method, err := billing.NewPaymentMethod(req.StoreID, req.CustomerID, req.GatewayCustomerRef, req.GatewayMethodRef, req.Label, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.paymentMethods.Save(ctx, method); err != nil {
		return nil, err
	}
	resp := ToPaymentMethodResponse(method)
	return &resp, nil
}

func (s *SubscriptionService) publish(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	agg.ClearDomainEvents()
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish domain events",
			zap.String("aggregate_id", agg.GetID().String()),
			zap.Error(err))
	}
}
