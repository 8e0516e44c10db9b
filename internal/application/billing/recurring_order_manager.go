package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecurringOrderManager drives the recurring order lifecycle: it creates the
// first order of a subscription, keeps draft orders in sync with their
// subscriptions, pays orders and creates their successors.
//
// Calls for the same order must not run concurrently; the task processor
// serialises them with an OrderLocker.
type RecurringOrderManager struct {
	subscriptions  billing.SubscriptionRepository
	orders         billing.RecurringOrderRepository
	schedules      billing.BillingScheduleRepository
	paymentMethods billing.PaymentMethodRepository
	gateway        billing.PaymentGateway
	strategies     StrategyResolver
	eventPublisher shared.EventPublisher
	metrics        Metrics
	logger         *zap.Logger
}

// RecurringOrderManagerConfig contains the dependencies of RecurringOrderManager
type RecurringOrderManagerConfig struct {
	Subscriptions  billing.SubscriptionRepository
	Orders         billing.RecurringOrderRepository
	Schedules      billing.BillingScheduleRepository
	PaymentMethods billing.PaymentMethodRepository
	Gateway        billing.PaymentGateway
	Strategies     StrategyResolver
	EventPublisher shared.EventPublisher
	Metrics        Metrics
	Logger         *zap.Logger
}

// NewRecurringOrderManager creates a new RecurringOrderManager
func NewRecurringOrderManager(cfg RecurringOrderManagerConfig) *RecurringOrderManager {
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &RecurringOrderManager{
		subscriptions:  cfg.Subscriptions,
		orders:         cfg.Orders,
		schedules:      cfg.Schedules,
		paymentMethods: cfg.PaymentMethods,
		gateway:        cfg.Gateway,
		strategies:     cfg.Strategies,
		eventPublisher: cfg.EventPublisher,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}
}

// scheduleContext bundles a billing schedule with its resolved strategies
type scheduleContext struct {
	schedule *billing.BillingSchedule
	strategy billing.BillingScheduleStrategy
	prorater billing.Prorater
}

func (m *RecurringOrderManager) loadSchedule(ctx context.Context, id uuid.UUID) (*scheduleContext, error) {
	schedule, err := m.schedules.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load billing schedule %s: %w", id, err)
	}
	strat, err := m.strategies.ScheduleStrategyFor(schedule)
	if err != nil {
		return nil, err
	}
	prorater, err := m.strategies.GetProrater(schedule.ProraterID)
	if err != nil {
		return nil, err
	}
	return &scheduleContext{schedule: schedule, strategy: strat, prorater: prorater}, nil
}

// EnsureOrder creates the first draft order of an active subscription. If the
// subscription already has a draft order it is returned unchanged.
func (m *RecurringOrderManager) EnsureOrder(ctx context.Context, sub *billing.Subscription, now time.Time) (*billing.RecurringOrder, error) {
	if sub.StartsAt == nil || sub.State != billing.SubscriptionStateActive {
		return nil, shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Subscription %s must be active to start billing", sub.ID))
	}

	drafts, err := m.orders.FindDraftBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if len(drafts) > 0 {
		return drafts[0], nil
	}

	sc, err := m.loadSchedule(ctx, sub.BillingScheduleID)
	if err != nil {
		return nil, err
	}
	subType, err := m.strategies.GetSubscriptionType(sub.Type)
	if err != nil {
		return nil, err
	}

	period := sc.strategy.GenerateFirstPeriod(*sub.StartsAt)
	order, err := billing.NewRecurringOrder(sub.StoreID, sub.CustomerID, sc.schedule.ID, period, sub.UnitPrice.Currency(), now)
	if err != nil {
		return nil, err
	}

	charges, err := m.collectCharges(sc, subType, sub, period)
	if err != nil {
		return nil, err
	}
	if _, err := order.ReconcileLineItems(charges, now); err != nil {
		return nil, err
	}
	if err := subType.OnActivate(ctx, sub, order); err != nil {
		return nil, err
	}
	if err := m.orders.Save(ctx, order); err != nil {
		return nil, err
	}

	m.publish(ctx, order)
	m.metrics.RecordOrderCreated(ctx, "ensure")
	m.logger.Info("Created initial recurring order",
		zap.String("order_id", order.ID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.Stringer("period", period))
	return order, nil
}

// RefreshOrder re-collects the charges of a draft order for its existing
// billing period and reconciles the line items. Suspended subscriptions are
// left out. Nothing is written when the charges did not change.
func (m *RecurringOrderManager) RefreshOrder(ctx context.Context, order *billing.RecurringOrder, now time.Time) error {
	return m.refresh(ctx, order, now, uuid.Nil)
}

// refresh is RefreshOrder with the charges of the released subscription dropped
func (m *RecurringOrderManager) refresh(ctx context.Context, order *billing.RecurringOrder, now time.Time, released uuid.UUID) error {
	if !order.IsDraft() {
		return billing.ErrOrderNotDraft
	}
	subs, err := m.subscriptions.FindByIDs(ctx, order.SubscriptionIDs())
	if err != nil {
		return err
	}
	sc, err := m.loadSchedule(ctx, order.BillingScheduleID)
	if err != nil {
		return err
	}

	var charges []billing.SubscriptionCharge
	for _, sub := range subs {
		if sub.ID == released || sub.State == billing.SubscriptionStateSuspended {
			continue
		}
		subType, err := m.strategies.GetSubscriptionType(sub.Type)
		if err != nil {
			return err
		}
		subCharges, err := m.collectCharges(sc, subType, sub, order.BillingPeriod)
		if err != nil {
			return err
		}
		charges = append(charges, subCharges...)
	}

	result, err := order.ReconcileLineItems(charges, now)
	if err != nil {
		return err
	}
	if !result.Changed() {
		return nil
	}
	if err := m.orders.Save(ctx, order); err != nil {
		return err
	}
	m.logger.Debug("Refreshed recurring order",
		zap.String("order_id", order.ID.String()),
		zap.Int("created", len(result.Created)),
		zap.Int("updated", len(result.Updated)),
		zap.Int("removed", len(result.Removed)))
	return nil
}

// ReleaseSubscription hands a subscription that dunning suspended or canceled
// to its subscription type and removes its charges from every draft order,
// so the orders renewed ahead of the disposition do not bill it. Safe to
// repeat.
func (m *RecurringOrderManager) ReleaseSubscription(ctx context.Context, sub *billing.Subscription, disposition billing.DunningDisposition, now time.Time) error {
	subType, err := m.strategies.GetSubscriptionType(sub.Type)
	if err != nil {
		return err
	}
	if err := subType.OnDisposition(ctx, sub, disposition); err != nil {
		return err
	}

	drafts, err := m.orders.FindDraftBySubscription(ctx, sub.ID)
	if err != nil {
		return err
	}
	for _, draft := range drafts {
		if err := m.refresh(ctx, draft, now, sub.ID); err != nil {
			return fmt.Errorf("release subscription %s from order %s: %w", sub.ID, draft.ID, err)
		}
		m.logger.Info("Released subscription from draft order",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("order_id", draft.ID.String()),
			zap.Stringer("amount", draft.TotalPrice()))
	}
	return nil
}

// CloseOrder places the order and charges its total to the payment method of
// its subscriptions. A draft without a billable subscription is refreshed
// first so suspended or ended subscriptions are charged for no more than
// they used. A decline is returned unchanged (wrapped) and leaves the
// order in needs_payment; the order is never left in draft once a close was
// attempted. Orders with a zero total complete without a payment method.
// Completed orders are a no-op.
func (m *RecurringOrderManager) CloseOrder(ctx context.Context, order *billing.RecurringOrder, now time.Time) error {
	switch order.State {
	case billing.OrderStateCompleted:
		return nil
	case billing.OrderStateFailed:
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Order %s already failed", order.ID))
	case billing.OrderStateDraft:
		billable, err := m.hasBillableSubscription(ctx, order)
		if err != nil {
			return err
		}
		if !billable {
			if err := m.RefreshOrder(ctx, order, now); err != nil {
				return err
			}
		}
		if err := order.Place(now); err != nil {
			return err
		}
		if err := m.orders.Save(ctx, order); err != nil {
			return err
		}
		m.publish(ctx, order)
	}

	total := order.TotalPrice()
	if total.IsPositive() {
		method, err := m.selectPaymentMethod(ctx, order)
		if err != nil {
			if billing.IsDecline(err) {
				return m.recordDecline(ctx, order, err, now)
			}
			return err
		}
		order.AssignPaymentMethod(method.ID)

		result, err := m.gateway.Charge(ctx, billing.ChargeRequest{
			OrderID:        order.ID,
			StoreID:        order.StoreID,
			CustomerID:     order.CustomerID,
			PaymentMethod:  method,
			Amount:         total,
			IdempotencyKey: order.PaymentIdempotencyKey(),
			Description:    fmt.Sprintf("Recurring order %s %s", order.ID, order.BillingPeriod),
		})
		if err != nil {
			if billing.IsDecline(err) {
				m.metrics.RecordChargeAttempt(ctx, "declined", total.MinorUnitAmount(), string(total.Currency()))
				return m.recordDecline(ctx, order, err, now)
			}
			m.metrics.RecordChargeAttempt(ctx, "error", total.MinorUnitAmount(), string(total.Currency()))
			return fmt.Errorf("charge order %s: %w", order.ID, err)
		}
		m.metrics.RecordChargeAttempt(ctx, "succeeded", total.MinorUnitAmount(), string(total.Currency()))
		m.logger.Info("Charged recurring order",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", result.TransactionID),
			zap.Stringer("amount", total))
	}

	if err := order.MarkPaid(now); err != nil {
		return err
	}
	if err := m.orders.Save(ctx, order); err != nil {
		return err
	}
	m.publish(ctx, order)
	return nil
}

func (m *RecurringOrderManager) recordDecline(ctx context.Context, order *billing.RecurringOrder, cause error, now time.Time) error {
	if err := order.RecordDecline(cause.Error(), now); err != nil {
		return err
	}
	if err := m.orders.Save(ctx, order); err != nil {
		return err
	}
	m.logger.Warn("Recurring order payment declined",
		zap.String("order_id", order.ID.String()),
		zap.Int("declined_attempts", order.DeclinedAttempts),
		zap.Error(cause))
	return fmt.Errorf("close order %s: %w", order.ID, cause)
}

func (m *RecurringOrderManager) hasBillableSubscription(ctx context.Context, order *billing.RecurringOrder) (bool, error) {
	subs, err := m.subscriptions.FindByIDs(ctx, order.SubscriptionIDs())
	if err != nil {
		return false, err
	}
	for _, sub := range subs {
		if sub.IsBillable() {
			return true, nil
		}
	}
	return false, nil
}

// selectPaymentMethod collects the payment methods of all subscriptions on the
// order and picks the most recently created one.
func (m *RecurringOrderManager) selectPaymentMethod(ctx context.Context, order *billing.RecurringOrder) (*billing.PaymentMethod, error) {
	subs, err := m.subscriptions.FindByIDs(ctx, order.SubscriptionIDs())
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(subs))
	for _, sub := range subs {
		if sub.PaymentMethodID != nil {
			ids = append(ids, *sub.PaymentMethodID)
		}
	}
	if len(ids) == 0 {
		return nil, billing.ErrPaymentMethodNotFound
	}
	methods, err := m.paymentMethods.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return billing.SelectPaymentMethod(methods)
}

// RenewOrder creates the draft order for the period following order. Subscriptions
// that end by the start of the next period are expired and left out. It returns
// nil when no subscription remains billable, and the existing draft when the
// next order was already created.
func (m *RecurringOrderManager) RenewOrder(ctx context.Context, order *billing.RecurringOrder, now time.Time) (*billing.RecurringOrder, error) {
	subs, err := m.subscriptions.FindByIDs(ctx, order.SubscriptionIDs())
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	sc, err := m.loadSchedule(ctx, order.BillingScheduleID)
	if err != nil {
		return nil, err
	}

	next := sc.strategy.GenerateNextPeriod(earliestStart(subs, order.BillingPeriod.Start()), order.BillingPeriod)

	billable := make([]*billing.Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.IsBillable() && sub.EndsBy(next.Start()) {
			if err := sub.Expire(now); err != nil {
				return nil, err
			}
			if err := m.subscriptions.Save(ctx, sub); err != nil {
				return nil, err
			}
			m.publish(ctx, sub)
			continue
		}
		if sub.IsBillable() {
			billable = append(billable, sub)
		}
	}
	if len(billable) == 0 {
		m.logger.Info("No billable subscription left, not renewing",
			zap.String("order_id", order.ID.String()))
		return nil, nil
	}

	if existing, err := m.findDraftForPeriod(ctx, billable[0].ID, next); err != nil || existing != nil {
		return existing, err
	}

	nextOrder, err := billing.NewRecurringOrder(order.StoreID, order.CustomerID, order.BillingScheduleID, next, order.Currency, now)
	if err != nil {
		return nil, err
	}

	types := make(map[uuid.UUID]billing.SubscriptionType, len(billable))
	var charges []billing.SubscriptionCharge
	for _, sub := range billable {
		subType, err := m.strategies.GetSubscriptionType(sub.Type)
		if err != nil {
			return nil, err
		}
		types[sub.ID] = subType
		subCharges, err := m.collectCharges(sc, subType, sub, next)
		if err != nil {
			return nil, err
		}
		charges = append(charges, subCharges...)
	}
	if _, err := nextOrder.ReconcileLineItems(charges, now); err != nil {
		return nil, err
	}

	for _, sub := range billable {
		if err := types[sub.ID].OnRenew(ctx, sub, order, nextOrder); err != nil {
			return nil, err
		}
	}
	if err := m.orders.Save(ctx, nextOrder); err != nil {
		return nil, err
	}
	for _, sub := range billable {
		sub.MarkRenewed(now)
		if err := m.subscriptions.Save(ctx, sub); err != nil {
			return nil, err
		}
		m.publish(ctx, sub)
	}

	m.publish(ctx, nextOrder)
	m.metrics.RecordOrderCreated(ctx, "renew")
	m.logger.Info("Renewed recurring order",
		zap.String("order_id", order.ID.String()),
		zap.String("next_order_id", nextOrder.ID.String()),
		zap.Stringer("period", next))
	return nextOrder, nil
}

func (m *RecurringOrderManager) findDraftForPeriod(ctx context.Context, subscriptionID uuid.UUID, period billing.BillingPeriod) (*billing.RecurringOrder, error) {
	drafts, err := m.orders.FindDraftBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		if d.BillingPeriod.Equals(period) {
			return d, nil
		}
	}
	return nil, nil
}

// collectCharges returns the charges of sub for the order covering period.
//
// Postpaid subscriptions pay for period itself, clamped to the subscription's
// start and end. Prepaid subscriptions pay for the following period in
// advance; their first order also carries the first period.
func (m *RecurringOrderManager) collectCharges(sc *scheduleContext, subType billing.SubscriptionType, sub *billing.Subscription, period billing.BillingPeriod) ([]billing.SubscriptionCharge, error) {
	if sub.StartsAt == nil {
		return nil, nil
	}
	first := sc.strategy.GenerateFirstPeriod(*sub.StartsAt)
	initial := first.Equals(period)

	var charges []billing.SubscriptionCharge
	if sc.schedule.BillingType == billing.BillingTypePostpaid || initial {
		current, err := m.chargesFor(sc, subType, sub, period, initial)
		if err != nil {
			return nil, err
		}
		charges = append(charges, current...)
	}
	if sc.schedule.BillingType == billing.BillingTypePrepaid && sub.IsBillable() {
		next := sc.strategy.GenerateNextPeriod(*sub.StartsAt, period)
		advance, err := m.chargesFor(sc, subType, sub, next, false)
		if err != nil {
			return nil, err
		}
		charges = append(charges, advance...)
	}
	return charges, nil
}

func (m *RecurringOrderManager) chargesFor(sc *scheduleContext, subType billing.SubscriptionType, sub *billing.Subscription, period billing.BillingPeriod, initial bool) ([]billing.SubscriptionCharge, error) {
	chargePeriod, ok := period.Clamp(sub.StartsAt, sub.EndsAt)
	if !ok {
		return nil, nil
	}
	collected, err := subType.CollectCharges(sub, chargePeriod)
	if err != nil {
		return nil, err
	}

	charges := make([]billing.SubscriptionCharge, 0, len(collected))
	for _, c := range collected {
		if !chargePeriod.Equals(period) {
			switch {
			case initial && chargePeriod.End().Equal(period.End()):
				c = c.WithUnitPrice(sc.prorater.ProrateInitial(c.UnitPrice(), sc.strategy, chargePeriod.Start()))
			default:
				c = c.WithUnitPrice(sc.prorater.ProrateRecurring(c.UnitPrice(), chargePeriod, period))
			}
		}
		charges = append(charges, billing.SubscriptionCharge{SubscriptionID: sub.ID, Charge: c})
	}
	return charges, nil
}

func (m *RecurringOrderManager) publish(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	agg.ClearDomainEvents()
	if m.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := m.eventPublisher.Publish(ctx, events...); err != nil {
		m.logger.Warn("Failed to publish domain events",
			zap.String("aggregate_id", agg.GetID().String()),
			zap.Error(err))
	}
}

func earliestStart(subs []*billing.Subscription, fallback time.Time) time.Time {
	start := fallback
	found := false
	for _, sub := range subs {
		if sub.StartsAt != nil && (!found || sub.StartsAt.Before(start)) {
			start = *sub.StartsAt
			found = true
		}
	}
	return start
}
