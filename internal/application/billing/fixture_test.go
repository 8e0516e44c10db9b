package billing

import (
	"context"
	"testing"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
	strategyregistry "github.com/erp/recurring-billing/internal/infrastructure/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func usd(amount string) valueobject.Money {
	return valueobject.MustMoney(amount, valueobject.USD)
}

type fixture struct {
	storeID    uuid.UUID
	customerID uuid.UUID
	schedule   *billing.BillingSchedule
	method     *billing.PaymentMethod

	subs      *memorySubscriptionRepo
	orders    *memoryOrderRepo
	schedules *memoryScheduleRepo
	methods   *memoryPaymentMethodRepo
	licenses  *memoryLicenseRepo
	gateway   *MockPaymentGateway
	notifier  *MockNotifier
	events    *recordingPublisher

	registry *strategyregistry.StrategyRegistry
	manager  *RecurringOrderManager
	dunning  *DunningScheduler
}

type fixtureOption func(*billing.BillingScheduleParams)

func withBillingType(t billing.BillingType) fixtureOption {
	return func(p *billing.BillingScheduleParams) { p.BillingType = t }
}

func withStrategy(id string, config map[string]any) fixtureOption {
	return func(p *billing.BillingScheduleParams) {
		p.StrategyID = id
		p.StrategyConfig = config
	}
}

func withDunning(days []int, d billing.DunningDisposition) fixtureOption {
	return func(p *billing.BillingScheduleParams) {
		p.DunningSchedule = days
		p.DunningDisposition = d
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	params := billing.BillingScheduleParams{
		Label:              "Monthly",
		BillingType:        billing.BillingTypePostpaid,
		StrategyID:         billing.ScheduleStrategyFixed,
		StrategyConfig:     map[string]any{"number": 1, "unit": "month"},
		DunningSchedule:    []int{1, 3, 5},
		DunningDisposition: billing.DunningDispositionCancel,
	}
	for _, opt := range opts {
		opt(&params)
	}
	schedule, err := billing.NewBillingSchedule(params, date(2024, 1, 1))
	require.NoError(t, err)

	f := &fixture{
		storeID:    uuid.New(),
		customerID: uuid.New(),
		schedule:   schedule,
		subs:       newMemorySubscriptionRepo(),
		orders:     newMemoryOrderRepo(),
		schedules:  newMemoryScheduleRepo(schedule),
		licenses:   newMemoryLicenseRepo(),
		gateway:    new(MockPaymentGateway),
		notifier:   new(MockNotifier),
		events:     &recordingPublisher{},
	}
	f.method, err = billing.NewPaymentMethod(f.storeID, f.customerID, "cus_123", "pm_card_visa", "Visa 4242", date(2024, 1, 1))
	require.NoError(t, err)
	f.methods = newMemoryPaymentMethodRepo(f.method)

	f.registry, err = strategyregistry.NewRegistryWithDefaults(NewLicenseService(f.licenses, zap.NewNop()))
	require.NoError(t, err)

	f.manager = NewRecurringOrderManager(RecurringOrderManagerConfig{
		Subscriptions:  f.subs,
		Orders:         f.orders,
		Schedules:      f.schedules,
		PaymentMethods: f.methods,
		Gateway:        f.gateway,
		Strategies:     f.registry,
		EventPublisher: f.events,
		Logger:         zap.NewNop(),
	})
	f.dunning = NewDunningScheduler(DunningSchedulerConfig{
		Manager:        f.manager,
		Orders:         f.orders,
		Subscriptions:  f.subs,
		Schedules:      f.schedules,
		Notifier:       f.notifier,
		EventPublisher: f.events,
		Logger:         zap.NewNop(),
	})
	return f
}

type subOption func(*billing.SubscriptionParams)

func withEndsAt(t time.Time) subOption {
	return func(p *billing.SubscriptionParams) { p.EndsAt = &t }
}

func withType(name, ref string) subOption {
	return func(p *billing.SubscriptionParams) {
		p.Type = name
		p.PurchasedEntityRef = ref
	}
}

func withoutPaymentMethod() subOption {
	return func(p *billing.SubscriptionParams) { p.PaymentMethodID = nil }
}

// activeSubscription stores an active subscription that started at startsAt
func (f *fixture) activeSubscription(t *testing.T, startsAt time.Time, price string, opts ...subOption) *billing.Subscription {
	t.Helper()
	methodID := f.method.ID
	params := billing.SubscriptionParams{
		Type:               billing.SubscriptionTypeProductVariation,
		StoreID:            f.storeID,
		CustomerID:         f.customerID,
		BillingScheduleID:  f.schedule.ID,
		PaymentMethodID:    &methodID,
		PurchasedEntityRef: "variation-42",
		Title:              "Coffee subscription",
		Quantity:           decimal.NewFromInt(1),
		UnitPrice:          usd(price),
		StartsAt:           &startsAt,
	}
	for _, opt := range opts {
		opt(&params)
	}
	sub, err := billing.NewSubscription(params, startsAt)
	require.NoError(t, err)
	require.NoError(t, sub.Activate(startsAt))
	sub.ClearDomainEvents()
	f.subs.items[sub.ID] = sub
	return sub
}

// ensureOrder creates the first order of sub and fails the test on error
func (f *fixture) ensureOrder(t *testing.T, sub *billing.Subscription) *billing.RecurringOrder {
	t.Helper()
	order, err := f.manager.EnsureOrder(context.Background(), sub, *sub.StartsAt)
	require.NoError(t, err)
	return order
}
