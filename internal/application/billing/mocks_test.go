package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// In-memory repositories
// =============================================================================

type memorySubscriptionRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*billing.Subscription
	saves int
}

func newMemorySubscriptionRepo(subs ...*billing.Subscription) *memorySubscriptionRepo {
	r := &memorySubscriptionRepo{items: make(map[uuid.UUID]*billing.Subscription)}
	for _, s := range subs {
		r.items[s.ID] = s
	}
	return r
}

func (r *memorySubscriptionRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.items[id]; ok {
		return s, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memorySubscriptionRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*billing.Subscription, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.items[id]; ok {
			result = append(result, s)
		}
	}
	return result, nil
}

func (r *memorySubscriptionRepo) FindByCustomer(_ context.Context, customerID uuid.UUID) ([]*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*billing.Subscription
	for _, s := range r.items {
		if s.CustomerID == customerID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (r *memorySubscriptionRepo) Save(_ context.Context, sub *billing.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[sub.ID] = sub
	r.saves++
	return nil
}

type memoryOrderRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*billing.RecurringOrder
	saves int
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{items: make(map[uuid.UUID]*billing.RecurringOrder)}
}

func (r *memoryOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.RecurringOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.items[id]; ok {
		return o, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryOrderRepo) FindDraftEndedBefore(_ context.Context, t time.Time, limit int) ([]*billing.RecurringOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*billing.RecurringOrder
	for _, o := range r.items {
		if o.IsDraft() && !o.BillingPeriod.End().After(t) {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BillingPeriod.End().Before(result[j].BillingPeriod.End())
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memoryOrderRepo) FindDraftBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*billing.RecurringOrder, error) {
	all, _ := r.FindBySubscription(ctx, subscriptionID)
	var result []*billing.RecurringOrder
	for _, o := range all {
		if o.IsDraft() {
			result = append(result, o)
		}
	}
	return result, nil
}

func (r *memoryOrderRepo) FindBySubscription(_ context.Context, subscriptionID uuid.UUID) ([]*billing.RecurringOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*billing.RecurringOrder
	for _, o := range r.items {
		for _, id := range o.SubscriptionIDs() {
			if id == subscriptionID {
				result = append(result, o)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BillingPeriod.Start().After(result[j].BillingPeriod.Start())
	})
	return result, nil
}

func (r *memoryOrderRepo) Save(_ context.Context, order *billing.RecurringOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[order.ID] = order
	r.saves++
	return nil
}

func (r *memoryOrderRepo) all() []*billing.RecurringOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*billing.RecurringOrder, 0, len(r.items))
	for _, o := range r.items {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BillingPeriod.Start().Before(result[j].BillingPeriod.Start())
	})
	return result
}

type memoryScheduleRepo struct {
	items map[uuid.UUID]*billing.BillingSchedule
}

func newMemoryScheduleRepo(schedules ...*billing.BillingSchedule) *memoryScheduleRepo {
	r := &memoryScheduleRepo{items: make(map[uuid.UUID]*billing.BillingSchedule)}
	for _, s := range schedules {
		r.items[s.ID] = s
	}
	return r
}

func (r *memoryScheduleRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.BillingSchedule, error) {
	if s, ok := r.items[id]; ok {
		return s, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryScheduleRepo) FindAll(_ context.Context) ([]*billing.BillingSchedule, error) {
	result := make([]*billing.BillingSchedule, 0, len(r.items))
	for _, s := range r.items {
		result = append(result, s)
	}
	return result, nil
}

func (r *memoryScheduleRepo) Save(_ context.Context, schedule *billing.BillingSchedule) error {
	r.items[schedule.ID] = schedule
	return nil
}

type memoryPaymentMethodRepo struct {
	items map[uuid.UUID]*billing.PaymentMethod
}

func newMemoryPaymentMethodRepo(methods ...*billing.PaymentMethod) *memoryPaymentMethodRepo {
	r := &memoryPaymentMethodRepo{items: make(map[uuid.UUID]*billing.PaymentMethod)}
	for _, m := range methods {
		r.items[m.ID] = m
	}
	return r
}

func (r *memoryPaymentMethodRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.PaymentMethod, error) {
	if m, ok := r.items[id]; ok {
		return m, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryPaymentMethodRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*billing.PaymentMethod, error) {
	var result []*billing.PaymentMethod
	for _, id := range ids {
		if m, ok := r.items[id]; ok {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *memoryPaymentMethodRepo) FindByCustomer(_ context.Context, customerID uuid.UUID) ([]*billing.PaymentMethod, error) {
	var result []*billing.PaymentMethod
	for _, m := range r.items {
		if m.CustomerID == customerID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *memoryPaymentMethodRepo) Save(_ context.Context, method *billing.PaymentMethod) error {
	r.items[method.ID] = method
	return nil
}

type memoryLicenseRepo struct {
	items map[uuid.UUID]*billing.License
}

func newMemoryLicenseRepo() *memoryLicenseRepo {
	return &memoryLicenseRepo{items: make(map[uuid.UUID]*billing.License)}
}

func (r *memoryLicenseRepo) FindBySubscription(_ context.Context, subscriptionID uuid.UUID) (*billing.License, error) {
	if l, ok := r.items[subscriptionID]; ok {
		return l, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryLicenseRepo) Save(_ context.Context, license *billing.License) error {
	r.items[license.SubscriptionID] = license
	return nil
}

// =============================================================================
// Mock ports
// =============================================================================

// MockPaymentGateway is a mock implementation of billing.PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Charge(ctx context.Context, req billing.ChargeRequest) (*billing.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ChargeResult), args.Error(1)
}

// MockNotifier is a mock implementation of billing.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n billing.DunningNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockTaskQueue is a mock implementation of billing.TaskQueue
type MockTaskQueue struct {
	mock.Mock
}

func (m *MockTaskQueue) Enqueue(ctx context.Context, task billing.Task) (billing.TaskHandle, error) {
	args := m.Called(ctx, task)
	return args.Get(0).(billing.TaskHandle), args.Error(1)
}

func (m *MockTaskQueue) Claim(ctx context.Context, now time.Time) (*billing.Task, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Task), args.Error(1)
}

func (m *MockTaskQueue) Complete(ctx context.Context, task *billing.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskQueue) Retry(ctx context.Context, task *billing.Task, availableAt time.Time) error {
	args := m.Called(ctx, task, availableAt)
	return args.Error(0)
}

// MockOrderLocker is a mock implementation of billing.OrderLocker
type MockOrderLocker struct {
	mock.Mock
}

func (m *MockOrderLocker) Acquire(ctx context.Context, orderID uuid.UUID, ttl time.Duration) (func(context.Context) error, error) {
	args := m.Called(ctx, orderID, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func(context.Context) error), args.Error(1)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

// recordingPublisher collects published domain events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.EventType()
	}
	return types
}
