package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testNow = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newOrderEvent(eventType string) *billing.RecurringOrderEvent {
	orderID := uuid.New()
	return &billing.RecurringOrderEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, billing.AggregateTypeRecurringOrder, orderID, uuid.New(), testNow),
		OrderID:         orderID,
		CustomerID:      uuid.New(),
		State:           billing.OrderStateCompleted,
		PeriodStart:     testNow,
		PeriodEnd:       testNow.AddDate(0, 1, 0),
		Total:           valueobject.MustMoney("19.99", valueobject.USD),
	}
}

func newSubscriptionEvent(eventType string) *billing.SubscriptionStateChangedEvent {
	subID := uuid.New()
	return &billing.SubscriptionStateChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, billing.AggregateTypeSubscription, subID, uuid.New(), testNow),
		SubscriptionID:  subID,
		CustomerID:      uuid.New(),
		State:           billing.SubscriptionStateSuspended,
	}
}

// recordingHandler records handled events
type recordingHandler struct {
	eventTypes []string
	err        error
	panicMsg   string

	mu      sync.Mutex
	handled []shared.DomainEvent
}

func newRecordingHandler(eventTypes ...string) *recordingHandler {
	return &recordingHandler{eventTypes: eventTypes}
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	h.handled = append(h.handled, event)
	h.mu.Unlock()
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to exact subscribers", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		paid := newRecordingHandler(billing.EventTypeRecurringOrderPaid)
		bus.Subscribe(paid)

		require.NoError(t, bus.Publish(ctx,
			newOrderEvent(billing.EventTypeRecurringOrderPaid),
			newOrderEvent(billing.EventTypeRecurringOrderFailed)))

		assert.Equal(t, 1, paid.count())
	})

	t.Run("prefix subscriptions receive the whole family", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		subs := newRecordingHandler("subscription.*")
		bus.Subscribe(subs)

		require.NoError(t, bus.Publish(ctx,
			newSubscriptionEvent(billing.EventTypeSubscriptionSuspended),
			newSubscriptionEvent(billing.EventTypeSubscriptionCanceled),
			newOrderEvent(billing.EventTypeRecurringOrderPlaced)))

		assert.Equal(t, 2, subs.count())
	})

	t.Run("explicit types override the handler's own", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		h := newRecordingHandler(billing.EventTypeRecurringOrderPaid)
		bus.Subscribe(h, billing.EventTypeRecurringOrderFailed)

		require.NoError(t, bus.Publish(ctx, newOrderEvent(billing.EventTypeRecurringOrderPaid)))
		assert.Zero(t, h.count())

		require.NoError(t, bus.Publish(ctx, newOrderEvent(billing.EventTypeRecurringOrderFailed)))
		assert.Equal(t, 1, h.count())
	})

	t.Run("handler errors and panics do not fail the publisher", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		bus := NewInMemoryEventBus(zap.New(core))

		failing := newRecordingHandler()
		failing.err = errors.New("boom")
		panicking := newRecordingHandler()
		panicking.panicMsg = "kaboom"
		healthy := newRecordingHandler()
		bus.Subscribe(failing)
		bus.Subscribe(panicking)
		bus.Subscribe(healthy)

		require.NoError(t, bus.Publish(ctx, newOrderEvent(billing.EventTypeRecurringOrderPaid)))

		assert.Equal(t, 1, healthy.count())
		published, failures := bus.Stats()
		assert.Equal(t, int64(1), published)
		assert.Equal(t, int64(2), failures)
		assert.Equal(t, 2, logs.FilterMessage("Event handler failed").Len())
	})

	t.Run("unsubscribed handlers stop receiving", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		h := newRecordingHandler()
		bus.Subscribe(h)
		bus.Unsubscribe(h)

		require.NoError(t, bus.Publish(ctx, newOrderEvent(billing.EventTypeRecurringOrderPaid)))
		assert.Zero(t, h.count())
	})
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	require.NoError(t, bus.Start(context.Background()))
	assert.True(t, bus.running.Load())
	require.NoError(t, bus.Stop(context.Background()))
	assert.False(t, bus.running.Load())
}

func TestAuditLogHandler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(NewAuditLogHandler(zap.New(core)))

	order := newOrderEvent(billing.EventTypeRecurringOrderPaid)
	sub := newSubscriptionEvent(billing.EventTypeSubscriptionSuspended)
	require.NoError(t, bus.Publish(context.Background(), order, sub))

	entries := logs.All()
	require.Len(t, entries, 2)

	orderFields := entries[0].ContextMap()
	assert.Equal(t, order.OrderID.String(), orderFields["order_id"])
	assert.Equal(t, "19.99 USD", orderFields["total"])
	assert.Equal(t, "completed", orderFields["state"])

	subFields := entries[1].ContextMap()
	assert.Equal(t, sub.SubscriptionID.String(), subFields["subscription_id"])
	assert.Equal(t, "suspended", subFields["state"])
	assert.Equal(t, "audit", entries[1].LoggerName)
}
