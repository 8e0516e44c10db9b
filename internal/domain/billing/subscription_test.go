package billing

import (
	"testing"
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubscription(t *testing.T) *Subscription {
	t.Helper()
	sub, err := NewSubscription(SubscriptionParams{
		Type:               SubscriptionTypeProductVariation,
		StoreID:            uuid.New(),
		CustomerID:         uuid.New(),
		BillingScheduleID:  uuid.New(),
		PurchasedEntityRef: "variation-1",
		Title:              "Coffee box",
		Quantity:           decimal.NewFromInt(1),
		UnitPrice:          usd("30"),
	}, date(2024, 4, 1))
	require.NoError(t, err)
	return sub
}

func TestNewSubscription(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		sub := newTestSubscription(t)
		assert.Equal(t, SubscriptionStatePending, sub.State)
		assert.True(t, sub.Quantity.Equal(decimal.NewFromInt(1)))
		assert.Nil(t, sub.StartsAt)
		assert.Equal(t, 1, sub.GetVersion())
	})

	t.Run("zero quantity is kept", func(t *testing.T) {
		sub, err := NewSubscription(SubscriptionParams{
			Type:              SubscriptionTypeStandalone,
			StoreID:           uuid.New(),
			CustomerID:        uuid.New(),
			BillingScheduleID: uuid.New(),
			Title:             "Seats",
			Quantity:          decimal.Zero,
			UnitPrice:         usd("10"),
		}, date(2024, 1, 1))
		require.NoError(t, err)
		assert.True(t, sub.Quantity.IsZero())
	})

	t.Run("validation", func(t *testing.T) {
		base := SubscriptionParams{
			Type:              SubscriptionTypeStandalone,
			StoreID:           uuid.New(),
			CustomerID:        uuid.New(),
			BillingScheduleID: uuid.New(),
			Title:             "Support plan",
			UnitPrice:         usd("10"),
		}
		start, end := date(2024, 2, 1), date(2024, 1, 1)

		cases := map[string]func(*SubscriptionParams){
			"missing type":      func(p *SubscriptionParams) { p.Type = "" },
			"missing store":     func(p *SubscriptionParams) { p.StoreID = uuid.Nil },
			"missing customer":  func(p *SubscriptionParams) { p.CustomerID = uuid.Nil },
			"missing schedule":  func(p *SubscriptionParams) { p.BillingScheduleID = uuid.Nil },
			"missing title":     func(p *SubscriptionParams) { p.Title = "" },
			"negative price":    func(p *SubscriptionParams) { p.UnitPrice = usd("-1") },
			"negative quantity": func(p *SubscriptionParams) { p.Quantity = decimal.NewFromInt(-1) },
			"ends before start": func(p *SubscriptionParams) { p.StartsAt, p.EndsAt = &start, &end },
		}
		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				p := base
				mutate(&p)
				_, err := NewSubscription(p, date(2024, 1, 1))
				assert.Error(t, err)
			})
		}
	})
}

func TestSubscription_Activate(t *testing.T) {
	t.Run("sets starts at when unset", func(t *testing.T) {
		sub := newTestSubscription(t)
		now := date(2024, 4, 15)
		require.NoError(t, sub.Activate(now))
		assert.Equal(t, SubscriptionStateActive, sub.State)
		require.NotNil(t, sub.StartsAt)
		assert.Equal(t, now, *sub.StartsAt)
		assert.True(t, sub.IsBillable())
		require.Len(t, sub.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeSubscriptionActivated, sub.GetDomainEvents()[0].EventType())
	})

	t.Run("keeps an explicit start", func(t *testing.T) {
		sub := newTestSubscription(t)
		start := date(2024, 5, 1)
		sub.StartsAt = &start
		require.NoError(t, sub.Activate(date(2024, 4, 15)))
		assert.Equal(t, start, *sub.StartsAt)
	})

	t.Run("only pending subscriptions activate", func(t *testing.T) {
		sub := newTestSubscription(t)
		require.NoError(t, sub.Activate(date(2024, 4, 15)))
		err := sub.Activate(date(2024, 4, 16))
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestSubscription_Transitions(t *testing.T) {
	tests := []struct {
		from     SubscriptionState
		to       SubscriptionState
		expected bool
	}{
		{SubscriptionStatePending, SubscriptionStateActive, true},
		{SubscriptionStatePending, SubscriptionStateSuspended, false},
		{SubscriptionStateActive, SubscriptionStateSuspended, true},
		{SubscriptionStateActive, SubscriptionStateExpired, true},
		{SubscriptionStateSuspended, SubscriptionStateActive, true},
		{SubscriptionStateCanceled, SubscriptionStateActive, false},
		{SubscriptionStateExpired, SubscriptionStateCanceled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestSubscription_Cancel(t *testing.T) {
	t.Run("ends now when unbounded", func(t *testing.T) {
		sub := newTestSubscription(t)
		require.NoError(t, sub.Activate(date(2024, 4, 1)))
		require.NoError(t, sub.Cancel(date(2024, 4, 10)))
		assert.Equal(t, SubscriptionStateCanceled, sub.State)
		assert.Equal(t, date(2024, 4, 10), *sub.EndsAt)
		assert.False(t, sub.IsBillable())
	})

	t.Run("keeps an earlier end", func(t *testing.T) {
		sub := newTestSubscription(t)
		end := date(2024, 4, 5)
		sub.EndsAt = &end
		require.NoError(t, sub.Activate(date(2024, 4, 1)))
		require.NoError(t, sub.Cancel(date(2024, 4, 10)))
		assert.Equal(t, end, *sub.EndsAt)
	})
}

func TestSubscription_ApplyDisposition(t *testing.T) {
	now := date(2024, 5, 10)

	t.Run("suspend", func(t *testing.T) {
		sub := newTestSubscription(t)
		require.NoError(t, sub.Activate(date(2024, 4, 1)))
		require.NoError(t, sub.ApplyDisposition(DunningDispositionSuspend, now))
		assert.Equal(t, SubscriptionStateSuspended, sub.State)

		require.NoError(t, sub.ApplyDisposition(DunningDispositionSuspend, now), "already suspended")
		require.NoError(t, sub.Reactivate(now))
		assert.Equal(t, SubscriptionStateActive, sub.State)
	})

	t.Run("cancel", func(t *testing.T) {
		sub := newTestSubscription(t)
		require.NoError(t, sub.Activate(date(2024, 4, 1)))
		require.NoError(t, sub.ApplyDisposition(DunningDispositionCancel, now))
		assert.Equal(t, SubscriptionStateCanceled, sub.State)
		require.NoError(t, sub.ApplyDisposition(DunningDispositionCancel, now), "terminal subscriptions are left alone")
	})

	t.Run("unknown disposition", func(t *testing.T) {
		sub := newTestSubscription(t)
		err := sub.ApplyDisposition("archive", now)
		assert.ErrorIs(t, err, shared.ErrInvalidConfig)
	})
}

func TestSubscription_MarkRenewed(t *testing.T) {
	sub := newTestSubscription(t)
	now := time.Date(2024, 5, 1, 0, 5, 0, 0, time.UTC)
	sub.MarkRenewed(now)
	require.NotNil(t, sub.RenewedAt)
	assert.Equal(t, now, *sub.RenewedAt)
	assert.Equal(t, 2, sub.GetVersion())
}

func TestSubscription_EndsBy(t *testing.T) {
	sub := newTestSubscription(t)
	assert.False(t, sub.EndsBy(date(2030, 1, 1)))

	end := date(2024, 6, 1)
	sub.EndsAt = &end
	assert.True(t, sub.EndsBy(date(2024, 6, 1)))
	assert.False(t, sub.EndsBy(date(2024, 5, 31)))
}
