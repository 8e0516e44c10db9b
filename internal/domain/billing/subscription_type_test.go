package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLicenseService struct {
	mock.Mock
}

func (m *mockLicenseService) Grant(ctx context.Context, sub *Subscription, expiresAt time.Time) error {
	return m.Called(ctx, sub, expiresAt).Error(0)
}

func (m *mockLicenseService) Extend(ctx context.Context, sub *Subscription, expiresAt time.Time) error {
	return m.Called(ctx, sub, expiresAt).Error(0)
}

func (m *mockLicenseService) Revoke(ctx context.Context, sub *Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func TestProductVariationType_CollectCharges(t *testing.T) {
	typ := NewProductVariationType()
	assert.Equal(t, strategy.StrategyTypeSubscriptionType, typ.Type())

	t.Run("single charge for the period", func(t *testing.T) {
		sub := newTestSubscription(t)
		charges, err := typ.CollectCharges(sub, aprilPeriod)
		require.NoError(t, err)
		require.Len(t, charges, 1)
		assert.Equal(t, "variation-1", charges[0].PurchasedEntityRef())
		assert.Equal(t, "Coffee box", charges[0].Title())
		assert.True(t, charges[0].UnitPrice().Equals(usd("30")))
		assert.True(t, charges[0].BillingPeriod().Equals(aprilPeriod))
	})

	t.Run("requires a purchased entity", func(t *testing.T) {
		sub := newTestSubscription(t)
		sub.PurchasedEntityRef = ""
		_, err := typ.CollectCharges(sub, aprilPeriod)
		assert.Error(t, err)
	})
}

func TestStandaloneType_CollectCharges(t *testing.T) {
	sub := newTestSubscription(t)
	charges, err := NewStandaloneType().CollectCharges(sub, aprilPeriod)
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Empty(t, charges[0].PurchasedEntityRef())
	assert.NoError(t, NewStandaloneType().OnActivate(context.Background(), sub, newTestOrder(t)))
}

func TestLicenseType(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubscription(t)
	first := newTestOrder(t)
	next, err := NewRecurringOrder(sub.StoreID, sub.CustomerID, sub.BillingScheduleID,
		MustBillingPeriod(date(2024, 5, 1), date(2024, 6, 1)), first.Currency, date(2024, 5, 1))
	require.NoError(t, err)

	t.Run("activation grants until the period end", func(t *testing.T) {
		licenses := new(mockLicenseService)
		licenses.On("Grant", ctx, sub, date(2024, 5, 1)).Return(nil)

		require.NoError(t, NewLicenseType(licenses).OnActivate(ctx, sub, first))
		licenses.AssertExpectations(t)
	})

	t.Run("renewal extends to the next period end", func(t *testing.T) {
		licenses := new(mockLicenseService)
		licenses.On("Extend", ctx, sub, date(2024, 6, 1)).Return(nil)

		require.NoError(t, NewLicenseType(licenses).OnRenew(ctx, sub, first, next))
		licenses.AssertExpectations(t)
	})

	t.Run("dunning disposition revokes the license", func(t *testing.T) {
		licenses := new(mockLicenseService)
		licenses.On("Revoke", ctx, sub).Return(nil).Once()

		require.NoError(t, NewLicenseType(licenses).OnDisposition(ctx, sub, DunningDispositionSuspend))
		licenses.AssertExpectations(t)
	})

	t.Run("revocation errors are reported", func(t *testing.T) {
		licenses := new(mockLicenseService)
		licenses.On("Revoke", ctx, sub).Return(errors.New("db down")).Once()

		assert.Error(t, NewLicenseType(licenses).OnDisposition(ctx, sub, DunningDispositionCancel))
	})

	t.Run("license errors are wrapped", func(t *testing.T) {
		licenses := new(mockLicenseService)
		boom := errors.New("boom")
		licenses.On("Grant", ctx, sub, date(2024, 5, 1)).Return(boom)

		err := NewLicenseType(licenses).OnActivate(ctx, sub, first)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("collects like a product variation", func(t *testing.T) {
		typ := NewLicenseType(new(mockLicenseService))
		assert.Equal(t, SubscriptionTypeLicense, typ.Name())
		charges, err := typ.CollectCharges(sub, aprilPeriod)
		require.NoError(t, err)
		assert.Len(t, charges, 1)
	})
}

func TestLicense(t *testing.T) {
	sub := newTestSubscription(t)
	l := NewLicense(sub, date(2024, 5, 1), date(2024, 4, 1))
	assert.True(t, l.IsValidAt(date(2024, 4, 30)))
	assert.False(t, l.IsValidAt(date(2024, 5, 1)))

	l.Extend(date(2024, 4, 15), date(2024, 4, 2))
	assert.Equal(t, date(2024, 5, 1), l.ExpiresAt, "never shortened")

	l.Extend(date(2024, 6, 1), date(2024, 4, 2))
	assert.Equal(t, date(2024, 6, 1), l.ExpiresAt)

	l.Revoke(date(2024, 4, 3))
	assert.False(t, l.IsValidAt(date(2024, 4, 4)))
}
