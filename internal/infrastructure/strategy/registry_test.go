package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/domain/shared/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLicenseService struct{}

func (stubLicenseService) Grant(context.Context, *billing.Subscription, time.Time) error  { return nil }
func (stubLicenseService) Extend(context.Context, *billing.Subscription, time.Time) error { return nil }
func (stubLicenseService) Revoke(context.Context, *billing.Subscription) error            { return nil }

func TestNewStrategyRegistry(t *testing.T) {
	r := NewStrategyRegistry()
	assert.Empty(t, r.ListScheduleStrategies())
	assert.Empty(t, r.ListSubscriptionTypes())
	assert.Empty(t, r.ListProraters())
	assert.False(t, r.HasDefault(strategy.StrategyTypeProrater))
}

func TestRegisterScheduleFactory(t *testing.T) {
	r := NewStrategyRegistry()

	t.Run("successful registration", func(t *testing.T) {
		err := r.RegisterScheduleFactory("fixed", billing.FixedScheduleFactory)
		require.NoError(t, err)
		assert.True(t, r.IsRegistered(strategy.StrategyTypeBillingSchedule, "fixed"))
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		err := r.RegisterScheduleFactory("fixed", billing.FixedScheduleFactory)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("nil factory fails", func(t *testing.T) {
		err := r.RegisterScheduleFactory("broken", nil)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestNewScheduleStrategy(t *testing.T) {
	r, err := NewRegistryWithDefaults(nil)
	require.NoError(t, err)

	t.Run("builds from config", func(t *testing.T) {
		s, err := r.NewScheduleStrategy("rolling", map[string]any{"number": 2, "unit": "week"})
		require.NoError(t, err)
		assert.Equal(t, billing.ScheduleStrategyRolling, s.Name())
	})

	t.Run("empty name uses the default", func(t *testing.T) {
		s, err := r.NewScheduleStrategy("", map[string]any{"unit": "month"})
		require.NoError(t, err)
		assert.Equal(t, billing.ScheduleStrategyFixed, s.Name())
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := r.NewScheduleStrategy("lunar", map[string]any{"unit": "month"})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("malformed config", func(t *testing.T) {
		_, err := r.NewScheduleStrategy("fixed", map[string]any{"unit": "fortnight"})
		assert.ErrorIs(t, err, shared.ErrInvalidConfig)
	})

	t.Run("resolves a billing schedule", func(t *testing.T) {
		schedule, err := billing.NewBillingSchedule(billing.BillingScheduleParams{
			Label:              "Monthly",
			BillingType:        billing.BillingTypePostpaid,
			StrategyID:         billing.ScheduleStrategyFixed,
			StrategyConfig:     map[string]any{"number": 1, "unit": "month"},
			DunningDisposition: billing.DunningDispositionSuspend,
		}, time.Now())
		require.NoError(t, err)

		s, err := r.ScheduleStrategyFor(schedule)
		require.NoError(t, err)
		assert.Equal(t, billing.ScheduleStrategyFixed, s.Name())
	})
}

func TestSubscriptionTypes(t *testing.T) {
	t.Run("license type requires a license service", func(t *testing.T) {
		r, err := NewRegistryWithDefaults(nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"product_variation", "standalone"}, r.ListSubscriptionTypes())

		r, err = NewRegistryWithDefaults(stubLicenseService{})
		require.NoError(t, err)
		assert.Equal(t, []string{"license", "product_variation", "standalone"}, r.ListSubscriptionTypes())
	})

	t.Run("get by name and default", func(t *testing.T) {
		r, err := NewRegistryWithDefaults(nil)
		require.NoError(t, err)

		typ, err := r.GetSubscriptionType("standalone")
		require.NoError(t, err)
		assert.Equal(t, billing.SubscriptionTypeStandalone, typ.Name())

		typ, err = r.GetSubscriptionType("")
		require.NoError(t, err)
		assert.Equal(t, billing.SubscriptionTypeProductVariation, typ.Name())

		_, err = r.GetSubscriptionType("license")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		r := NewStrategyRegistry()
		require.NoError(t, r.RegisterSubscriptionType(billing.NewStandaloneType()))
		assert.ErrorIs(t, r.RegisterSubscriptionType(billing.NewStandaloneType()), shared.ErrAlreadyExists)
	})

	t.Run("unregister clears the default", func(t *testing.T) {
		r, err := NewRegistryWithDefaults(nil)
		require.NoError(t, err)
		require.NoError(t, r.UnregisterSubscriptionType("product_variation"))
		assert.False(t, r.HasDefault(strategy.StrategyTypeSubscriptionType))
		assert.ErrorIs(t, r.UnregisterSubscriptionType("product_variation"), shared.ErrNotFound)
	})
}

func TestProraters(t *testing.T) {
	r, err := NewRegistryWithDefaults(nil)
	require.NoError(t, err)

	t.Run("default is proportional", func(t *testing.T) {
		p, err := r.GetProrater("")
		require.NoError(t, err)
		assert.Equal(t, billing.ProraterProportional, p.Name())
	})

	t.Run("fallback to default when not found", func(t *testing.T) {
		p := r.GetProraterOrDefault("nonexistent")
		require.NotNil(t, p)
		assert.Equal(t, billing.ProraterProportional, p.Name())
	})

	t.Run("get by name", func(t *testing.T) {
		p := r.GetProraterOrDefault(billing.ProraterFullPrice)
		assert.Equal(t, billing.ProraterFullPrice, p.Name())
	})

	t.Run("no default set", func(t *testing.T) {
		empty := NewStrategyRegistry()
		_, err := empty.GetProrater("")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestSetDefault(t *testing.T) {
	r, err := NewRegistryWithDefaults(nil)
	require.NoError(t, err)

	require.NoError(t, r.SetDefault(strategy.StrategyTypeBillingSchedule, "rolling"))
	assert.Equal(t, "rolling", r.GetDefault(strategy.StrategyTypeBillingSchedule))

	err = r.SetDefault(strategy.StrategyTypeProrater, "nonexistent")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, r.UnregisterScheduleFactory("rolling"))
	assert.False(t, r.HasDefault(strategy.StrategyTypeBillingSchedule))
}

func TestStats(t *testing.T) {
	r, err := NewRegistryWithDefaults(stubLicenseService{})
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, 2, stats[strategy.StrategyTypeBillingSchedule])
	assert.Equal(t, 3, stats[strategy.StrategyTypeSubscriptionType])
	assert.Equal(t, 2, stats[strategy.StrategyTypeProrater])
}

func TestConcurrentReadWrite(t *testing.T) {
	r, err := NewRegistryWithDefaults(nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	numReaders := 50
	numWriters := 10

	// Start readers
	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = r.NewScheduleStrategy("fixed", map[string]any{"unit": "month"})
				_, _ = r.GetProrater("")
				r.ListSubscriptionTypes()
				r.Stats()
			}
		}()
	}

	// Start writers
	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			name := string(rune('a' + idx))
			_ = r.RegisterScheduleFactory(name, billing.RollingScheduleFactory)
		}(i)
	}

	wg.Wait()
	assert.Len(t, r.ListScheduleStrategies(), 2+numWriters)
}
