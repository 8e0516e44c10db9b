package strategy

import (
	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared/strategy"
)

// NewRegistryWithDefaults creates a new registry with the built-in schedules,
// subscription types and proraters registered.
// The license subscription type is only registered when licenses is not nil.
func NewRegistryWithDefaults(licenses billing.LicenseService) (*StrategyRegistry, error) {
	r := NewStrategyRegistry()

	// Register schedule strategies
	if err := r.RegisterScheduleFactory(billing.ScheduleStrategyFixed, billing.FixedScheduleFactory); err != nil {
		return nil, err
	}
	if err := r.RegisterScheduleFactory(billing.ScheduleStrategyRolling, billing.RollingScheduleFactory); err != nil {
		return nil, err
	}

	// Register subscription types
	productVariation := billing.NewProductVariationType()
	if err := r.RegisterSubscriptionType(productVariation); err != nil {
		return nil, err
	}
	if err := r.RegisterSubscriptionType(billing.NewStandaloneType()); err != nil {
		return nil, err
	}
	if licenses != nil {
		if err := r.RegisterSubscriptionType(billing.NewLicenseType(licenses)); err != nil {
			return nil, err
		}
	}

	// Register proraters
	proportional := billing.NewProportionalProrater()
	if err := r.RegisterProrater(proportional); err != nil {
		return nil, err
	}
	if err := r.RegisterProrater(billing.NewFullPriceProrater()); err != nil {
		return nil, err
	}

	// Set defaults
	if err := r.SetDefault(strategy.StrategyTypeBillingSchedule, billing.ScheduleStrategyFixed); err != nil {
		return nil, err
	}
	if err := r.SetDefault(strategy.StrategyTypeSubscriptionType, productVariation.Name()); err != nil {
		return nil, err
	}
	if err := r.SetDefault(strategy.StrategyTypeProrater, proportional.Name()); err != nil {
		return nil, err
	}

	return r, nil
}
