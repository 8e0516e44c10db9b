package billing

import (
	"fmt"
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared/strategy"
	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
)

// Built-in prorater names
const (
	ProraterProportional = "proportional"
	ProraterFullPrice    = "full_price"
)

// Prorater computes the price of a partial billing period.
//
// Callers must pass a partial period that lies within the full period;
// anything else is a programming error and panics.
type Prorater interface {
	strategy.Strategy
	// ProrateInitial prices the part of the first period remaining after start
	ProrateInitial(unitPrice valueobject.Money, schedule BillingScheduleStrategy, start time.Time) valueobject.Money
	// ProrateRecurring prices partial as a share of full
	ProrateRecurring(unitPrice valueobject.Money, partial, full BillingPeriod) valueobject.Money
}

// ProportionalProrater scales the price by partialDuration / fullDuration and
// rounds half away from zero to the currency's minor unit.
type ProportionalProrater struct {
	strategy.BaseStrategy
}

// NewProportionalProrater creates the default prorater
func NewProportionalProrater() *ProportionalProrater {
	return &ProportionalProrater{
		BaseStrategy: strategy.NewBaseStrategy(
			ProraterProportional,
			strategy.StrategyTypeProrater,
			"Price scaled by the share of the period used, rounded half-up to the minor unit",
		),
	}
}

// ProrateInitial prorates [start, first.End) against the first period
func (p *ProportionalProrater) ProrateInitial(unitPrice valueobject.Money, schedule BillingScheduleStrategy, start time.Time) valueobject.Money {
	full := schedule.GenerateFirstPeriod(start)
	if !start.After(full.Start()) {
		return unitPrice
	}
	return p.ProrateRecurring(unitPrice, MustBillingPeriod(start, full.End()), full)
}

// ProrateRecurring returns unitPrice * partial/full. Equal durations return
// unitPrice untouched.
func (p *ProportionalProrater) ProrateRecurring(unitPrice valueobject.Money, partial, full BillingPeriod) valueobject.Money {
	mustCover(partial, full)
	return p.ProrateDuration(unitPrice, partial.Duration(), full.Duration())
}

// ProrateDuration returns unitPrice * partial/full for raw durations.
// A zero partial costs nothing.
func (p *ProportionalProrater) ProrateDuration(unitPrice valueobject.Money, partial, full time.Duration) valueobject.Money {
	if full <= 0 || partial < 0 || partial > full {
		panic(fmt.Sprintf("prorate: invalid durations partial=%s full=%s", partial, full))
	}
	if partial == full {
		return unitPrice
	}
	if partial == 0 {
		return valueobject.Zero(unitPrice.Currency())
	}
	prorated, err := unitPrice.Ratio(int64(partial), int64(full))
	if err != nil {
		panic(err)
	}
	return prorated.RoundToMinorUnit()
}

// FullPriceProrater never prorates
type FullPriceProrater struct {
	strategy.BaseStrategy
}

// NewFullPriceProrater creates a prorater that always charges the full price
func NewFullPriceProrater() *FullPriceProrater {
	return &FullPriceProrater{
		BaseStrategy: strategy.NewBaseStrategy(
			ProraterFullPrice,
			strategy.StrategyTypeProrater,
			"Partial periods are charged the full unit price",
		),
	}
}

// ProrateInitial returns unitPrice
func (p *FullPriceProrater) ProrateInitial(unitPrice valueobject.Money, _ BillingScheduleStrategy, _ time.Time) valueobject.Money {
	return unitPrice
}

// ProrateRecurring returns unitPrice
func (p *FullPriceProrater) ProrateRecurring(unitPrice valueobject.Money, partial, full BillingPeriod) valueobject.Money {
	mustCover(partial, full)
	return unitPrice
}

func mustCover(partial, full BillingPeriod) {
	if full.IsZero() || !full.Covers(partial) {
		panic(fmt.Sprintf("prorate: partial period %s is not within full period %s", partial, full))
	}
}
