package billing

import (
	"testing"
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
)

func usd(amount string) valueobject.Money {
	return valueobject.MustMoney(amount, valueobject.USD)
}

func TestProportionalProrater_ProrateInitial(t *testing.T) {
	p := NewProportionalProrater()
	monthly := NewFixedSchedule(Interval{1, IntervalUnitMonth})

	t.Run("start at period boundary keeps the full price", func(t *testing.T) {
		got := p.ProrateInitial(usd("19.99"), monthly, date(2024, 4, 1))
		assert.True(t, got.Equals(usd("19.99")), got.String())
	})

	t.Run("mid month in a 30 day month", func(t *testing.T) {
		// April has 30 days; starting on the 15th leaves 16 days
		got := p.ProrateInitial(usd("100"), monthly, date(2024, 4, 15))
		assert.Equal(t, "53.33", got.StringFixed(2))
	})

	t.Run("exactly half a period", func(t *testing.T) {
		got := p.ProrateInitial(usd("30"), monthly, date(2024, 4, 16))
		assert.True(t, got.Equals(usd("15")), got.String())
	})

	t.Run("rolling schedule is never prorated", func(t *testing.T) {
		rolling := NewRollingSchedule(Interval{1, IntervalUnitMonth})
		got := p.ProrateInitial(usd("30"), rolling, time.Date(2024, 4, 16, 9, 0, 0, 0, time.UTC))
		assert.True(t, got.Equals(usd("30")))
	})
}

func TestProportionalProrater_ProrateRecurring(t *testing.T) {
	p := NewProportionalProrater()
	full := MustBillingPeriod(date(2024, 4, 1), date(2024, 5, 1))

	t.Run("identical period returns the unit price unchanged", func(t *testing.T) {
		price := usd("10.005")
		got := p.ProrateRecurring(price, full, full)
		assert.True(t, got.Equals(price), "no rounding on a full period")
	})

	t.Run("half rounds half up", func(t *testing.T) {
		half := MustBillingPeriod(date(2024, 4, 16), date(2024, 5, 1))
		got := p.ProrateRecurring(usd("0.05"), half, full)
		assert.Equal(t, "0.03", got.StringFixed(2))
	})

	t.Run("zero decimal currency rounds to whole units", func(t *testing.T) {
		third := MustBillingPeriod(date(2024, 4, 1), date(2024, 4, 11))
		got := p.ProrateRecurring(valueobject.MustMoney("1000", valueobject.JPY), third, full)
		assert.Equal(t, "333", got.StringFixed(0))
	})

	t.Run("partial outside the full period panics", func(t *testing.T) {
		outside := MustBillingPeriod(date(2024, 4, 20), date(2024, 5, 5))
		assert.Panics(t, func() { p.ProrateRecurring(usd("10"), outside, full) })
	})
}

func TestProportionalProrater_ProrateDuration(t *testing.T) {
	p := NewProportionalProrater()

	t.Run("zero ratio is free", func(t *testing.T) {
		got := p.ProrateDuration(usd("10"), 0, 30*24*time.Hour)
		assert.True(t, got.IsZero())
		assert.Equal(t, valueobject.USD, got.Currency())
	})

	t.Run("negative partial panics", func(t *testing.T) {
		assert.Panics(t, func() { p.ProrateDuration(usd("10"), -time.Hour, time.Hour) })
	})

	t.Run("partial longer than full panics", func(t *testing.T) {
		assert.Panics(t, func() { p.ProrateDuration(usd("10"), 2*time.Hour, time.Hour) })
	})
}

func TestFullPriceProrater(t *testing.T) {
	p := NewFullPriceProrater()
	full := MustBillingPeriod(date(2024, 4, 1), date(2024, 5, 1))
	partial := MustBillingPeriod(date(2024, 4, 20), date(2024, 5, 1))

	assert.True(t, p.ProrateRecurring(usd("10"), partial, full).Equals(usd("10")))
	assert.True(t, p.ProrateInitial(usd("10"), NewFixedSchedule(Interval{1, IntervalUnitMonth}), date(2024, 4, 20)).Equals(usd("10")))
	assert.Equal(t, ProraterFullPrice, p.Name())
}
