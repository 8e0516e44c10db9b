package billing

import (
	"testing"

	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCharge(t *testing.T) {
	t.Run("total is unit price times quantity", func(t *testing.T) {
		c, err := NewCharge(ChargeParams{Title: "Plan", Quantity: one, UnitPrice: usd("9.99"), Period: aprilPeriod})
		require.NoError(t, err)
		assert.True(t, c.Quantity().Equal(one))
		assert.True(t, c.TotalPrice().Equals(usd("9.99")))
	})

	t.Run("zero quantity is kept", func(t *testing.T) {
		c, err := NewCharge(ChargeParams{Title: "Seats", Quantity: decimal.Zero, UnitPrice: usd("9.99"), Period: aprilPeriod})
		require.NoError(t, err)
		assert.True(t, c.Quantity().IsZero())
		assert.True(t, c.TotalPrice().IsZero())
	})

	t.Run("mandatory fields", func(t *testing.T) {
		_, err := NewCharge(ChargeParams{UnitPrice: usd("1"), Period: aprilPeriod})
		assert.Error(t, err, "title")

		_, err = NewCharge(ChargeParams{Title: "Plan", Period: aprilPeriod})
		assert.Error(t, err, "unit price")

		_, err = NewCharge(ChargeParams{Title: "Plan", UnitPrice: usd("1")})
		assert.Error(t, err, "period")

		_, err = NewCharge(ChargeParams{Title: "Plan", UnitPrice: usd("1"), Period: aprilPeriod, Quantity: decimal.NewFromInt(-2)})
		assert.Error(t, err, "quantity")
	})

	t.Run("with unit price copies", func(t *testing.T) {
		c, err := NewCharge(ChargeParams{Title: "Plan", Quantity: one, UnitPrice: usd("10"), Period: aprilPeriod})
		require.NoError(t, err)
		prorated := c.WithUnitPrice(valueobject.MustMoney("5", valueobject.USD))
		assert.True(t, c.UnitPrice().Equals(usd("10")))
		assert.True(t, prorated.UnitPrice().Equals(usd("5")))
	})
}
