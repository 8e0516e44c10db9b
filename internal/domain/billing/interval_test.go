package billing

import (
	"testing"
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval_Add(t *testing.T) {
	tests := []struct {
		name     string
		interval Interval
		from     time.Time
		expected time.Time
	}{
		{"one hour", Interval{1, IntervalUnitHour}, date(2024, 1, 1), time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)},
		{"three days", Interval{3, IntervalUnitDay}, date(2024, 2, 27), date(2024, 3, 1)},
		{"two weeks", Interval{2, IntervalUnitWeek}, date(2024, 1, 1), date(2024, 1, 15)},
		{"month from the 15th", Interval{1, IntervalUnitMonth}, date(2024, 1, 15), date(2024, 2, 15)},
		{"Jan 30 clamps to Feb 28", Interval{1, IntervalUnitMonth}, date(2023, 1, 30), date(2023, 2, 28)},
		{"Jan 31 clamps to Feb 29 in a leap year", Interval{1, IntervalUnitMonth}, date(2024, 1, 31), date(2024, 2, 29)},
		{"Mar 31 clamps to Apr 30", Interval{1, IntervalUnitMonth}, date(2024, 3, 31), date(2024, 4, 30)},
		{"Dec 31 crosses the year", Interval{2, IntervalUnitMonth}, date(2023, 12, 31), date(2024, 2, 29)},
		{"Feb 29 plus one year", Interval{1, IntervalUnitYear}, date(2024, 2, 29), date(2025, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.interval.Add(tt.from))
		})
	}
}

func TestInterval_Add_KeepsTimeOfDay(t *testing.T) {
	from := time.Date(2023, 1, 31, 13, 45, 10, 0, time.UTC)
	got := Interval{1, IntervalUnitMonth}.Add(from)
	assert.Equal(t, time.Date(2023, 2, 28, 13, 45, 10, 0, time.UTC), got)
}

func TestInterval_Floor(t *testing.T) {
	ts := time.Date(2024, 3, 14, 17, 30, 0, 0, time.UTC) // Thursday

	tests := []struct {
		unit     IntervalUnit
		expected time.Time
	}{
		{IntervalUnitHour, time.Date(2024, 3, 14, 17, 0, 0, 0, time.UTC)},
		{IntervalUnitDay, date(2024, 3, 14)},
		{IntervalUnitWeek, date(2024, 3, 11)},
		{IntervalUnitMonth, date(2024, 3, 1)},
		{IntervalUnitYear, date(2024, 1, 1)},
	}

	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			assert.Equal(t, tt.expected, Interval{1, tt.unit}.Floor(ts))
		})
	}

	t.Run("sunday floors to the previous monday", func(t *testing.T) {
		assert.Equal(t, date(2024, 3, 11), Interval{1, IntervalUnitWeek}.Floor(date(2024, 3, 17)))
	})
}

func TestParseIntervalConfig(t *testing.T) {
	t.Run("float number from JSON", func(t *testing.T) {
		i, err := ParseIntervalConfig(map[string]any{"number": float64(2), "unit": "Week"})
		require.NoError(t, err)
		assert.Equal(t, Interval{2, IntervalUnitWeek}, i)
	})

	t.Run("number defaults to one", func(t *testing.T) {
		i, err := ParseIntervalConfig(map[string]any{"unit": "month"})
		require.NoError(t, err)
		assert.Equal(t, Interval{1, IntervalUnitMonth}, i)
	})

	t.Run("string number", func(t *testing.T) {
		i, err := ParseIntervalConfig(map[string]any{"number": "3", "unit": "day"})
		require.NoError(t, err)
		assert.Equal(t, 3, i.Number)
	})

	invalid := []map[string]any{
		nil,
		{"number": 1},
		{"number": 0, "unit": "month"},
		{"number": 1.5, "unit": "month"},
		{"number": 1, "unit": "fortnight"},
		{"number": []int{1}, "unit": "month"},
	}
	for _, cfg := range invalid {
		_, err := ParseIntervalConfig(cfg)
		assert.ErrorIs(t, err, shared.ErrInvalidConfig, "config %v", cfg)
	}
}
