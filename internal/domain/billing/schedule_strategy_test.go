package billing

import (
	"testing"
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/domain/shared/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleStarts = []time.Time{
	date(2024, 1, 1),
	date(2024, 1, 31),
	time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
	time.Date(2024, 3, 14, 17, 30, 0, 0, time.UTC),
	time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC),
}

var sampleIntervals = []Interval{
	{1, IntervalUnitHour},
	{1, IntervalUnitDay},
	{1, IntervalUnitWeek},
	{1, IntervalUnitMonth},
	{3, IntervalUnitMonth},
	{1, IntervalUnitYear},
}

func TestFixedSchedule_Metadata(t *testing.T) {
	s := NewFixedSchedule(Interval{1, IntervalUnitMonth})
	assert.Equal(t, ScheduleStrategyFixed, s.Name())
	assert.Equal(t, strategy.StrategyTypeBillingSchedule, s.Type())
	assert.NotEmpty(t, s.Description())
}

func TestFixedSchedule_MonthlyPeriods(t *testing.T) {
	s := NewFixedSchedule(Interval{1, IntervalUnitMonth})
	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	first := s.GenerateFirstPeriod(start)
	assert.Equal(t, date(2024, 3, 1), first.Start())
	assert.Equal(t, date(2024, 4, 1), first.End())

	next := s.GenerateNextPeriod(start, first)
	assert.Equal(t, date(2024, 4, 1), next.Start())
	assert.Equal(t, date(2024, 5, 1), next.End())
}

func TestFixedSchedule_FirstPeriodContainsStart(t *testing.T) {
	for _, interval := range sampleIntervals {
		s := NewFixedSchedule(interval)
		for _, start := range sampleStarts {
			first := s.GenerateFirstPeriod(start)
			assert.False(t, first.Start().After(start), "%s from %s: %s", interval, start, first)
			assert.True(t, start.Before(first.End()), "%s from %s: %s", interval, start, first)
		}
	}
}

func TestFixedSchedule_PeriodsAreContiguous(t *testing.T) {
	for _, interval := range sampleIntervals {
		s := NewFixedSchedule(interval)
		for _, start := range sampleStarts {
			periods := GeneratePeriods(s, start, 24)
			require.Len(t, periods, 24)
			for i := 1; i < len(periods); i++ {
				assert.Equal(t, periods[i-1].End(), periods[i].Start(), "%s from %s, period %d", interval, start, i)
				assert.True(t, periods[i].Start().Before(periods[i].End()))
			}
		}
	}
}

func TestRollingSchedule_FirstPeriodStartsAtStart(t *testing.T) {
	for _, interval := range sampleIntervals {
		s := NewRollingSchedule(interval)
		for _, start := range sampleStarts {
			assert.Equal(t, start, s.GenerateFirstPeriod(start).Start(), "%s from %s", interval, start)
		}
	}
}

func TestRollingSchedule_MonthlyPeriods(t *testing.T) {
	s := NewRollingSchedule(Interval{1, IntervalUnitMonth})
	start := date(2024, 1, 31)

	periods := GeneratePeriods(s, start, 3)
	assert.Equal(t, date(2024, 2, 29), periods[0].End())
	assert.Equal(t, date(2024, 2, 29), periods[1].Start())
	assert.Equal(t, date(2024, 3, 29), periods[1].End())
	assert.Equal(t, date(2024, 4, 29), periods[2].End())
}

func TestScheduleFactories(t *testing.T) {
	t.Run("fixed", func(t *testing.T) {
		s, err := FixedScheduleFactory(map[string]any{"number": 1, "unit": "month"})
		require.NoError(t, err)
		assert.Equal(t, ScheduleStrategyFixed, s.Name())
	})

	t.Run("rolling", func(t *testing.T) {
		s, err := RollingScheduleFactory(map[string]any{"number": 2, "unit": "week"})
		require.NoError(t, err)
		assert.Equal(t, Interval{2, IntervalUnitWeek}, s.(*RollingSchedule).Interval())
	})

	t.Run("malformed config fails", func(t *testing.T) {
		_, err := FixedScheduleFactory(map[string]any{"unit": "decade"})
		assert.ErrorIs(t, err, shared.ErrInvalidConfig)
	})
}

func TestGeneratePeriods_NonPositiveCount(t *testing.T) {
	s := NewRollingSchedule(Interval{1, IntervalUnitDay})
	assert.Nil(t, GeneratePeriods(s, date(2024, 1, 1), 0))
}
