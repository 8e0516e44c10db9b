package billing

import (
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared/strategy"
)

// Built-in billing schedule strategy names
const (
	ScheduleStrategyFixed   = "fixed"
	ScheduleStrategyRolling = "rolling"
)

// BillingScheduleStrategy computes billing periods for a subscription.
// Implementations are pure: the same inputs always produce the same periods.
type BillingScheduleStrategy interface {
	strategy.Strategy
	// GenerateFirstPeriod returns the period containing the subscription start
	GenerateFirstPeriod(start time.Time) BillingPeriod
	// GenerateNextPeriod returns the period following current
	GenerateNextPeriod(start time.Time, current BillingPeriod) BillingPeriod
}

// ScheduleStrategyFactory builds a strategy from the schedule's strategy configuration
type ScheduleStrategyFactory func(config map[string]any) (BillingScheduleStrategy, error)

// FixedSchedule aligns periods to calendar boundaries of its interval,
// e.g. every calendar month.
type FixedSchedule struct {
	strategy.BaseStrategy
	interval Interval
}

// NewFixedSchedule creates a fixed (calendar aligned) schedule
func NewFixedSchedule(interval Interval) *FixedSchedule {
	return &FixedSchedule{
		BaseStrategy: strategy.NewBaseStrategy(
			ScheduleStrategyFixed,
			strategy.StrategyTypeBillingSchedule,
			"Periods aligned to calendar boundaries, e.g. the 1st of every month",
		),
		interval: interval,
	}
}

// FixedScheduleFactory is the registry factory for FixedSchedule
func FixedScheduleFactory(config map[string]any) (BillingScheduleStrategy, error) {
	interval, err := ParseIntervalConfig(config)
	if err != nil {
		return nil, err
	}
	return NewFixedSchedule(interval), nil
}

// Interval returns the configured interval
func (s *FixedSchedule) Interval() Interval {
	return s.interval
}

// GenerateFirstPeriod returns [floor(start), floor(start)+interval)
func (s *FixedSchedule) GenerateFirstPeriod(start time.Time) BillingPeriod {
	floor := s.interval.Floor(start)
	end := s.interval.Add(floor)
	// A multi-unit interval floored to its unit always contains start, but
	// guard anyway so the first period can never end at or before start.
	for !end.After(start) {
		end = s.interval.Add(end)
	}
	return MustBillingPeriod(floor, end)
}

// GenerateNextPeriod starts exactly at the end of current
func (s *FixedSchedule) GenerateNextPeriod(_ time.Time, current BillingPeriod) BillingPeriod {
	return MustBillingPeriod(current.End(), s.interval.Add(current.End()))
}

// RollingSchedule anchors periods to the subscription start
type RollingSchedule struct {
	strategy.BaseStrategy
	interval Interval
}

// NewRollingSchedule creates a rolling schedule
func NewRollingSchedule(interval Interval) *RollingSchedule {
	return &RollingSchedule{
		BaseStrategy: strategy.NewBaseStrategy(
			ScheduleStrategyRolling,
			strategy.StrategyTypeBillingSchedule,
			"Periods anchored to the subscription start date",
		),
		interval: interval,
	}
}

// RollingScheduleFactory is the registry factory for RollingSchedule
func RollingScheduleFactory(config map[string]any) (BillingScheduleStrategy, error) {
	interval, err := ParseIntervalConfig(config)
	if err != nil {
		return nil, err
	}
	return NewRollingSchedule(interval), nil
}

// Interval returns the configured interval
func (s *RollingSchedule) Interval() Interval {
	return s.interval
}

// GenerateFirstPeriod returns [start, start+interval)
func (s *RollingSchedule) GenerateFirstPeriod(start time.Time) BillingPeriod {
	return MustBillingPeriod(start, s.interval.Add(start))
}

// GenerateNextPeriod returns [current.End, current.End+interval)
func (s *RollingSchedule) GenerateNextPeriod(_ time.Time, current BillingPeriod) BillingPeriod {
	return MustBillingPeriod(current.End(), s.interval.Add(current.End()))
}

// GeneratePeriods returns the first count periods of a schedule starting at start
func GeneratePeriods(s BillingScheduleStrategy, start time.Time, count int) []BillingPeriod {
	if count <= 0 {
		return nil
	}
	periods := make([]BillingPeriod, 0, count)
	current := s.GenerateFirstPeriod(start)
	periods = append(periods, current)
	for len(periods) < count {
		current = s.GenerateNextPeriod(start, current)
		periods = append(periods, current)
	}
	return periods
}
