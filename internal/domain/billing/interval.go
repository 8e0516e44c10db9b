package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IntervalUnit is the calendar unit of an Interval
type IntervalUnit string

const (
	IntervalUnitHour  IntervalUnit = "hour"
	IntervalUnitDay   IntervalUnit = "day"
	IntervalUnitWeek  IntervalUnit = "week"
	IntervalUnitMonth IntervalUnit = "month"
	IntervalUnitYear  IntervalUnit = "year"
)

// IsValid checks if the unit is a valid IntervalUnit
func (u IntervalUnit) IsValid() bool {
	switch u {
	case IntervalUnitHour, IntervalUnitDay, IntervalUnitWeek, IntervalUnitMonth, IntervalUnitYear:
		return true
	}
	return false
}

// Interval is a count of calendar units, e.g. 1 month or 2 weeks
type Interval struct {
	Number int
	Unit   IntervalUnit
}

// NewInterval creates an interval; number must be at least 1
func NewInterval(number int, unit IntervalUnit) (Interval, error) {
	if number < 1 {
		return Interval{}, invalidConfig("interval number must be at least 1, got %d", number)
	}
	if !unit.IsValid() {
		return Interval{}, invalidConfig("invalid interval unit %q", unit)
	}
	return Interval{Number: number, Unit: unit}, nil
}

// String returns e.g. "1 month"
func (i Interval) String() string {
	return fmt.Sprintf("%d %s", i.Number, i.Unit)
}

// Add returns t advanced by the interval. Month and year arithmetic clamps
// the day of month to the last day of the target month, so Jan 31 + 1 month
// is Feb 28 (or 29) rather than early March.
func (i Interval) Add(t time.Time) time.Time {
	switch i.Unit {
	case IntervalUnitHour:
		return t.Add(time.Duration(i.Number) * time.Hour)
	case IntervalUnitDay:
		return t.AddDate(0, 0, i.Number)
	case IntervalUnitWeek:
		return t.AddDate(0, 0, 7*i.Number)
	case IntervalUnitMonth:
		return addMonthsClamped(t, i.Number)
	case IntervalUnitYear:
		return addMonthsClamped(t, 12*i.Number)
	}
	return t
}

// Floor returns the start of the unit containing t, in t's location.
// Weeks start on Monday.
func (i Interval) Floor(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch i.Unit {
	case IntervalUnitHour:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, loc)
	case IntervalUnitDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case IntervalUnitWeek:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case IntervalUnitMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case IntervalUnitYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	}
	return t
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseIntervalConfig reads an interval from strategy configuration.
// Recognised keys are "number" and "unit"; number defaults to 1.
func ParseIntervalConfig(config map[string]any) (Interval, error) {
	if config == nil {
		return Interval{}, invalidConfig("interval configuration is required")
	}
	number := 1
	if raw, ok := config["number"]; ok {
		n, err := toInt(raw)
		if err != nil {
			return Interval{}, invalidConfig("invalid interval number: %v", err)
		}
		number = n
	}
	unitRaw, ok := config["unit"].(string)
	if !ok || unitRaw == "" {
		return Interval{}, invalidConfig("interval unit is required")
	}
	return NewInterval(number, IntervalUnit(strings.ToLower(unitRaw)))
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not a whole number", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}
