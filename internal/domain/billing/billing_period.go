package billing

import (
	"encoding/json"
	"fmt"
	"time"
)

// BillingPeriod is the half-open time interval [start, end) a charge covers.
// It is immutable; equality is by instant, not by location.
type BillingPeriod struct {
	start time.Time
	end   time.Time
}

// NewBillingPeriod creates a billing period. start must be before end.
func NewBillingPeriod(start, end time.Time) (BillingPeriod, error) {
	if !start.Before(end) {
		return BillingPeriod{}, ErrInvalidPeriod
	}
	return BillingPeriod{start: start, end: end}, nil
}

// MustBillingPeriod is NewBillingPeriod for callers that already guarantee start < end.
func MustBillingPeriod(start, end time.Time) BillingPeriod {
	p, err := NewBillingPeriod(start, end)
	if err != nil {
		panic(fmt.Sprintf("billing period [%s, %s): %v", start, end, err))
	}
	return p
}

// Start returns the inclusive start of the period
func (p BillingPeriod) Start() time.Time {
	return p.start
}

// End returns the exclusive end of the period
func (p BillingPeriod) End() time.Time {
	return p.end
}

// Duration returns end - start
func (p BillingPeriod) Duration() time.Duration {
	return p.end.Sub(p.start)
}

// IsZero reports whether the period was never set
func (p BillingPeriod) IsZero() bool {
	return p.start.IsZero() && p.end.IsZero()
}

// Contains reports whether t falls within [start, end)
func (p BillingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.start) && t.Before(p.end)
}

// Covers reports whether other lies entirely within p
func (p BillingPeriod) Covers(other BillingPeriod) bool {
	return !other.start.Before(p.start) && !other.end.After(p.end)
}

// Equals compares two periods by instant
func (p BillingPeriod) Equals(other BillingPeriod) bool {
	return p.start.Equal(other.start) && p.end.Equal(other.end)
}

// Clamp intersects the period with [from, until). A nil bound is unbounded.
// ok is false when the intersection is empty.
func (p BillingPeriod) Clamp(from, until *time.Time) (BillingPeriod, bool) {
	start, end := p.start, p.end
	if from != nil && from.After(start) {
		start = *from
	}
	if until != nil && until.Before(end) {
		end = *until
	}
	if !start.Before(end) {
		return BillingPeriod{}, false
	}
	return BillingPeriod{start: start, end: end}, true
}

// String returns the period as "[start, end)" in RFC3339
func (p BillingPeriod) String() string {
	return fmt.Sprintf("[%s, %s)", p.start.Format(time.RFC3339), p.end.Format(time.RFC3339))
}

type billingPeriodJSON struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MarshalJSON implements json.Marshaler
func (p BillingPeriod) MarshalJSON() ([]byte, error) {
	return json.Marshal(billingPeriodJSON{Start: p.start, End: p.end})
}

// UnmarshalJSON implements json.Unmarshaler
func (p *BillingPeriod) UnmarshalJSON(data []byte) error {
	var v billingPeriodJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewBillingPeriod(v.Start, v.End)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
