package billing

import (
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/google/uuid"
)

// BillingType determines whether a period is paid before or after it occurs
type BillingType string

const (
	BillingTypePrepaid  BillingType = "prepaid"
	BillingTypePostpaid BillingType = "postpaid"
)

// IsValid checks if the billing type is valid
func (t BillingType) IsValid() bool {
	return t == BillingTypePrepaid || t == BillingTypePostpaid
}

// DunningDisposition is applied to subscriptions once all payment retries failed
type DunningDisposition string

const (
	DunningDispositionSuspend DunningDisposition = "suspend"
	DunningDispositionCancel  DunningDisposition = "cancel"
)

// IsValid checks if the disposition is valid
func (d DunningDisposition) IsValid() bool {
	return d == DunningDispositionSuspend || d == DunningDispositionCancel
}

// ScheduleStatus enables or disables a schedule for new subscriptions
type ScheduleStatus string

const (
	ScheduleStatusEnabled  ScheduleStatus = "enabled"
	ScheduleStatusDisabled ScheduleStatus = "disabled"
)

// BillingSchedule is the configuration that decides period boundaries,
// billing type and the dunning behaviour of its subscriptions.
// It is read-only during a billing run.
type BillingSchedule struct {
	shared.BaseAggregateRoot
	Label              string
	BillingType        BillingType
	StrategyID         string
	StrategyConfig     map[string]any
	ProraterID         string
	DunningSchedule    []int // days until the next retry, one entry per retry
	DunningDisposition DunningDisposition
	Status             ScheduleStatus
}

// BillingScheduleParams holds the inputs of NewBillingSchedule
type BillingScheduleParams struct {
	Label              string
	BillingType        BillingType
	StrategyID         string
	StrategyConfig     map[string]any
	ProraterID         string
	DunningSchedule    []int
	DunningDisposition DunningDisposition
}

// NewBillingSchedule creates a validated billing schedule
func NewBillingSchedule(p BillingScheduleParams, now time.Time) (*BillingSchedule, error) {
	s := &BillingSchedule{
		BaseAggregateRoot:  shared.NewBaseAggregateRootAt(now),
		Label:              p.Label,
		BillingType:        p.BillingType,
		StrategyID:         p.StrategyID,
		StrategyConfig:     p.StrategyConfig,
		ProraterID:         p.ProraterID,
		DunningSchedule:    append([]int(nil), p.DunningSchedule...),
		DunningDisposition: p.DunningDisposition,
		Status:             ScheduleStatusEnabled,
	}
	if s.ProraterID == "" {
		s.ProraterID = ProraterProportional
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the configuration invariants
func (s *BillingSchedule) Validate() error {
	if s.Label == "" {
		return invalidConfig("billing schedule label is required")
	}
	if !s.BillingType.IsValid() {
		return invalidConfig("invalid billing type %q", s.BillingType)
	}
	if s.StrategyID == "" {
		return invalidConfig("billing schedule strategy is required")
	}
	if !s.DunningDisposition.IsValid() {
		return invalidConfig("invalid dunning disposition %q", s.DunningDisposition)
	}
	for i, days := range s.DunningSchedule {
		if days < 0 {
			return invalidConfig("dunning schedule entry %d must not be negative, got %d", i, days)
		}
	}
	return nil
}

// IsEnabled reports whether new subscriptions may use the schedule
func (s *BillingSchedule) IsEnabled() bool {
	return s.Status == ScheduleStatusEnabled
}

// Disable stops the schedule from accepting new subscriptions
func (s *BillingSchedule) Disable(now time.Time) {
	s.Status = ScheduleStatusDisabled
	s.Touch(now)
}

// MaxRetries is the number of retries after the initial charge attempt
func (s *BillingSchedule) MaxRetries() int {
	return len(s.DunningSchedule)
}

// RetryDelayDays returns the delay before the retry following attempt numRetries.
// ok is false once retries are exhausted.
func (s *BillingSchedule) RetryDelayDays(numRetries int) (days int, ok bool) {
	if numRetries < 0 || numRetries >= len(s.DunningSchedule) {
		return 0, false
	}
	return s.DunningSchedule[numRetries], true
}

// RetryJob returns the retry bookkeeping of an order that already made
// numRetries retries under this schedule.
func (s *BillingSchedule) RetryJob(orderID uuid.UUID, numRetries int, availableAt time.Time) RetryJob {
	job := NewRetryJob(orderID, s.MaxRetries(), availableAt)
	job.NumRetries = numRetries
	return job
}

// DecideDunning decides what follows a declined attempt of job. Each delay is
// measured from now, the time of the attempt that just failed. A retry
// carries the job to re-enqueue in Next.
func (s *BillingSchedule) DecideDunning(job RetryJob, now time.Time) DunningDecision {
	d := DunningDecision{
		Attempt:     job.NumRetries + 1,
		MaxRetries:  job.MaxRetries,
		Disposition: s.DunningDisposition,
	}
	days, ok := s.RetryDelayDays(job.NumRetries)
	if !ok || job.IsExhausted() {
		d.Terminal = true
		return d
	}
	d.RetryDays = days
	d.AvailableAt = now.Add(DaysToDuration(days))
	d.Next = job.Next(d.AvailableAt)
	return d
}
