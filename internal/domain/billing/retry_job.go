package billing

import (
	"time"

	"github.com/google/uuid"
)

// SecondsPerDay converts dunning days to seconds; there is no sub-day granularity.
const SecondsPerDay = 86400

// DaysToDuration converts whole dunning days to a duration
func DaysToDuration(days int) time.Duration {
	return time.Duration(days) * SecondsPerDay * time.Second
}

// RetryJob tracks the payment retries of one order
type RetryJob struct {
	OrderID     uuid.UUID
	NumRetries  int
	AvailableAt time.Time
	MaxRetries  int
}

// NewRetryJob creates the job for the initial close attempt
func NewRetryJob(orderID uuid.UUID, maxRetries int, availableAt time.Time) RetryJob {
	return RetryJob{OrderID: orderID, MaxRetries: maxRetries, AvailableAt: availableAt}
}

// IsExhausted reports whether no retry is left
func (j RetryJob) IsExhausted() bool {
	return j.NumRetries >= j.MaxRetries
}

// Next returns the job for the following retry
func (j RetryJob) Next(availableAt time.Time) RetryJob {
	j.NumRetries++
	j.AvailableAt = availableAt
	return j
}

// DunningDecision is the outcome of a declined charge attempt: either another
// retry at AvailableAt or the terminal disposition.
type DunningDecision struct {
	Terminal    bool
	RetryDays   int
	AvailableAt time.Time
	Attempt     int // 1-indexed number of the attempt that just failed
	MaxRetries  int
	Disposition DunningDisposition
	Next        RetryJob // zero when Terminal
}

// DelaySeconds returns the retry delay in seconds
func (d DunningDecision) DelaySeconds() int64 {
	return int64(d.RetryDays) * SecondsPerDay
}
