package billing

import (
	"context"
	"errors"
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// ChargeRequest asks the payment gateway to collect an order total
type ChargeRequest struct {
	OrderID        uuid.UUID
	StoreID        uuid.UUID
	CustomerID     uuid.UUID
	PaymentMethod  *PaymentMethod
	Amount         valueobject.Money
	IdempotencyKey string
	Description    string
}

// ChargeResult is a successful charge
type ChargeResult struct {
	TransactionID string
	Status        string
}

// PaymentGateway attempts off-session charges. A refused charge returns a
// *DeclineError; any other error is a transient failure of the gateway.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// Notifier delivers dunning notifications to the customer
type Notifier interface {
	Notify(ctx context.Context, n DunningNotification) error
}

// LicenseService keeps licenses in sync with paid periods
type LicenseService interface {
	Grant(ctx context.Context, sub *Subscription, expiresAt time.Time) error
	Extend(ctx context.Context, sub *Subscription, expiresAt time.Time) error
	// Revoke ends the license of sub; a missing license is not an error
	Revoke(ctx context.Context, sub *Subscription) error
}

// TaskType identifies the work a queued task performs
type TaskType string

const (
	TaskTypeCloseOrder TaskType = "recurring_order_close"
	TaskTypeRenewOrder TaskType = "recurring_order_renew"
)

// Task queue errors
var (
	ErrDuplicateTask = errors.New("task with the same unique key is already pending")
	ErrNoTask        = errors.New("no task available")
)

// Task is a unit of work on the at-least-once task queue
type Task struct {
	ID          uuid.UUID `json:"id"`
	Type        TaskType  `json:"type"`
	OrderID     uuid.UUID `json:"order_id"`
	UniqueKey   string    `json:"unique_key,omitempty"`
	NumRetries  int       `json:"num_retries"` // dunning retries already made
	Attempts    int       `json:"attempts"`    // deliveries, including transient failures
	AvailableAt time.Time `json:"available_at"`
}

// NewTask creates a task available at availableAt
func NewTask(taskType TaskType, orderID uuid.UUID, uniqueKey string, availableAt time.Time) Task {
	return Task{
		ID:          uuid.New(),
		Type:        taskType,
		OrderID:     orderID,
		UniqueKey:   uniqueKey,
		AvailableAt: availableAt,
	}
}

// TaskHandle identifies an enqueued task
type TaskHandle struct {
	ID uuid.UUID
}

// TaskQueue is an at-least-once queue with delayed delivery. Enqueue fails
// with ErrDuplicateTask while a task with the same unique key is pending,
// Claim fails with ErrNoTask when nothing is due.
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) (TaskHandle, error)
	Claim(ctx context.Context, now time.Time) (*Task, error)
	Complete(ctx context.Context, task *Task) error
	Retry(ctx context.Context, task *Task, availableAt time.Time) error
}

// ErrOrderLocked is returned by OrderLocker when another worker holds the order
var ErrOrderLocked = errors.New("order is locked by another worker")

// OrderLocker serialises work on a single order across workers
type OrderLocker interface {
	// Acquire locks the order for at most ttl. The returned release func
	// must be called when done; it is safe to call after the lock expired.
	Acquire(ctx context.Context, orderID uuid.UUID, ttl time.Duration) (release func(context.Context) error, err error)
}
