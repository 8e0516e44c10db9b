package billing

import (
	"errors"
	"fmt"

	"github.com/erp/recurring-billing/internal/domain/shared"
)

// Billing domain errors
var (
	ErrInvalidPeriod         = shared.NewDomainError("INVALID_PERIOD", "Billing period start must be before its end")
	ErrPaymentMethodNotFound = shared.NewDomainError("PAYMENT_METHOD_NOT_FOUND", "No payment method available for the order")
	ErrOrderNotDraft         = shared.NewDomainError("ORDER_NOT_DRAFT", "Line items can only be changed while the order is a draft")
)

// DeclineError is returned by a payment gateway when the charge was refused.
// Hard declines are not worth retrying.
type DeclineError struct {
	Code    string
	Message string
	Hard    bool
}

// Error implements the error interface
func (e *DeclineError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("payment declined: %s", e.Message)
	}
	return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Message)
}

// NewDeclineError creates a soft (retryable) decline
func NewDeclineError(code, message string) *DeclineError {
	return &DeclineError{Code: code, Message: message}
}

// NewHardDeclineError creates a decline that must not be retried
func NewHardDeclineError(code, message string) *DeclineError {
	return &DeclineError{Code: code, Message: message, Hard: true}
}

// IsDecline reports whether err is a payment decline, hard or soft.
// A missing payment method counts as a hard decline.
func IsDecline(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPaymentMethodNotFound) {
		return true
	}
	var de *DeclineError
	return errors.As(err, &de)
}

// IsHardDecline reports whether err is a decline that skips remaining retries
func IsHardDecline(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPaymentMethodNotFound) {
		return true
	}
	var de *DeclineError
	return errors.As(err, &de) && de.Hard
}

func invalidConfig(format string, args ...any) error {
	return shared.NewDomainError(shared.ErrInvalidConfig.Code, fmt.Sprintf(format, args...))
}
