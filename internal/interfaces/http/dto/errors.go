package dto

import (
	"net/http"
	"strings"
)

// Error codes
// Format: ERR_<CATEGORY>[_<DESCRIPTION>]
const (
	ErrCodeInternal     = "ERR_INTERNAL"
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeNotFound     = "ERR_NOT_FOUND"
	ErrCodeConflict     = "ERR_CONFLICT"
	// ErrCodeOrderLocked means another worker holds the order lock
	ErrCodeOrderLocked = "ERR_ORDER_LOCKED"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeBusinessRule        = "ERR_BUSINESS_RULE"
	ErrCodePaymentMethod       = "ERR_PAYMENT_METHOD_NOT_FOUND"
	ErrCodeRateLimited         = "ERR_RATE_LIMITED"
	ErrCodeRequestTooLarge     = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeOrderLocked:         http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:        http.StatusUnprocessableEntity,
	ErrCodePaymentMethod:       http.StatusUnprocessableEntity,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code. Any
// ERR_VALIDATION_* code is a 400, unknown codes are a 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	if strings.HasPrefix(code, ErrCodeValidation+"_") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// domainCodes maps domain error codes to API error codes
var domainCodes = map[string]string{
	"NOT_FOUND":                ErrCodeNotFound,
	"ALREADY_EXISTS":           ErrCodeConflict,
	"INVALID_INPUT":            ErrCodeInvalidInput,
	"INVALID_STATE":            ErrCodeInvalidState,
	"INVALID_CONFIG":           ErrCodeInvalidInput,
	"CONCURRENCY_CONFLICT":     ErrCodeConcurrencyConflict,
	"ORDER_NOT_DRAFT":          ErrCodeInvalidState,
	"NO_BILLABLE_SUBSCRIPTION": ErrCodeBusinessRule,
	"CURRENCY_MISMATCH":        ErrCodeBusinessRule,
	"PAYMENT_METHOD_NOT_FOUND": ErrCodePaymentMethod,
}

// NormalizeErrorCode converts a domain error code to an API error code.
// Domain INVALID_<X> codes become ERR_VALIDATION_<X>; codes already in the
// ERR_ format pass through.
func NormalizeErrorCode(code string) string {
	if mapped, ok := domainCodes[code]; ok {
		return mapped
	}
	if rest, ok := strings.CutPrefix(code, "INVALID_"); ok {
		return ErrCodeValidation + "_" + rest
	}
	if strings.HasPrefix(code, "ERR_") {
		return code
	}
	return ErrCodeBusinessRule
}
