package payment

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/stripe/stripe-go/v81"
)

// Decline codes that mean the card must never be charged again
var hardDeclineCodes = map[string]bool{
	"fraudulent":                       true,
	"lost_card":                        true,
	"stolen_card":                      true,
	"pickup_card":                      true,
	"restricted_card":                  true,
	"security_violation":               true,
	"revocation_of_authorization":      true,
	"revocation_of_all_authorizations": true,
	"stop_payment_order":               true,
}

// mapStripeError converts a stripe-go error into the gateway error contract.
//
//   - card errors become *billing.DeclineError, hard for fraud and lost card codes
//   - an unknown payment method becomes billing.ErrPaymentMethodNotFound
//   - outages, throttling and anything else stay transient
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe: request failed: %w", err)
	}

	if stripeErr.Type == stripe.ErrorTypeCard {
		code := string(stripeErr.DeclineCode)
		if code == "" {
			code = string(stripeErr.Code)
		}
		if hardDeclineCodes[code] {
			return billing.NewHardDeclineError(code, stripeErr.Msg)
		}
		return billing.NewDeclineError(code, stripeErr.Msg)
	}

	if stripeErr.Code == stripe.ErrorCodeResourceMissing && stripeErr.Param == "payment_method" {
		return fmt.Errorf("stripe: %s: %w", stripeErr.Msg, billing.ErrPaymentMethodNotFound)
	}

	if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("stripe: provider unavailable (%d): %w", stripeErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("stripe: %s: %w", stripeErr.Code, err)
}
