package payment

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
)

// StripeConfig holds configuration for the Stripe gateway
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string

	// BackendURL overrides the API endpoint, e.g. a local stripe-mock
	BackendURL string

	// Timeout bounds each HTTP request to Stripe
	Timeout time.Duration

	// MaxNetworkRetries is passed to the Stripe client. Retries reuse the
	// idempotency key so they cannot double charge.
	MaxNetworkRetries int64
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}
	if !strings.HasPrefix(c.SecretKey, "sk_") && !strings.HasPrefix(c.SecretKey, "rk_") {
		return fmt.Errorf("stripe: secret key must be a secret or restricted key")
	}
	return nil
}

// IsTestMode reports whether the key is a test mode key
func (c *StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.SecretKey, "sk_test") || strings.HasPrefix(c.SecretKey, "rk_test")
}

// backends builds the Stripe API backends for this configuration
func (c *StripeConfig) backends(logger *zap.Logger) *stripe.Backends {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// GetBackendWithConfig fills in the default URL, so each backend needs its own config
	newConfig := func() *stripe.BackendConfig {
		cfg := &stripe.BackendConfig{
			HTTPClient:        &http.Client{Timeout: timeout},
			MaxNetworkRetries: stripe.Int64(c.MaxNetworkRetries),
			LeveledLogger:     logger.Sugar(),
		}
		if c.BackendURL != "" {
			cfg.URL = stripe.String(c.BackendURL)
		}
		return cfg
	}
	return &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, newConfig()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, newConfig()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, newConfig()),
	}
}
