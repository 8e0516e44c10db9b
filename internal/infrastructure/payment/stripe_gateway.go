// Package payment implements billing.PaymentGateway.
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"
)

// StripeGateway charges saved payment methods off session with PaymentIntents
type StripeGateway struct {
	client *client.API
	logger *zap.Logger
}

// NewStripeGateway creates a gateway with its own Stripe client. Nothing is
// stored in the stripe package globals.
func NewStripeGateway(config *StripeConfig, logger *zap.Logger) (*StripeGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return newStripeGatewayWithBackends(config.SecretKey, config.backends(logger), logger), nil
}

func newStripeGatewayWithBackends(key string, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	sc := &client.API{}
	sc.Init(key, backends)
	return &StripeGateway{client: sc, logger: logger}
}

// Charge confirms an off-session PaymentIntent for the order total. Card
// refusals are returned as *billing.DeclineError, a payment method Stripe
// does not know as billing.ErrPaymentMethodNotFound, and everything else is
// a transient error.
func (g *StripeGateway) Charge(ctx context.Context, req billing.ChargeRequest) (*billing.ChargeResult, error) {
	if req.PaymentMethod == nil || req.PaymentMethod.GatewayMethodRef == "" {
		return nil, billing.ErrPaymentMethodNotFound
	}
	amount := req.Amount.MinorUnitAmount()
	if amount <= 0 {
		return nil, fmt.Errorf("stripe: charge amount must be positive, got %s", req.Amount)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(strings.ToLower(string(req.Amount.Currency()))),
		PaymentMethod: stripe.String(req.PaymentMethod.GatewayMethodRef),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	if req.PaymentMethod.GatewayCustomerRef != "" {
		params.Customer = stripe.String(req.PaymentMethod.GatewayCustomerRef)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	params.Metadata = map[string]string{
		"order_id":    req.OrderID.String(),
		"store_id":    req.StoreID.String(),
		"customer_id": req.CustomerID.String(),
	}
	params.Context = ctx

	g.logger.Debug("Creating Stripe payment intent",
		zap.String("order_id", req.OrderID.String()),
		zap.Int64("amount", amount),
		zap.String("idempotency_key", req.IdempotencyKey))

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		mapped := mapStripeError(err)
		g.logger.Warn("Stripe charge failed",
			zap.String("order_id", req.OrderID.String()),
			zap.Bool("decline", billing.IsDecline(mapped)),
			zap.Error(err))
		return nil, mapped
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		g.logger.Info("Stripe charge succeeded",
			zap.String("order_id", req.OrderID.String()),
			zap.String("payment_intent", pi.ID),
			zap.String("status", string(pi.Status)))
		return &billing.ChargeResult{TransactionID: pi.ID, Status: string(pi.Status)}, nil

	case stripe.PaymentIntentStatusRequiresAction:
		// The bank asked for 3-D Secure, which an off-session charge cannot answer
		return nil, billing.NewDeclineError("authentication_required",
			"The payment requires customer authentication.")

	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return nil, billing.NewDeclineError("card_declined", "The payment method was declined.")
	}

	return nil, fmt.Errorf("stripe: payment intent %s ended in unexpected status %s", pi.ID, pi.Status)
}

var _ billing.PaymentGateway = (*StripeGateway)(nil)
