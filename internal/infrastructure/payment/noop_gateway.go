package payment

import (
	"context"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"go.uber.org/zap"
)

// NoopGateway accepts every charge without contacting a provider. It is
// meant for local development and is rejected by production config.
type NoopGateway struct {
	logger *zap.Logger
}

// NewNoopGateway creates a NoopGateway
func NewNoopGateway(logger *zap.Logger) *NoopGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoopGateway{logger: logger}
}

// Charge records the charge as succeeded. A missing payment method still
// fails so dunning can be exercised locally.
func (g *NoopGateway) Charge(_ context.Context, req billing.ChargeRequest) (*billing.ChargeResult, error) {
	if req.PaymentMethod == nil {
		return nil, billing.ErrPaymentMethodNotFound
	}
	g.logger.Info("Accepted charge without a payment provider",
		zap.String("order_id", req.OrderID.String()),
		zap.String("amount", req.Amount.String()))
	return &billing.ChargeResult{TransactionID: "noop_" + req.IdempotencyKey, Status: "succeeded"}, nil
}

var _ billing.PaymentGateway = (*NoopGateway)(nil)
