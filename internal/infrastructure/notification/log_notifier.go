package notification

import (
	"context"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the application log. It is used when
// no delivery channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements billing.Notifier
func (n *LogNotifier) Notify(_ context.Context, notification billing.DunningNotification) error {
	fields := []zap.Field{
		zap.String("kind", string(notification.Kind)),
		zap.String("order_id", notification.OrderID.String()),
		zap.String("store_id", notification.StoreID.String()),
		zap.String("customer_id", notification.CustomerID.String()),
		zap.Int("attempt", notification.Attempt),
		zap.Int("max_retries", notification.MaxRetries),
	}
	if notification.Kind == billing.NotificationDunningComplete {
		fields = append(fields, zap.String("disposition", string(notification.Disposition)))
	} else {
		fields = append(fields, zap.Int("retry_days", notification.RetryDays))
	}
	if notification.Reason != "" {
		fields = append(fields, zap.String("reason", notification.Reason))
	}
	n.logger.Info("Dunning notification", fields...)
	return nil
}

var _ billing.Notifier = (*LogNotifier)(nil)
