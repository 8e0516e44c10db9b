package notification

import (
	"context"
	"errors"

	"github.com/erp/recurring-billing/internal/domain/billing"
)

// MultiNotifier fans a notification out to several notifiers. Every notifier
// is called even if an earlier one fails; the failures are joined.
type MultiNotifier struct {
	notifiers []billing.Notifier
}

// NewMultiNotifier creates a MultiNotifier, skipping nil entries
func NewMultiNotifier(notifiers ...billing.Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify implements billing.Notifier
func (m *MultiNotifier) Notify(ctx context.Context, notification billing.DunningNotification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ billing.Notifier = (*MultiNotifier)(nil)
