package billing

import (
	"context"
	"errors"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"go.uber.org/zap"
)

// LicenseService stores the licenses granted by license subscriptions
type LicenseService struct {
	licenses billing.LicenseRepository
	now      func() time.Time
	logger   *zap.Logger
}

// NewLicenseService creates a new LicenseService
func NewLicenseService(licenses billing.LicenseRepository, logger *zap.Logger) *LicenseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LicenseService{
		licenses: licenses,
		now:      time.Now,
		logger:   logger,
	}
}

// Grant creates the license of sub, or extends it if one already exists
func (s *LicenseService) Grant(ctx context.Context, sub *billing.Subscription, expiresAt time.Time) error {
	now := s.now()
	license, err := s.licenses.FindBySubscription(ctx, sub.ID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		license = billing.NewLicense(sub, expiresAt, now)
	case err != nil:
		return err
	default:
		license.Extend(expiresAt, now)
	}
	if err := s.licenses.Save(ctx, license); err != nil {
		return err
	}
	s.logger.Info("License granted",
		zap.String("subscription_id", sub.ID.String()),
		zap.Time("expires_at", license.ExpiresAt))
	return nil
}

// Extend moves the license expiry of sub forward
func (s *LicenseService) Extend(ctx context.Context, sub *billing.Subscription, expiresAt time.Time) error {
	license, err := s.licenses.FindBySubscription(ctx, sub.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return s.Grant(ctx, sub, expiresAt)
	}
	if err != nil {
		return err
	}
	license.Extend(expiresAt, s.now())
	return s.licenses.Save(ctx, license)
}

// Revoke ends the license of sub at once. Subscriptions without a license
// and licenses already revoked are left alone.
func (s *LicenseService) Revoke(ctx context.Context, sub *billing.Subscription) error {
	license, err := s.licenses.FindBySubscription(ctx, sub.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if license.State == billing.LicenseStateRevoked {
		return nil
	}
	license.Revoke(s.now())
	if err := s.licenses.Save(ctx, license); err != nil {
		return err
	}
	s.logger.Info("License revoked",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("subscription_state", string(sub.State)))
	return nil
}

var _ billing.LicenseService = (*LicenseService)(nil)
