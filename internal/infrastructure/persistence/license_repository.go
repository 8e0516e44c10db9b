package persistence

import (
	"context"
	"errors"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLicenseRepository implements billing.LicenseRepository using GORM
type GormLicenseRepository struct {
	db *gorm.DB
}

// NewGormLicenseRepository creates a new GormLicenseRepository
func NewGormLicenseRepository(db *gorm.DB) *GormLicenseRepository {
	return &GormLicenseRepository{db: db}
}

// FindBySubscription finds the license granted for a subscription
func (r *GormLicenseRepository) FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*billing.License, error) {
	var model models.LicenseModel
	if err := r.db.WithContext(ctx).First(&model, "subscription_id = ?", subscriptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a license
func (r *GormLicenseRepository) Save(ctx context.Context, license *billing.License) error {
	model := &models.LicenseModel{}
	model.FromDomain(license)
	return r.db.WithContext(ctx).Save(model).Error
}

var _ billing.LicenseRepository = (*GormLicenseRepository)(nil)
