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

// GormBillingScheduleRepository implements billing.BillingScheduleRepository using GORM
type GormBillingScheduleRepository struct {
	db *gorm.DB
}

// NewGormBillingScheduleRepository creates a new GormBillingScheduleRepository
func NewGormBillingScheduleRepository(db *gorm.DB) *GormBillingScheduleRepository {
	return &GormBillingScheduleRepository{db: db}
}

// FindByID finds a billing schedule by its ID
func (r *GormBillingScheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.BillingSchedule, error) {
	var model models.BillingScheduleModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns every billing schedule ordered by label
func (r *GormBillingScheduleRepository) FindAll(ctx context.Context) ([]*billing.BillingSchedule, error) {
	var scheduleModels []models.BillingScheduleModel
	if err := r.db.WithContext(ctx).Order("label ASC").Find(&scheduleModels).Error; err != nil {
		return nil, err
	}
	schedules := make([]*billing.BillingSchedule, len(scheduleModels))
	for i := range scheduleModels {
		schedules[i] = scheduleModels[i].ToDomain()
	}
	return schedules, nil
}

// Save creates or updates a billing schedule
func (r *GormBillingScheduleRepository) Save(ctx context.Context, schedule *billing.BillingSchedule) error {
	return r.db.WithContext(ctx).Save(models.BillingScheduleModelFromDomain(schedule)).Error
}

var _ billing.BillingScheduleRepository = (*GormBillingScheduleRepository)(nil)
