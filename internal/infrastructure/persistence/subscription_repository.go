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

// GormSubscriptionRepository implements billing.SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// FindByID finds a subscription by its ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByIDs finds the subscriptions with the given IDs, in the order requested
func (r *GormSubscriptionRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*billing.Subscription, error) {
	if len(ids) == 0 {
		return []*billing.Subscription{}, nil
	}

	var subModels []models.SubscriptionModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&subModels).Error; err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.SubscriptionModel, len(subModels))
	for i := range subModels {
		byID[subModels[i].ID] = &subModels[i]
	}
	subs := make([]*billing.Subscription, 0, len(subModels))
	for _, id := range ids {
		model, ok := byID[id]
		if !ok {
			continue
		}
		delete(byID, id)
		sub, err := model.ToDomain()
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// FindByCustomer finds every subscription of a customer, oldest first
func (r *GormSubscriptionRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]*billing.Subscription, error) {
	var subModels []models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at ASC").
		Find(&subModels).Error; err != nil {
		return nil, err
	}
	return subscriptionsToDomain(subModels)
}

// Save creates or updates a subscription
func (r *GormSubscriptionRepository) Save(ctx context.Context, sub *billing.Subscription) error {
	model := models.SubscriptionModelFromDomain(sub)
	return r.db.WithContext(ctx).Save(model).Error
}

func subscriptionsToDomain(subModels []models.SubscriptionModel) ([]*billing.Subscription, error) {
	subs := make([]*billing.Subscription, len(subModels))
	for i := range subModels {
		sub, err := subModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		subs[i] = sub
	}
	return subs, nil
}

// Ensure GormSubscriptionRepository implements SubscriptionRepository
var _ billing.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
