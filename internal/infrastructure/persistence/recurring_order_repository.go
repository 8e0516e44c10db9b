package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRecurringOrderRepository implements billing.RecurringOrderRepository using GORM
type GormRecurringOrderRepository struct {
	db *gorm.DB
}

// NewGormRecurringOrderRepository creates a new GormRecurringOrderRepository
func NewGormRecurringOrderRepository(db *gorm.DB) *GormRecurringOrderRepository {
	return &GormRecurringOrderRepository{db: db}
}

func (r *GormRecurringOrderRepository) withItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("LineItems", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

// FindByID finds an order and its line items
func (r *GormRecurringOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.RecurringOrder, error) {
	var model models.RecurringOrderModel
	if err := r.withItems(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindDraftEndedBefore finds draft orders whose period ended at or before t, oldest period end first
func (r *GormRecurringOrderRepository) FindDraftEndedBefore(ctx context.Context, t time.Time, limit int) ([]*billing.RecurringOrder, error) {
	var orderModels []models.RecurringOrderModel
	query := r.withItems(ctx).
		Where("state = ? AND period_end <= ?", billing.OrderStateDraft, t).
		Order("period_end ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orderModels).Error; err != nil {
		return nil, err
	}
	return ordersToDomain(orderModels)
}

// FindDraftBySubscription finds the draft orders with a line item for the subscription
func (r *GormRecurringOrderRepository) FindDraftBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*billing.RecurringOrder, error) {
	var orderModels []models.RecurringOrderModel
	if err := r.withItems(ctx).
		Where("state = ? AND id IN (?)", billing.OrderStateDraft, r.orderIDsFor(ctx, subscriptionID)).
		Order("period_start ASC").
		Find(&orderModels).Error; err != nil {
		return nil, err
	}
	return ordersToDomain(orderModels)
}

// FindBySubscription finds every order with a line item for the subscription, newest period first
func (r *GormRecurringOrderRepository) FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*billing.RecurringOrder, error) {
	var orderModels []models.RecurringOrderModel
	if err := r.withItems(ctx).
		Where("id IN (?)", r.orderIDsFor(ctx, subscriptionID)).
		Order("period_start DESC").
		Find(&orderModels).Error; err != nil {
		return nil, err
	}
	return ordersToDomain(orderModels)
}

func (r *GormRecurringOrderRepository) orderIDsFor(ctx context.Context, subscriptionID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.OrderLineItemModel{}).
		Select("order_id").
		Where("subscription_id = ?", subscriptionID)
}

// Save creates or updates the order and replaces its line items
func (r *GormRecurringOrderRepository) Save(ctx context.Context, order *billing.RecurringOrder) error {
	model := models.RecurringOrderModelFromDomain(order)
	items := model.LineItems
	model.LineItems = nil

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(model).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderLineItemModel{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

func ordersToDomain(orderModels []models.RecurringOrderModel) ([]*billing.RecurringOrder, error) {
	orders := make([]*billing.RecurringOrder, len(orderModels))
	for i := range orderModels {
		order, err := orderModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		orders[i] = order
	}
	return orders, nil
}

// Ensure GormRecurringOrderRepository implements RecurringOrderRepository
var _ billing.RecurringOrderRepository = (*GormRecurringOrderRepository)(nil)
