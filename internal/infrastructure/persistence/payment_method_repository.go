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

// GormPaymentMethodRepository implements billing.PaymentMethodRepository using GORM
type GormPaymentMethodRepository struct {
	db *gorm.DB
}

// NewGormPaymentMethodRepository creates a new GormPaymentMethodRepository
func NewGormPaymentMethodRepository(db *gorm.DB) *GormPaymentMethodRepository {
	return &GormPaymentMethodRepository{db: db}
}

// FindByID finds a payment method by its ID
func (r *GormPaymentMethodRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentMethod, error) {
	var model models.PaymentMethodModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs finds the payment methods with the given IDs
func (r *GormPaymentMethodRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*billing.PaymentMethod, error) {
	if len(ids) == 0 {
		return []*billing.PaymentMethod{}, nil
	}
	var methodModels []models.PaymentMethodModel
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at ASC").
		Find(&methodModels).Error; err != nil {
		return nil, err
	}
	return paymentMethodsToDomain(methodModels), nil
}

// FindByCustomer finds the payment methods of a customer, oldest first
func (r *GormPaymentMethodRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]*billing.PaymentMethod, error) {
	var methodModels []models.PaymentMethodModel
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at ASC").
		Find(&methodModels).Error; err != nil {
		return nil, err
	}
	return paymentMethodsToDomain(methodModels), nil
}

// Save creates or updates a payment method
func (r *GormPaymentMethodRepository) Save(ctx context.Context, method *billing.PaymentMethod) error {
	model := &models.PaymentMethodModel{}
	model.FromDomain(method)
	return r.db.WithContext(ctx).Save(model).Error
}

func paymentMethodsToDomain(methodModels []models.PaymentMethodModel) []*billing.PaymentMethod {
	methods := make([]*billing.PaymentMethod, len(methodModels))
	for i := range methodModels {
		methods[i] = methodModels[i].ToDomain()
	}
	return methods
}

var _ billing.PaymentMethodRepository = (*GormPaymentMethodRepository)(nil)
