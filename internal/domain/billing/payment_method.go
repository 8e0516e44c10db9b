package billing

import (
	"bytes"
	"sort"
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/google/uuid"
)

// PaymentMethod is a stored, reusable payment instrument of a customer
type PaymentMethod struct {
	shared.BaseEntity
	StoreID            uuid.UUID
	CustomerID         uuid.UUID
	GatewayCustomerRef string // e.g. Stripe customer id
	GatewayMethodRef   string // e.g. Stripe payment method id
	Label              string
}

// NewPaymentMethod creates a payment method
func NewPaymentMethod(storeID, customerID uuid.UUID, gatewayCustomerRef, gatewayMethodRef, label string, now time.Time) (*PaymentMethod, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if gatewayMethodRef == "" {
		return nil, shared.NewDomainError("INVALID_PAYMENT_METHOD", "Gateway payment method reference is required")
	}
	return &PaymentMethod{
		BaseEntity:         shared.NewBaseEntityAt(now),
		StoreID:            storeID,
		CustomerID:         customerID,
		GatewayCustomerRef: gatewayCustomerRef,
		GatewayMethodRef:   gatewayMethodRef,
		Label:              label,
	}, nil
}

// SelectPaymentMethod picks the most recently created of the distinct methods,
// ties broken by ID. It fails with ErrPaymentMethodNotFound when methods is empty.
func SelectPaymentMethod(methods []*PaymentMethod) (*PaymentMethod, error) {
	seen := make(map[uuid.UUID]bool, len(methods))
	distinct := make([]*PaymentMethod, 0, len(methods))
	for _, m := range methods {
		if m == nil || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		distinct = append(distinct, m)
	}
	if len(distinct) == 0 {
		return nil, ErrPaymentMethodNotFound
	}
	sort.Slice(distinct, func(i, j int) bool {
		if !distinct[i].CreatedAt.Equal(distinct[j].CreatedAt) {
			return distinct[i].CreatedAt.After(distinct[j].CreatedAt)
		}
		return bytes.Compare(distinct[i].ID[:], distinct[j].ID[:]) > 0
	})
	return distinct[0], nil
}
