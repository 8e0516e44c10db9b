package billing

import (
	"time"

	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/google/uuid"
)

// LicenseState represents the state of a license
type LicenseState string

const (
	LicenseStateActive  LicenseState = "active"
	LicenseStateRevoked LicenseState = "revoked"
)

// License grants access for as long as its subscription is paid
type License struct {
	shared.BaseEntity
	StoreID            uuid.UUID
	SubscriptionID     uuid.UUID
	CustomerID         uuid.UUID
	PurchasedEntityRef string
	State              LicenseState
	ExpiresAt          time.Time
}

// NewLicense creates an active license for sub
func NewLicense(sub *Subscription, expiresAt, now time.Time) *License {
	return &License{
		BaseEntity:         shared.NewBaseEntityAt(now),
		StoreID:            sub.StoreID,
		SubscriptionID:     sub.ID,
		CustomerID:         sub.CustomerID,
		PurchasedEntityRef: sub.PurchasedEntityRef,
		State:              LicenseStateActive,
		ExpiresAt:          expiresAt,
	}
}

// Extend moves the expiry forward; it never shortens a license
func (l *License) Extend(expiresAt, now time.Time) {
	if expiresAt.After(l.ExpiresAt) {
		l.ExpiresAt = expiresAt
	}
	l.State = LicenseStateActive
	l.Touch(now)
}

// Revoke ends the license immediately
func (l *License) Revoke(now time.Time) {
	l.State = LicenseStateRevoked
	l.Touch(now)
}

// IsValidAt reports whether the license grants access at t
func (l *License) IsValidAt(t time.Time) bool {
	return l.State == LicenseStateActive && t.Before(l.ExpiresAt)
}
