// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Payout
// model.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/domain"
)

// CreatePayout inserts a pending payout with a fresh ID and external ID.
func CreatePayout(ctx context.Context, db *gorm.DB, causeID string, amount decimal.Decimal, currency string) (*domain.Payout, error) {
	now := time.Now().UTC()
	p := &domain.Payout{
		ID:         uuid.NewString(),
		CauseID:    causeID,
		Amount:     amount,
		Currency:   strings.ToUpper(currency),
		Status:     domain.StatusPending,
		ExternalID: uuid.NewString(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetPayout fetches a payout by ID.
func GetPayout(ctx context.Context, db *gorm.DB, id string) (*domain.Payout, error) {
	var p domain.Payout
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPayoutByRef fetches a payout by its gateway reference id.
func FindPayoutByRef(ctx context.Context, db *gorm.DB, refID string) (*domain.Payout, error) {
	var p domain.Payout
	if err := db.WithContext(ctx).Where("momo_ref_id = ?", refID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPayoutsByCause returns the payouts of a cause, newest first.
func ListPayoutsByCause(ctx context.Context, db *gorm.DB, causeID string) ([]domain.Payout, error) {
	var out []domain.Payout
	err := db.WithContext(ctx).
		Where("cause_id = ?", causeID).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}

// SetPayoutRef records the gateway reference id, once.
func SetPayoutRef(ctx context.Context, db *gorm.DB, id, refID string) error {
	return setRef(ctx, db, &domain.Payout{}, id, refID)
}

// TransitionPayout moves a pending payout to status to. It reports false,
// with no error, when the payout was no longer pending.
func TransitionPayout(ctx context.Context, db *gorm.DB, id string, to domain.Status, financialTxID string) (bool, error) {
	return transition(ctx, db, &domain.Payout{}, id, to, financialTxID)
}
