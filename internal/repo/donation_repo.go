// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Donation
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

// NewDonation carries the fields needed to insert a donation.
type NewDonation struct {
	CauseID      string
	DonorPhone   string
	Amount       decimal.Decimal
	Currency     string
	PayerMessage *string
}

// CreateDonation inserts a pending donation with a fresh ID and external ID.
// The gateway reference id is left nil.
func CreateDonation(ctx context.Context, db *gorm.DB, in NewDonation) (*domain.Donation, error) {
	now := time.Now().UTC()
	d := &domain.Donation{
		ID:           uuid.NewString(),
		CauseID:      in.CauseID,
		DonorPhone:   in.DonorPhone,
		Amount:       in.Amount,
		Currency:     strings.ToUpper(in.Currency),
		Status:       domain.StatusPending,
		ExternalID:   uuid.NewString(),
		PayerMessage: in.PayerMessage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// GetDonation fetches a donation by ID.
func GetDonation(ctx context.Context, db *gorm.DB, id string) (*domain.Donation, error) {
	var d domain.Donation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// FindDonationByRef fetches a donation by its gateway reference id.
func FindDonationByRef(ctx context.Context, db *gorm.DB, refID string) (*domain.Donation, error) {
	var d domain.Donation
	if err := db.WithContext(ctx).Where("momo_ref_id = ?", refID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDonationsByCause returns the donations of a cause, newest first.
func ListDonationsByCause(ctx context.Context, db *gorm.DB, causeID string) ([]domain.Donation, error) {
	var out []domain.Donation
	err := db.WithContext(ctx).
		Where("cause_id = ?", causeID).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}

// ListDonationsByDonor returns every donation made from phone, newest first.
func ListDonationsByDonor(ctx context.Context, db *gorm.DB, phone string) ([]domain.Donation, error) {
	var out []domain.Donation
	err := db.WithContext(ctx).
		Where("donor_phone = ?", phone).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}

// SetDonationRef records the gateway reference id. The id is written once:
// if the donation is missing or already carries a reference, ErrRefAlreadySet
// or ErrNotFound is returned and nothing changes.
func SetDonationRef(ctx context.Context, db *gorm.DB, id, refID string) error {
	return setRef(ctx, db, &domain.Donation{}, id, refID)
}

// TransitionDonation moves a pending donation to status to. It reports
// false, with no error, when the donation was no longer pending.
func TransitionDonation(ctx context.Context, db *gorm.DB, id string, to domain.Status, financialTxID string) (bool, error) {
	return transition(ctx, db, &domain.Donation{}, id, to, financialTxID)
}

// LatestDonationCurrency returns the currency of the most recent donation
// to a cause, or "" when there is none.
func LatestDonationCurrency(ctx context.Context, db *gorm.DB, causeID string) (string, error) {
	var row struct{ Currency string }
	err := db.WithContext(ctx).
		Model(&domain.Donation{}).
		Select("currency").
		Where("cause_id = ?", causeID).
		Order("created_at desc").
		Limit(1).
		Scan(&row).Error
	return row.Currency, err
}
