// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds the helpers shared by donations and
// payouts: write-once reference ids, conditional status transitions, and
// the amount sums the balance is derived from.
//
// Sums are computed in Go over fixed-point decimals rather than with SQL
// SUM(), which returns REAL on SQLite and would lose cents.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/domain"
)

// ErrRefAlreadySet is returned when a gateway reference id is written to a
// record that already carries one.
var ErrRefAlreadySet = errors.New("repo: reference id already set")

func setRef(ctx context.Context, db *gorm.DB, model any, id, refID string) error {
	res := db.WithContext(ctx).
		Model(model).
		Where("id = ? AND momo_ref_id IS NULL", id).
		Updates(map[string]any{
			"momo_ref_id": refID,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrRefAlreadySet
}

// transition is the single write path for lifecycle changes. The
// status = 'pending' guard makes it safe against a webhook and a poll
// racing on the same record: exactly one of them wins.
func transition(ctx context.Context, db *gorm.DB, model any, id string, to domain.Status, financialTxID string) (bool, error) {
	updates := map[string]any{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}
	if financialTxID != "" {
		updates["financial_transaction_id"] = financialTxID
	}
	res := db.WithContext(ctx).
		Model(model).
		Where("id = ? AND status = ?", id, string(domain.StatusPending)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func sumAmounts(ctx context.Context, db *gorm.DB, model any, query string, args ...any) (decimal.Decimal, error) {
	// Plucked as text so numeric (Postgres) and INTEGER/REAL (SQLite)
	// columns all parse the same way.
	var amounts []string
	if err := db.WithContext(ctx).Model(model).Where(query, args...).Pluck("amount", &amounts).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, raw := range amounts {
		a, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("repo: bad amount %q: %w", raw, err)
		}
		total = total.Add(a)
	}
	return total, nil
}

// SumDonations returns the total amount of a cause's donations in status.
func SumDonations(ctx context.Context, db *gorm.DB, causeID string, status domain.Status) (decimal.Decimal, error) {
	return sumAmounts(ctx, db, &domain.Donation{}, "cause_id = ? AND status = ?", causeID, string(status))
}

// SumPayouts returns the total amount of a cause's payouts in status.
func SumPayouts(ctx context.Context, db *gorm.DB, causeID string, status domain.Status) (decimal.Decimal, error) {
	return sumAmounts(ctx, db, &domain.Payout{}, "cause_id = ? AND status = ?", causeID, string(status))
}

// SumInFlightPayouts returns the total of pending payouts that the gateway
// accepted (they carry a reference id) and may still complete.
func SumInFlightPayouts(ctx context.Context, db *gorm.DB, causeID string) (decimal.Decimal, error) {
	return sumAmounts(ctx, db, &domain.Payout{},
		"cause_id = ? AND status = ? AND momo_ref_id IS NOT NULL", causeID, string(domain.StatusPending))
}
