// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Cause model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a cause is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateCause(ctx, db, in) -> *domain.Cause, error
//     Inserts a new Cause row with UUID primary key and UTC timestamps.
//
//   - GetCause(ctx, db, id) -> *domain.Cause, error
//     Fetches a single cause, or ErrNotFound if missing or soft-deleted.
//
//   - LockCause(ctx, tx, id) -> *domain.Cause, error
//     Like GetCause, but takes a row lock on PostgreSQL. Call inside a
//     transaction.
//
//   - ListCausesPage(ctx, db, offset, limit) / CountCauses(ctx, db)
//     Paginated listing, newest first.
//
//   - UpdateCause(ctx, db, id, patch) -> error
//     Applies non-nil fields of patch. ErrNotFound if nothing matched.
//
//   - DeleteCause(ctx, db, id) -> error
//     Soft-deletes a cause. ErrNotFound if nothing matched.
//
//   - CountCauseTransactions(ctx, db, id) -> int64, error
//     Number of donations plus payouts referencing the cause.
//
// Usage:
//
//	c, err := repo.GetCause(ctx, db, id)
//	if errors.Is(err, repo.ErrNotFound) {
//	    // handle missing
//	} else if err != nil {
//	    // handle DB failure
//	}
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-donations-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// NewCause carries the fields needed to insert a cause.
type NewCause struct {
	Name        string
	Description string
	OwnerPhone  string
	Currency    string
}

// CausePatch describes a partial update; nil fields are left untouched.
// Currency is deliberately absent: it is fixed at creation.
type CausePatch struct {
	Name        *string
	Description *string
	OwnerPhone  *string
}

// CreateCause inserts a new Cause row. The currency code is upper-cased.
func CreateCause(ctx context.Context, db *gorm.DB, in NewCause) (*domain.Cause, error) {
	now := time.Now().UTC()
	c := &domain.Cause{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		OwnerPhone:  in.OwnerPhone,
		Currency:    strings.ToUpper(in.Currency),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetCause fetches a single cause by ID. Soft-deleted causes are reported
// as ErrNotFound.
func GetCause(ctx context.Context, db *gorm.DB, id string) (*domain.Cause, error) {
	var c domain.Cause
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// LockCause reads a cause and, on PostgreSQL, holds a FOR UPDATE lock on
// its row until the surrounding transaction ends. Payout validation and
// insertion for one cause serialize on this lock across processes.
func LockCause(ctx context.Context, tx *gorm.DB, id string) (*domain.Cause, error) {
	q := tx.WithContext(ctx)
	if IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c domain.Cause
	if err := q.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CountCauses returns the total number of live causes.
func CountCauses(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Cause{}).Count(&total).Error
	return total, err
}

// ListCausesPage returns a paginated slice of causes ordered by creation
// time descending.
func ListCausesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Cause, error) {
	var out []domain.Cause
	err := db.WithContext(ctx).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateCause applies the non-nil fields of p to the cause identified by id.
// An empty patch only bumps UpdatedAt. Returns ErrNotFound when no live row
// matched.
func UpdateCause(ctx context.Context, db *gorm.DB, id string, p CausePatch) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if p.Name != nil {
		updates["name"] = *p.Name
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.OwnerPhone != nil {
		updates["owner_phone"] = *p.OwnerPhone
	}
	res := db.WithContext(ctx).
		Model(&domain.Cause{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteCause soft-deletes a cause. Returns ErrNotFound when no live row
// matched.
func DeleteCause(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Cause{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountCauseTransactions returns how many donations and payouts reference
// the cause, regardless of their status.
func CountCauseTransactions(ctx context.Context, db *gorm.DB, causeID string) (int64, error) {
	var donations, payouts int64
	if err := db.WithContext(ctx).Model(&domain.Donation{}).
		Where("cause_id = ?", causeID).Count(&donations).Error; err != nil {
		return 0, err
	}
	if err := db.WithContext(ctx).Model(&domain.Payout{}).
		Where("cause_id = ?", causeID).Count(&payouts).Error; err != nil {
		return 0, err
	}
	return donations + payouts, nil
}
