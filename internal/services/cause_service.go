// Package services – CauseService
//
// This file implements the CauseService, which manages the lifecycle of
// causes: creation with a fixed currency, paginated listing, partial
// updates, and deletion. Deletion is refused while any donation or payout
// references the cause, so the ledger behind a balance is never orphaned.
//
// Service-level errors (e.g., ErrCauseNotFound) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/repo"
	"github.com/tbourn/go-donations-backend/internal/utils"
)

// CauseRepo defines the repository contract required by CauseService.
type CauseRepo interface {
	// CreateCause inserts a new cause row.
	CreateCause(ctx context.Context, db *gorm.DB, in repo.NewCause) (*domain.Cause, error)

	// GetCause fetches a live cause by ID.
	GetCause(ctx context.Context, db *gorm.DB, id string) (*domain.Cause, error)

	// LockCause is GetCause holding the row until the transaction ends.
	LockCause(ctx context.Context, tx *gorm.DB, id string) (*domain.Cause, error)

	// CountCauses returns the total number of live causes for pagination.
	CountCauses(ctx context.Context, db *gorm.DB) (int64, error)

	// ListCausesPage returns a page of causes, newest first.
	ListCausesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Cause, error)

	// UpdateCause applies a partial update.
	UpdateCause(ctx context.Context, db *gorm.DB, id string, p repo.CausePatch) error

	// DeleteCause soft-deletes a cause.
	DeleteCause(ctx context.Context, db *gorm.DB, id string) error

	// CountCauseTransactions counts donations and payouts of a cause.
	CountCauseTransactions(ctx context.Context, db *gorm.DB, id string) (int64, error)
}

// CauseInput carries user-supplied cause fields.
type CauseInput struct {
	Name        string
	Description string
	OwnerPhone  string
	Currency    string
}

// CauseUpdate carries a partial update; nil fields are unchanged.
type CauseUpdate struct {
	Name        *string
	Description *string
	OwnerPhone  *string
}

// CauseService provides cause-level operations.
type CauseService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the cause repository used by this service.
	Repo CauseRepo

	// NameMaxLen caps stored names by rune length.
	NameMaxLen int
}

// NewCauseService constructs a CauseService with default limits.
func NewCauseService(db *gorm.DB, r CauseRepo) *CauseService {
	return &CauseService{DB: db, Repo: r, NameMaxLen: 255}
}

// Create validates and inserts a cause.
func (s *CauseService) Create(ctx context.Context, in CauseInput) (*domain.Cause, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrEmptyName
	}
	phone := domain.NormalizePhone(in.OwnerPhone)
	if !domain.ValidPhone(phone) {
		return nil, ErrInvalidPhone
	}
	if !domain.SupportedCurrency(in.Currency) {
		return nil, ErrInvalidCurrency
	}
	return s.Repo.CreateCause(ctx, s.DB, repo.NewCause{
		Name:        s.clip(name),
		Description: strings.TrimSpace(in.Description),
		OwnerPhone:  phone,
		Currency:    domain.NormalizeCurrency(in.Currency),
	})
}

// Get returns a cause by ID.
func (s *CauseService) Get(ctx context.Context, id string) (*domain.Cause, error) {
	c, err := s.Repo.GetCause(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCauseNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListPage returns a page of causes and the total count. It applies
// defaults for invalid page/pageSize.
func (s *CauseService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Cause, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := s.Repo.CountCauses(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Cause{}, 0, nil
	}

	items, err := s.Repo.ListCausesPage(ctx, s.DB, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Fingerprint reports the change marker of the cause listing.
func (s *CauseService) Fingerprint(ctx context.Context) (repo.Fingerprint, error) {
	return repo.CauseFingerprint(ctx, s.DB)
}

// Update applies a partial update and returns the updated cause. The
// currency of a cause cannot be changed.
func (s *CauseService) Update(ctx context.Context, id string, u CauseUpdate) (*domain.Cause, error) {
	var p repo.CausePatch
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, ErrEmptyName
		}
		name = s.clip(name)
		p.Name = &name
	}
	if u.Description != nil {
		d := strings.TrimSpace(*u.Description)
		p.Description = &d
	}
	if u.OwnerPhone != nil {
		phone := domain.NormalizePhone(*u.OwnerPhone)
		if !domain.ValidPhone(phone) {
			return nil, ErrInvalidPhone
		}
		p.OwnerPhone = &phone
	}

	if err := s.Repo.UpdateCause(ctx, s.DB, id, p); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCauseNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a cause that has no donations or payouts. The check and
// the delete run in one transaction.
func (s *CauseService) Delete(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Donation and payout inserts lock the same row, so none can slip in
		// between the count and the delete.
		if _, err := s.Repo.LockCause(ctx, tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCauseNotFound
			}
			return err
		}
		n, err := s.Repo.CountCauseTransactions(ctx, tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrCauseHasTransactions
		}
		if err := s.Repo.DeleteCause(ctx, tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCauseNotFound
			}
			return err
		}
		return nil
	})
}

func (s *CauseService) clip(name string) string {
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}
