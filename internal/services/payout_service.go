// Package services – PayoutService
//
// Payout creation is serialized per cause. The lock is held from the
// balance check through gateway initiation and reference assignment, so a
// second payout always sees the first one either as in-flight (reserved)
// or as not initiated. The gateway timeout bounds how long it is held.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/momo"
	"github.com/tbourn/go-donations-backend/internal/repo"
)

const payoutNote = "Funds disbursement from donations"

// PayoutRequest asks for amount to be paid out of a cause.
type PayoutRequest struct {
	CauseID  string
	Amount   decimal.Decimal
	Currency string
}

// PayoutResult reports the stored payout and whether the gateway accepted
// the transfer.
type PayoutResult struct {
	Payout                *domain.Payout  `json:"payout"`
	TransferInitiated     bool            `json:"transferInitiated"`
	TransferError         string          `json:"transferError,omitempty"`
	AvailableBalanceAfter decimal.Decimal `json:"availableBalanceAfter"`
}

// PayoutService creates and reads payouts.
type PayoutService struct {
	DB      *gorm.DB
	Gateway Gateway
	Balance *BalanceService

	locks *keyedMutex
}

// NewPayoutService constructs a PayoutService.
func NewPayoutService(db *gorm.DB, gw Gateway) *PayoutService {
	return &PayoutService{
		DB:      db,
		Gateway: gw,
		Balance: NewBalanceService(db),
		locks:   newKeyedMutex(),
	}
}

// Create validates the payout against the cause balance, stores it as
// pending and asks the gateway to transfer it to the cause owner. A refused
// balance check returns a *BalanceError and stores nothing.
func (s *PayoutService) Create(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	ctx, span := otel.Tracer("services/PayoutService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("cause.id", req.CauseID),
			attribute.String("amount", req.Amount.String()),
		),
	)
	defer span.End()

	if !domain.ValidAmount(req.Amount) {
		return nil, ErrInvalidAmount
	}

	unlock := s.locks.Lock(req.CauseID)
	defer unlock()

	var (
		cause *domain.Cause
		bc    BalanceCheck
		p     *domain.Payout
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		cause, err = repo.LockCause(ctx, tx, req.CauseID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrCauseNotFound
			}
			return err
		}
		cur, err := resolveCurrency(req.Currency, cause)
		if err != nil {
			return err
		}
		bc, err = check(ctx, tx, cause, req.Amount)
		if err != nil {
			return err
		}
		if !bc.Valid {
			payoutRejections.Inc()
			return &BalanceError{Check: bc}
		}
		p, err = repo.CreatePayout(ctx, tx, cause.ID, req.Amount, cur)
		return err
	})
	if err != nil {
		return nil, err
	}

	spendable := bc.Spendable
	res := s.Gateway.InitiateDisbursement(ctx, momo.DisbursementRequest{
		Amount:       p.Amount,
		Currency:     p.Currency,
		ExternalID:   p.ExternalID,
		PayeePhone:   cause.OwnerPhone,
		PayerMessage: "Payout for cause: " + cause.Name,
		PayeeNote:    payoutNote,
	})
	if !res.Success {
		log.Ctx(ctx).Warn().
			Str("payout_id", p.ID).
			Str("error", res.Error).
			Msg("transfer not initiated")
		return &PayoutResult{
			Payout:                p,
			TransferInitiated:     false,
			TransferError:         res.Error,
			AvailableBalanceAfter: spendable,
		}, nil
	}

	if err := repo.SetPayoutRef(ctx, s.DB, p.ID, res.ReferenceID); err != nil {
		return nil, err
	}
	ref := res.ReferenceID
	p.MomoRefID = &ref

	log.Ctx(ctx).Info().
		Str("payout_id", p.ID).
		Str("reference_id", ref).
		Msg("transfer initiated")
	return &PayoutResult{
		Payout:                p,
		TransferInitiated:     true,
		AvailableBalanceAfter: spendable.Sub(p.Amount),
	}, nil
}

// Get returns a payout by ID.
func (s *PayoutService) Get(ctx context.Context, id string) (*domain.Payout, error) {
	p, err := repo.GetPayout(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListByCause returns a cause's payouts, newest first.
func (s *PayoutService) ListByCause(ctx context.Context, causeID string) ([]domain.Payout, error) {
	if _, err := repo.GetCause(ctx, s.DB, causeID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCauseNotFound
		}
		return nil, err
	}
	return repo.ListPayoutsByCause(ctx, s.DB, causeID)
}

// Summary returns donation and payout totals for a cause.
func (s *PayoutService) Summary(ctx context.Context, causeID string) (Summary, error) {
	return s.Balance.Summary(ctx, causeID)
}
