// Package services – BalanceService
//
// The balance of a cause is never stored. It is recomputed from the ledger
// on every read:
//
//	available = Σ donations(success) − Σ payouts(completed)
//
// Payout validation additionally holds back in-flight payouts (pending and
// accepted by the gateway), which may still complete and would otherwise
// let two payouts spend the same funds.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/repo"
)

// BalanceCheck is the result of validating a payout amount against a cause.
// Spendable is AvailableBalance minus Reserved; a payout is accepted when it
// does not exceed Spendable.
type BalanceCheck struct {
	Valid            bool            `json:"valid"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	Reserved         decimal.Decimal `json:"reserved"`
	Spendable        decimal.Decimal `json:"spendable"`
	Currency         string          `json:"currency"`
	Error            string          `json:"error,omitempty"`
}

// Summary is the payout summary of a cause.
type Summary struct {
	CauseID          string          `json:"causeId"`
	TotalDonations   decimal.Decimal `json:"totalDonations"`
	TotalPayouts     decimal.Decimal `json:"totalPayouts"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	Currency         string          `json:"currency"`
}

// BalanceService computes derived balances.
type BalanceService struct {
	DB *gorm.DB
}

// NewBalanceService constructs a BalanceService.
func NewBalanceService(db *gorm.DB) *BalanceService {
	return &BalanceService{DB: db}
}

// ValidatePayout reports whether amount can be paid out of causeID. A
// missing cause is a negative result, not an error; errors are reserved for
// persistence failures.
func (s *BalanceService) ValidatePayout(ctx context.Context, causeID string, amount decimal.Decimal) (BalanceCheck, error) {
	ctx, span := otel.Tracer("services/BalanceService").Start(ctx, "ValidatePayout",
		trace.WithAttributes(
			attribute.String("cause.id", causeID),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	cause, err := repo.GetCause(ctx, s.DB, causeID)
	if errors.Is(err, repo.ErrNotFound) {
		return BalanceCheck{
			Valid:            false,
			AvailableBalance: decimal.Zero,
			Reserved:         decimal.Zero,
			Spendable:        decimal.Zero,
			Error:            "Cause not found",
		}, nil
	}
	if err != nil {
		return BalanceCheck{}, err
	}
	return check(ctx, s.DB, cause, amount)
}

// Summary returns donation and payout totals for a cause.
func (s *BalanceService) Summary(ctx context.Context, causeID string) (Summary, error) {
	ctx, span := otel.Tracer("services/BalanceService").Start(ctx, "Summary",
		trace.WithAttributes(attribute.String("cause.id", causeID)),
	)
	defer span.End()

	cause, err := repo.GetCause(ctx, s.DB, causeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Summary{}, ErrCauseNotFound
		}
		return Summary{}, err
	}

	donations, err := repo.SumDonations(ctx, s.DB, causeID, domain.StatusSuccess)
	if err != nil {
		return Summary{}, err
	}
	payouts, err := repo.SumPayouts(ctx, s.DB, causeID, domain.StatusCompleted)
	if err != nil {
		return Summary{}, err
	}
	cur, err := causeCurrency(ctx, s.DB, cause)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		CauseID:          causeID,
		TotalDonations:   donations,
		TotalPayouts:     payouts,
		AvailableBalance: donations.Sub(payouts),
		Currency:         cur,
	}, nil
}

// check runs the balance rule for an already loaded cause. db may be a
// transaction holding the cause lock.
func check(ctx context.Context, db *gorm.DB, cause *domain.Cause, amount decimal.Decimal) (BalanceCheck, error) {
	donations, err := repo.SumDonations(ctx, db, cause.ID, domain.StatusSuccess)
	if err != nil {
		return BalanceCheck{}, err
	}
	payouts, err := repo.SumPayouts(ctx, db, cause.ID, domain.StatusCompleted)
	if err != nil {
		return BalanceCheck{}, err
	}
	reserved, err := repo.SumInFlightPayouts(ctx, db, cause.ID)
	if err != nil {
		return BalanceCheck{}, err
	}
	cur, err := causeCurrency(ctx, db, cause)
	if err != nil {
		return BalanceCheck{}, err
	}

	available := donations.Sub(payouts)
	out := BalanceCheck{
		Valid:            true,
		AvailableBalance: available,
		Reserved:         reserved,
		Spendable:        available.Sub(reserved),
		Currency:         cur,
	}
	if amount.GreaterThan(out.Spendable) {
		out.Valid = false
		out.Error = insufficientMessage(out)
	}
	return out, nil
}

// insufficientMessage names every number the refusal rests on, so the
// message never contradicts the fields next to it.
func insufficientMessage(bc BalanceCheck) string {
	if !bc.Reserved.IsPositive() {
		return fmt.Sprintf("Insufficient balance. Available: %s %s", bc.AvailableBalance.String(), bc.Currency)
	}
	return fmt.Sprintf("Insufficient balance. Available: %s %s, of which %s %s is held by pending payouts; spendable: %s %s",
		bc.AvailableBalance.String(), bc.Currency,
		bc.Reserved.String(), bc.Currency,
		bc.Spendable.String(), bc.Currency)
}

// causeCurrency returns the cause's fixed currency, falling back to its
// most recent donation for causes created before currency was recorded.
func causeCurrency(ctx context.Context, db *gorm.DB, cause *domain.Cause) (string, error) {
	if cause.Currency != "" {
		return cause.Currency, nil
	}
	return repo.LatestDonationCurrency(ctx, db, cause.ID)
}
