// Package services defines the business logic for causes, donations,
// payouts, balances, and the transaction lifecycle. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"
)

// Lookup errors.
var (
	// ErrCauseNotFound indicates that the requested cause does not exist or
	// has been deleted.
	ErrCauseNotFound = errors.New("cause not found")

	// ErrDonationNotFound indicates that the requested donation does not exist.
	ErrDonationNotFound = errors.New("donation not found")

	// ErrPayoutNotFound indicates that the requested payout does not exist.
	ErrPayoutNotFound = errors.New("payout not found")
)

// Validation errors.
var (
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrInvalidPhone is returned when an MSISDN fails validation.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidCurrency is returned for codes outside the supported set.
	ErrInvalidCurrency = errors.New("unsupported currency")

	// ErrCurrencyMismatch is returned when a donation or payout currency
	// differs from the cause's fixed currency.
	ErrCurrencyMismatch = errors.New("currency does not match cause currency")

	// ErrEmptyName is returned when a cause is created or renamed to blank.
	ErrEmptyName = errors.New("name is required")

	// ErrInsufficientBalance is returned when a payout exceeds the cause's
	// available balance. It is usually wrapped in a *BalanceError.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// State errors.
var (
	// ErrCauseHasTransactions is returned when deleting a cause that is
	// still referenced by donations or payouts.
	ErrCauseHasTransactions = errors.New("cause has donations or payouts")
)

// BalanceError carries the failed balance check behind an
// ErrInsufficientBalance, so callers can report the available amount.
type BalanceError struct {
	Check BalanceCheck
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInsufficientBalance, e.Check.Error)
}

// Unwrap lets errors.Is(err, ErrInsufficientBalance) match.
func (e *BalanceError) Unwrap() error { return ErrInsufficientBalance }
