// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Every error response carries an HTTP status and one of these codes, so
// clients can branch on a stable, machine-readable value instead of on the
// message text. Generic codes mirror HTTP semantics; the payment codes
// describe business refusals that share status 400.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "insufficient_balance",
//	  "message": "Insufficient balance. Available: 60 XAF"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation          = "validation_failed"
	ErrCodeCurrencyMismatch    = "currency_mismatch"
	ErrCodeInsufficientBalance = "insufficient_balance"
	ErrCodeInvalidWebhook      = "invalid_webhook"
	ErrCodeEmailTaken          = "email_taken"
)
