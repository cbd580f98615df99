package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-donations-backend/internal/http/middleware"
	"github.com/tbourn/go-donations-backend/internal/services"
)

// ErrorResponse is the error body of every endpoint.
//
//	{"request_id": "…", "code": "not_found", "message": "cause not found"}
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"cause not found"`
}

// fail aborts with an ErrorResponse; 5xx responses are also logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Strs("errors", c.Errors.Errors()).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for the router's NoRoute and NoMethod fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }

// errorRoute sends any of its sentinels to one status and code.
type errorRoute struct {
	status int
	code   string
	is     []error
}

var errorRoutes = []errorRoute{
	{http.StatusNotFound, ErrCodeNotFound, []error{
		services.ErrCauseNotFound, services.ErrDonationNotFound, services.ErrPayoutNotFound,
		services.ErrUserNotFound,
	}},
	{http.StatusBadRequest, ErrCodeCurrencyMismatch, []error{services.ErrCurrencyMismatch}},
	{http.StatusBadRequest, ErrCodeValidation, []error{
		services.ErrInvalidAmount, services.ErrInvalidPhone, services.ErrInvalidCurrency,
		services.ErrEmptyName, services.ErrInsufficientBalance,
		services.ErrInvalidEmail, services.ErrWeakPassword,
	}},
	{http.StatusBadRequest, ErrCodeEmailTaken, []error{services.ErrEmailTaken}},
	{http.StatusUnauthorized, ErrCodeUnauthorized, []error{services.ErrInvalidCredentials}},
	{http.StatusConflict, ErrCodeConflict, []error{services.ErrCauseHasTransactions}},
}

// failService answers with the status registered for err. A refused
// payout keeps the balance message; anything unknown is an opaque 500.
func failService(c *gin.Context, err error) {
	var be *services.BalanceError
	if errors.As(err, &be) {
		fail(c, http.StatusBadRequest, ErrCodeInsufficientBalance, be.Check.Error)
		return
	}
	for _, r := range errorRoutes {
		for _, target := range r.is {
			if errors.Is(err, target) {
				fail(c, r.status, r.code, err.Error())
				return
			}
		}
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}
