package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/services"
)

// CreatePayoutRequest is the JSON payload for a payout to the cause owner.
type CreatePayoutRequest struct {
	CauseID  string          `json:"causeId"  binding:"required,uuid"           example:"7b1c2a9e-4f7d-4a9b-9c1e-2f0a3b4c5d6e"`
	Amount   decimal.Decimal `json:"amount"   swaggertype:"string"              example:"60"`
	Currency string          `json:"currency" binding:"omitempty,momo_currency" example:"XAF"`
}

// ListPayoutsResponse wraps a list of payouts.
type ListPayoutsResponse struct {
	Payouts []domain.Payout `json:"payouts"`
}

func payoutID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payout id must be a UUID")
		return "", false
	}
	return id, true
}

// CreatePayout godoc
// @ID          createPayout
// @Summary     Pay out collected funds
// @Description Validates the amount against the cause balance, records a pending payout, and asks the gateway to transfer it to the cause owner. A gateway refusal is reported with transferInitiated=false and still returns 201.
// @Tags        Payouts
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreatePayoutRequest  true  "Payout payload"
// @Success     201  {object}  services.PayoutResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or insufficient balance"
// @Failure     404  {object}  handlers.ErrorResponse  "Cause not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /payouts [post]
func (h *Handlers) CreatePayout(c *gin.Context) {
	var req CreatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}

	res, err := h.payouts.Create(c.Request.Context(), services.PayoutRequest{
		CauseID:  req.CauseID,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// GetPayout godoc
// @ID          getPayout
// @Summary     Get a payout
// @Tags        Payouts
// @Produce     json
// @Param       id  path  string  true  "Payout ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.Payout
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Payout not found"
// @Router      /payouts/{id} [get]
func (h *Handlers) GetPayout(c *gin.Context) {
	id, valid := payoutID(c)
	if !valid {
		return
	}
	p, err := h.payouts.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// PayoutStatus godoc
// @ID          payoutStatus
// @Summary     Refresh a payout's status
// @Tags        Payouts
// @Produce     json
// @Param       id  path  string  true  "Payout ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.Payout
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Payout not found"
// @Router      /payouts/{id}/status [get]
func (h *Handlers) PayoutStatus(c *gin.Context) {
	id, valid := payoutID(c)
	if !valid {
		return
	}
	p, err := h.tracker.SyncPayout(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// ListCausePayouts godoc
// @ID          listCausePayouts
// @Summary     Payouts of a cause
// @Tags        Payouts
// @Produce     json
// @Param       id  path  string  true  "Cause ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.ListPayoutsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /causes/{id}/payouts [get]
func (h *Handlers) ListCausePayouts(c *gin.Context) {
	id, valid := causeID(c)
	if !valid {
		return
	}
	items, err := h.payouts.ListByCause(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	if items == nil {
		items = []domain.Payout{}
	}
	ok(c, http.StatusOK, ListPayoutsResponse{Payouts: items})
}
