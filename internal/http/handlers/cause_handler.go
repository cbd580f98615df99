// Cause HTTP handlers.
//
// This file exposes REST endpoints for cause resources:
//   - POST   /causes              (create)
//   - GET    /causes              (list, paginated, ETag support)
//   - GET    /causes/{id}         (read)
//   - PUT    /causes/{id}         (partial update)
//   - DELETE /causes/{id}         (delete; 409 while donations or payouts exist)
//   - GET    /causes/{id}/balance (balance summary)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/services"
)

//
// DTOs
//

// CreateCauseRequest is the JSON payload for creating a cause.
type CreateCauseRequest struct {
	Name        string `json:"name"        binding:"required,max=255"      example:"Clean water for Bafoussam"`
	Description string `json:"description" binding:"max=5000"              example:"Drilling two boreholes"`
	OwnerPhone  string `json:"ownerPhone"  binding:"required,msisdn"       example:"237670000000"`
	Currency    string `json:"currency"    binding:"required,momo_currency" example:"XAF"`
}

// UpdateCauseRequest is the JSON payload for a partial cause update. The
// currency is fixed at creation and cannot be changed.
type UpdateCauseRequest struct {
	Name        *string `json:"name"        binding:"omitempty,max=255" example:"Clean water"`
	Description *string `json:"description" binding:"omitempty,max=5000"`
	OwnerPhone  *string `json:"ownerPhone"  binding:"omitempty,msisdn"  example:"237670000009"`
}

// ListCausesResponse wraps a page of causes and pagination information.
type ListCausesResponse struct {
	Causes     []domain.Cause `json:"causes"`
	Pagination Pagination     `json:"pagination"`
}

// BalanceResponse is the balance summary of a cause. When the amount query
// parameter is set, Check reports whether that payout would be accepted.
type BalanceResponse struct {
	services.Summary
	Check *services.BalanceCheck `json:"check,omitempty"`
}

// causeID validates the :id path parameter.
func causeID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cause id must be a UUID")
		return "", false
	}
	return id, true
}

// CreateCause godoc
// @ID          createCause
// @Summary     Create a cause
// @Description Creates a fundraising cause. The currency is fixed for the cause's lifetime.
// @Tags        Causes
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateCauseRequest  true  "Cause payload"
// @Success     201  {object}  domain.Cause
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /causes [post]
func (h *Handlers) CreateCause(c *gin.Context) {
	var req CreateCauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}

	cause, err := h.causes.Create(c.Request.Context(), services.CauseInput{
		Name:        req.Name,
		Description: req.Description,
		OwnerPhone:  req.OwnerPhone,
		Currency:    req.Currency,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, cause)
}

// ListCauses godoc
// @ID          listCauses
// @Summary     List causes (paginated)
// @Description Returns a page of causes, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Causes
// @Produce     json
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListCausesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /causes [get]
func (h *Handlers) ListCauses(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	if fp, ok := h.causes.(causeFingerprinter); ok {
		if f, err := fp.Fingerprint(ctx); err == nil && notModified(c, f.ETag("causes", page, pageSize)) {
			return
		}
	}

	items, total, err := h.causes.ListPage(ctx, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListCausesResponse{
		Causes:     items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetCause godoc
// @ID          getCause
// @Summary     Get a cause
// @Tags        Causes
// @Produce     json
// @Param       id  path  string  true  "Cause ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.Cause
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Cause not found"
// @Router      /causes/{id} [get]
func (h *Handlers) GetCause(c *gin.Context) {
	id, valid := causeID(c)
	if !valid {
		return
	}
	cause, err := h.causes.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, cause)
}

// UpdateCause godoc
// @ID          updateCause
// @Summary     Update a cause
// @Description Applies a partial update. Omitted fields are left unchanged.
// @Tags        Causes
// @Accept      json
// @Produce     json
// @Param       id    path  string                       true  "Cause ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdateCauseRequest  true  "Fields to change"
// @Success     200  {object}  domain.Cause
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Cause not found"
// @Router      /causes/{id} [put]
func (h *Handlers) UpdateCause(c *gin.Context) {
	id, valid := causeID(c)
	if !valid {
		return
	}
	var req UpdateCauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}

	cause, err := h.causes.Update(c.Request.Context(), id, services.CauseUpdate{
		Name:        req.Name,
		Description: req.Description,
		OwnerPhone:  req.OwnerPhone,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, cause)
}

// DeleteCause godoc
// @ID          deleteCause
// @Summary     Delete a cause
// @Description Deletes a cause that has no donations or payouts.
// @Tags        Causes
// @Param       id  path  string  true  "Cause ID (UUID)"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Cause not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Cause has donations or payouts"
// @Router      /causes/{id} [delete]
func (h *Handlers) DeleteCause(c *gin.Context) {
	id, valid := causeID(c)
	if !valid {
		return
	}
	if err := h.causes.Delete(c.Request.Context(), id); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// CauseBalance godoc
// @ID          causeBalance
// @Summary     Balance of a cause
// @Description Totals of successful donations and completed payouts. With ?amount, also reports whether a payout of that amount would be accepted.
// @Tags        Causes
// @Produce     json
// @Param       id      path   string  true   "Cause ID (UUID)"  format(uuid)
// @Param       amount  query  string  false  "Payout amount to check"  example(60)
// @Success     200  {object}  handlers.BalanceResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Cause not found"
// @Router      /causes/{id}/balance [get]
func (h *Handlers) CauseBalance(c *gin.Context) {
	id, valid := causeID(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()

	summary, err := h.payouts.Summary(ctx, id)
	if err != nil {
		failService(c, err)
		return
	}
	resp := BalanceResponse{Summary: summary}

	if raw := c.Query("amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil || !amount.IsPositive() {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount must be a positive number")
			return
		}
		check, err := h.balance.ValidatePayout(ctx, id, amount)
		if err != nil {
			failService(c, err)
			return
		}
		resp.Check = &check
	}
	ok(c, http.StatusOK, resp)
}
