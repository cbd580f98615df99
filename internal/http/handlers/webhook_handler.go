package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-donations-backend/internal/http/middleware"
	"github.com/tbourn/go-donations-backend/internal/services"
)

// WebhookRequest is the callback body the gateway posts when a collection or
// transfer settles. Reason is free-form: some environments send a string,
// others an object.
type WebhookRequest struct {
	ReferenceID            string          `json:"referenceId"            example:"0c6a4c0f-7d55-4a4f-8b8d-2b4d3f5e6a7b"`
	Status                 string          `json:"status"                 example:"SUCCESSFUL"`
	FinancialTransactionID string          `json:"financialTransactionId" example:"1234567890"`
	Reason                 json.RawMessage `json:"reason,omitempty"       swaggertype:"string"`
}

// WebhookResponse acknowledges a callback.
type WebhookResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Webhook processed successfully"`
}

type callbackFunc func(context.Context, services.Callback) (services.WebhookOutcome, error)

// CollectionWebhook godoc
// @ID          collectionWebhook
// @Summary     Collection callback
// @Description Applies a RequestToPay result to the matching donation. Unknown references are acknowledged with 200.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.WebhookRequest  true  "Gateway callback"
// @Success     200  {object}  handlers.WebhookResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed payload"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhooks/momo/collection [post]
func (h *Handlers) CollectionWebhook(c *gin.Context) {
	h.webhook(c, "donation", h.tracker.HandleCollectionCallback)
}

// DisbursementWebhook godoc
// @ID          disbursementWebhook
// @Summary     Disbursement callback
// @Description Applies a Transfer result to the matching payout. Unknown references are acknowledged with 200.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.WebhookRequest  true  "Gateway callback"
// @Success     200  {object}  handlers.WebhookResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed payload"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhooks/momo/disbursement [post]
func (h *Handlers) DisbursementWebhook(c *gin.Context) {
	h.webhook(c, "payout", h.tracker.HandleDisbursementCallback)
}

func (h *Handlers) webhook(c *gin.Context, record string, handle callbackFunc) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidWebhook, "invalid webhook payload: malformed JSON")
		return
	}
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)
	req.Status = strings.TrimSpace(req.Status)
	if req.ReferenceID == "" || req.Status == "" {
		fail(c, http.StatusBadRequest, ErrCodeInvalidWebhook, "invalid webhook payload: missing referenceId or status")
		return
	}

	l := middleware.LoggerFrom(c)
	l.Info().
		Str("record", record).
		Str("reference_id", req.ReferenceID).
		Str("status", req.Status).
		Msg("webhook received")

	out, err := handle(c.Request.Context(), services.Callback{
		ReferenceID:            req.ReferenceID,
		Status:                 req.Status,
		FinancialTransactionID: req.FinancialTransactionID,
		Reason:                 reasonText(req.Reason),
	})
	if err != nil {
		failService(c, err)
		return
	}

	msg := "Webhook processed successfully"
	if !out.Matched {
		msg = "Webhook received but " + record + " not found"
	}
	ok(c, http.StatusOK, WebhookResponse{Success: true, Message: msg})
}

// reasonText flattens the optional reason to a string: JSON strings are
// unquoted, anything else is kept as compact JSON.
func reasonText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
