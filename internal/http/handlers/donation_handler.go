package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/services"
)

// CreateDonationRequest is the JSON payload for a donation. Currency may be
// omitted, in which case the cause currency applies.
type CreateDonationRequest struct {
	CauseID      string          `json:"causeId"      binding:"required,uuid"            example:"7b1c2a9e-4f7d-4a9b-9c1e-2f0a3b4c5d6e"`
	DonorPhone   string          `json:"donorPhone"   binding:"required,msisdn"          example:"237699000001"`
	Amount       decimal.Decimal `json:"amount"       swaggertype:"string"               example:"1500"`
	Currency     string          `json:"currency"     binding:"omitempty,momo_currency"  example:"XAF"`
	PayerMessage string          `json:"payerMessage" binding:"max=160"                  example:"Keep it up"`
}

// ListDonationsResponse wraps a list of donations.
type ListDonationsResponse struct {
	Donations []domain.Donation `json:"donations"`
}

func donationID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "donation id must be a UUID")
		return "", false
	}
	return id, true
}

// CreateDonation godoc
// @ID          createDonation
// @Summary     Donate to a cause
// @Description Records a pending donation and asks the gateway to collect it from the donor's wallet. A gateway refusal is reported with paymentInitiated=false and still returns 201.
// @Tags        Donations
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateDonationRequest  true  "Donation payload"
// @Success     201  {object}  services.DonationResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Cause not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /donations [post]
func (h *Handlers) CreateDonation(c *gin.Context) {
	var req CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}

	res, err := h.donations.Create(c.Request.Context(), services.DonationRequest{
		CauseID:      req.CauseID,
		DonorPhone:   req.DonorPhone,
		Amount:       req.Amount,
		Currency:     req.Currency,
		PayerMessage: req.PayerMessage,
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// GetDonation godoc
// @ID          getDonation
// @Summary     Get a donation
// @Tags        Donations
// @Produce     json
// @Param       id  path  string  true  "Donation ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.Donation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Donation not found"
// @Router      /donations/{id} [get]
func (h *Handlers) GetDonation(c *gin.Context) {
	id, valid := donationID(c)
	if !valid {
		return
	}
	d, err := h.donations.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// DonationStatus godoc
// @ID          donationStatus
// @Summary     Refresh a donation's status
// @Description Queries the gateway for a pending donation and persists a terminal result. Settled donations are returned as stored.
// @Tags        Donations
// @Produce     json
// @Param       id  path  string  true  "Donation ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.Donation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Donation not found"
// @Router      /donations/{id}/status [get]
func (h *Handlers) DonationStatus(c *gin.Context) {
	id, valid := donationID(c)
	if !valid {
		return
	}
	d, err := h.tracker.SyncDonation(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// ListCauseDonations godoc
// @ID          listCauseDonations
// @Summary     Donations of a cause
// @Description Newest first. Donor phone numbers are masked to their last four digits. Supports weak ETag via If-None-Match.
// @Tags        Donations
// @Produce     json
// @Param       id             path    string  true   "Cause ID (UUID)"  format(uuid)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListDonationsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /causes/{id}/donations [get]
func (h *Handlers) ListCauseDonations(c *gin.Context) {
	id, valid := causeID(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()
	if fp, ok := h.donations.(donationFingerprinter); ok {
		// An empty listing may mean an unknown cause, which must still 404.
		if f, err := fp.CauseFingerprint(ctx, id); err == nil && f.Count > 0 && notModified(c, f.ETag("donations:"+id)) {
			return
		}
	}
	items, err := h.donations.ListByCause(ctx, id)
	if err != nil {
		failService(c, err)
		return
	}
	if items == nil {
		items = []domain.Donation{}
	}
	ok(c, http.StatusOK, ListDonationsResponse{Donations: items})
}

// ListDonorDonations godoc
// @ID          listDonorDonations
// @Summary     Donations by a donor
// @Tags        Donations
// @Produce     json
// @Param       phone  path  string  true  "Donor MSISDN"  example(237699000001)
// @Success     200  {object}  handlers.ListDonationsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /donors/{phone}/donations [get]
func (h *Handlers) ListDonorDonations(c *gin.Context) {
	items, err := h.donations.ListByDonor(c.Request.Context(), c.Param("phone"))
	if err != nil {
		failService(c, err)
		return
	}
	if items == nil {
		items = []domain.Donation{}
	}
	ok(c, http.StatusOK, ListDonationsResponse{Donations: items})
}
