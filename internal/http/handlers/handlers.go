// Package handlers exposes the REST endpoints of the donations API.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services, and translate results into HTTP responses. They
// depend on the service contracts below rather than on concrete types.
package handlers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/repo"
	"github.com/tbourn/go-donations-backend/internal/services"
	"github.com/tbourn/go-donations-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

//
// Service contracts (context-aware)
//

// CauseService manages causes.
type CauseService interface {
	Create(ctx context.Context, in services.CauseInput) (*domain.Cause, error)
	Get(ctx context.Context, id string) (*domain.Cause, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Cause, int64, error)
	Update(ctx context.Context, id string, u services.CauseUpdate) (*domain.Cause, error)
	Delete(ctx context.Context, id string) error
}

// DonationService creates and reads donations.
type DonationService interface {
	Create(ctx context.Context, req services.DonationRequest) (*services.DonationResult, error)
	Get(ctx context.Context, id string) (*domain.Donation, error)
	ListByCause(ctx context.Context, causeID string) ([]domain.Donation, error)
	ListByDonor(ctx context.Context, phone string) ([]domain.Donation, error)
}

// PayoutService creates and reads payouts.
type PayoutService interface {
	Create(ctx context.Context, req services.PayoutRequest) (*services.PayoutResult, error)
	Get(ctx context.Context, id string) (*domain.Payout, error)
	ListByCause(ctx context.Context, causeID string) ([]domain.Payout, error)
	Summary(ctx context.Context, causeID string) (services.Summary, error)
}

// BalanceService validates payout amounts.
type BalanceService interface {
	ValidatePayout(ctx context.Context, causeID string, amount decimal.Decimal) (services.BalanceCheck, error)
}

// Tracker reconciles statuses through webhooks and polls.
type Tracker interface {
	HandleCollectionCallback(ctx context.Context, cb services.Callback) (services.WebhookOutcome, error)
	HandleDisbursementCallback(ctx context.Context, cb services.Callback) (services.WebhookOutcome, error)
	SyncDonation(ctx context.Context, id string) (*domain.Donation, error)
	SyncPayout(ctx context.Context, id string) (*domain.Payout, error)
}

// AccountService registers and authenticates users.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.Session, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
}

// Optional list fingerprints for conditional GETs.
type (
	causeFingerprinter interface {
		Fingerprint(ctx context.Context) (repo.Fingerprint, error)
	}
	donationFingerprinter interface {
		CauseFingerprint(ctx context.Context, causeID string) (repo.Fingerprint, error)
	}
)

//
// Handler wiring
//

// Handlers groups the HTTP endpoints.
type Handlers struct {
	causes    CauseService
	donations DonationService
	payouts   PayoutService
	balance   BalanceService
	tracker   Tracker
	accounts  AccountService
}

// New constructs a Handlers instance bound to the given services.
func New(causes CauseService, donations DonationService, payouts PayoutService, balance BalanceService, tracker Tracker) *Handlers {
	return &Handlers{
		causes:    causes,
		donations: donations,
		payouts:   payouts,
		balance:   balance,
		tracker:   tracker,
	}
}

// WithAccounts enables the /auth endpoints.
func (h *Handlers) WithAccounts(a AccountService) *Handlers {
	h.accounts = a
	return h
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses page and page_size and bounds them to sane values.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"), utils.PageBounds{DefaultSize: 20, MaxSize: 100})
}

// notModified sets the ETag header and answers 304 when the client
// already holds that version.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
