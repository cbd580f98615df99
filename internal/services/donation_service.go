// Package services – DonationService
//
// A donation is persisted as pending before the gateway is contacted, so a
// crash or timeout mid-request never loses the record. The gateway reference
// id is stored only when RequestToPay is accepted; from then on the
// lifecycle tracker owns the record's status.
package services

import (
	"context"
	"errors"
	"strings"

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

// DonationRequest carries the donor-supplied fields of a donation.
type DonationRequest struct {
	CauseID      string
	DonorPhone   string
	Amount       decimal.Decimal
	Currency     string
	PayerMessage string
}

// DonationResult reports the stored donation and whether the gateway
// accepted the collection request.
type DonationResult struct {
	Donation         *domain.Donation `json:"donation"`
	PaymentInitiated bool             `json:"paymentInitiated"`
	PaymentError     string           `json:"error,omitempty"`
}

// DonationService creates and reads donations.
type DonationService struct {
	DB      *gorm.DB
	Gateway Gateway
}

// NewDonationService constructs a DonationService.
func NewDonationService(db *gorm.DB, gw Gateway) *DonationService {
	return &DonationService{DB: db, Gateway: gw}
}

// Create validates the request, stores a pending donation and asks the
// gateway to collect it. A gateway refusal is reported in the result; only
// validation and persistence failures are returned as errors.
func (s *DonationService) Create(ctx context.Context, req DonationRequest) (*DonationResult, error) {
	ctx, span := otel.Tracer("services/DonationService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("cause.id", req.CauseID),
			attribute.String("amount", req.Amount.String()),
		),
	)
	defer span.End()

	if !domain.ValidAmount(req.Amount) {
		return nil, ErrInvalidAmount
	}
	phone := domain.NormalizePhone(req.DonorPhone)
	if !domain.ValidPhone(phone) {
		return nil, ErrInvalidPhone
	}

	var msg *string
	if m := strings.TrimSpace(req.PayerMessage); m != "" {
		msg = &m
	}

	// The cause row stays locked until the donation is stored, so a
	// concurrent CauseService.Delete either sees the donation or wins first.
	var d *domain.Donation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cause, err := repo.LockCause(ctx, tx, req.CauseID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCauseNotFound
		}
		if err != nil {
			return err
		}
		cur, err := resolveCurrency(req.Currency, cause)
		if err != nil {
			return err
		}
		d, err = repo.CreateDonation(ctx, tx, repo.NewDonation{
			CauseID:      cause.ID,
			DonorPhone:   phone,
			Amount:       req.Amount,
			Currency:     cur,
			PayerMessage: msg,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	res := s.Gateway.InitiateCollection(ctx, momo.CollectionRequest{
		Amount:       d.Amount,
		Currency:     d.Currency,
		ExternalID:   d.ExternalID,
		PayerPhone:   d.DonorPhone,
		PayerMessage: strings.TrimSpace(req.PayerMessage),
	})
	if !res.Success {
		log.Ctx(ctx).Warn().
			Str("donation_id", d.ID).
			Str("error", res.Error).
			Msg("collection not initiated")
		return &DonationResult{Donation: d, PaymentInitiated: false, PaymentError: res.Error}, nil
	}

	if err := repo.SetDonationRef(ctx, s.DB, d.ID, res.ReferenceID); err != nil {
		return nil, err
	}
	ref := res.ReferenceID
	d.MomoRefID = &ref

	log.Ctx(ctx).Info().
		Str("donation_id", d.ID).
		Str("reference_id", ref).
		Msg("collection initiated")
	return &DonationResult{Donation: d, PaymentInitiated: true}, nil
}

// Get returns a donation by ID.
func (s *DonationService) Get(ctx context.Context, id string) (*domain.Donation, error) {
	d, err := repo.GetDonation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDonationNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListByCause returns a cause's donations, newest first, with donor phone
// numbers masked.
func (s *DonationService) ListByCause(ctx context.Context, causeID string) ([]domain.Donation, error) {
	if _, err := repo.GetCause(ctx, s.DB, causeID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCauseNotFound
		}
		return nil, err
	}
	items, err := repo.ListDonationsByCause(ctx, s.DB, causeID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].DonorPhone = domain.MaskPhone(items[i].DonorPhone)
	}
	return items, nil
}

// CauseFingerprint reports the change marker of a cause's donation list.
func (s *DonationService) CauseFingerprint(ctx context.Context, causeID string) (repo.Fingerprint, error) {
	return repo.DonationFingerprint(ctx, s.DB, causeID)
}

// ListByDonor returns every donation made from phone.
func (s *DonationService) ListByDonor(ctx context.Context, phone string) ([]domain.Donation, error) {
	phone = domain.NormalizePhone(phone)
	if !domain.ValidPhone(phone) {
		return nil, ErrInvalidPhone
	}
	return repo.ListDonationsByDonor(ctx, s.DB, phone)
}

// resolveCurrency defaults a blank currency to the cause's and rejects any
// other currency.
func resolveCurrency(requested string, cause *domain.Cause) (string, error) {
	cur := domain.NormalizeCurrency(requested)
	if cur == "" {
		if cause.Currency == "" {
			return "", ErrInvalidCurrency
		}
		return cause.Currency, nil
	}
	if !domain.SupportedCurrency(cur) {
		return "", ErrInvalidCurrency
	}
	if cause.Currency != "" && cur != cause.Currency {
		return "", ErrCurrencyMismatch
	}
	return cur, nil
}
