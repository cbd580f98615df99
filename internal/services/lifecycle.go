// Package services – Tracker
//
// Tracker reconciles donation and payout status with the gateway over two
// channels: webhook callbacks pushed by MoMo, and status polls triggered by
// clients. Both end in the same conditional update, which only matches
// pending rows. Terminal states therefore never change, whichever channel
// reports first.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/momo"
	"github.com/tbourn/go-donations-backend/internal/repo"
)

// Callback is a gateway webhook notification.
type Callback struct {
	ReferenceID            string
	Status                 string
	FinancialTransactionID string
	Reason                 string
}

// WebhookOutcome reports what a callback did. Matched is false for unknown
// references; Applied is true only when a status change was persisted.
type WebhookOutcome struct {
	Matched bool
	Applied bool
	Status  domain.Status
}

// Tracker applies gateway status reports to stored records.
type Tracker struct {
	DB      *gorm.DB
	Gateway Gateway
}

// NewTracker constructs a Tracker.
func NewTracker(db *gorm.DB, gw Gateway) *Tracker {
	return &Tracker{DB: db, Gateway: gw}
}

// HandleCollectionCallback applies a collection webhook to the donation
// carrying its reference id.
func (t *Tracker) HandleCollectionCallback(ctx context.Context, cb Callback) (WebhookOutcome, error) {
	ctx, span := otel.Tracer("services/Tracker").Start(ctx, "HandleCollectionCallback",
		trace.WithAttributes(
			attribute.String("reference.id", cb.ReferenceID),
			attribute.String("gateway.status", cb.Status),
		),
	)
	defer span.End()

	d, err := repo.FindDonationByRef(ctx, t.DB, cb.ReferenceID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Ctx(ctx).Warn().Str("reference_id", cb.ReferenceID).Msg("collection callback for unknown reference")
		return WebhookOutcome{}, nil
	}
	if err != nil {
		return WebhookOutcome{}, err
	}

	to := momo.MapCollectionStatus(strings.ToUpper(cb.Status))
	applied, current, err := t.apply(ctx, domain.KindDonation, channelWebhook, d.ID, d.Status, to, cb.FinancialTransactionID)
	if err != nil {
		return WebhookOutcome{}, err
	}
	return WebhookOutcome{Matched: true, Applied: applied, Status: current}, nil
}

// HandleDisbursementCallback applies a disbursement webhook to the payout
// carrying its reference id.
func (t *Tracker) HandleDisbursementCallback(ctx context.Context, cb Callback) (WebhookOutcome, error) {
	ctx, span := otel.Tracer("services/Tracker").Start(ctx, "HandleDisbursementCallback",
		trace.WithAttributes(
			attribute.String("reference.id", cb.ReferenceID),
			attribute.String("gateway.status", cb.Status),
		),
	)
	defer span.End()

	p, err := repo.FindPayoutByRef(ctx, t.DB, cb.ReferenceID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Ctx(ctx).Warn().Str("reference_id", cb.ReferenceID).Msg("disbursement callback for unknown reference")
		return WebhookOutcome{}, nil
	}
	if err != nil {
		return WebhookOutcome{}, err
	}

	to := momo.MapDisbursementStatus(strings.ToUpper(cb.Status))
	applied, current, err := t.apply(ctx, domain.KindPayout, channelWebhook, p.ID, p.Status, to, cb.FinancialTransactionID)
	if err != nil {
		return WebhookOutcome{}, err
	}
	return WebhookOutcome{Matched: true, Applied: applied, Status: current}, nil
}

// SyncDonation polls the gateway for a pending donation and persists a
// changed status. Donations that are terminal or were never accepted by
// the gateway are returned as stored.
func (t *Tracker) SyncDonation(ctx context.Context, id string) (*domain.Donation, error) {
	ctx, span := otel.Tracer("services/Tracker").Start(ctx, "SyncDonation",
		trace.WithAttributes(attribute.String("donation.id", id)),
	)
	defer span.End()

	d, err := repo.GetDonation(ctx, t.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrDonationNotFound
		}
		return nil, err
	}
	if d.Status != domain.StatusPending || d.MomoRefID == nil {
		return d, nil
	}

	res := t.Gateway.QueryCollectionStatus(ctx, *d.MomoRefID)
	if res.Error != "" {
		log.Ctx(ctx).Warn().Str("donation_id", id).Str("error", res.Error).Msg("collection status query failed")
		return d, nil
	}
	applied, _, err := t.apply(ctx, domain.KindDonation, channelPoll, d.ID, d.Status, res.Status, res.FinancialTransactionID)
	if err != nil {
		return nil, err
	}
	if !applied && res.Status == domain.StatusPending {
		return d, nil
	}
	return repo.GetDonation(ctx, t.DB, id)
}

// SyncPayout polls the gateway for a pending payout and persists a changed
// status.
func (t *Tracker) SyncPayout(ctx context.Context, id string) (*domain.Payout, error) {
	ctx, span := otel.Tracer("services/Tracker").Start(ctx, "SyncPayout",
		trace.WithAttributes(attribute.String("payout.id", id)),
	)
	defer span.End()

	p, err := repo.GetPayout(ctx, t.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	if p.Status != domain.StatusPending || p.MomoRefID == nil {
		return p, nil
	}

	res := t.Gateway.QueryDisbursementStatus(ctx, *p.MomoRefID)
	if res.Error != "" {
		log.Ctx(ctx).Warn().Str("payout_id", id).Str("error", res.Error).Msg("disbursement status query failed")
		return p, nil
	}
	applied, _, err := t.apply(ctx, domain.KindPayout, channelPoll, p.ID, p.Status, res.Status, res.FinancialTransactionID)
	if err != nil {
		return nil, err
	}
	if !applied && res.Status == domain.StatusPending {
		return p, nil
	}
	return repo.GetPayout(ctx, t.DB, id)
}

// apply persists from -> to when the state machine allows it. It returns
// whether a row changed and the status the record holds afterwards.
func (t *Tracker) apply(ctx context.Context, kind domain.Kind, channel, id string, from, to domain.Status, financialTxID string) (bool, domain.Status, error) {
	l := log.Ctx(ctx).With().
		Str("kind", string(kind)).
		Str("id", id).
		Str("channel", channel).
		Logger()

	if from.IsTerminal() {
		l.Info().Str("status", string(from)).Str("reported", string(to)).Msg("status report for terminal record ignored")
		return false, from, nil
	}
	if !domain.CanTransition(kind, from, to) {
		return false, from, nil
	}

	var (
		ok  bool
		err error
	)
	switch kind {
	case domain.KindDonation:
		ok, err = repo.TransitionDonation(ctx, t.DB, id, to, financialTxID)
	default:
		ok, err = repo.TransitionPayout(ctx, t.DB, id, to, financialTxID)
	}
	if err != nil {
		return false, from, err
	}
	if !ok {
		// Lost the race to the other channel; report what it stored.
		current, err := t.currentStatus(ctx, kind, id)
		if err != nil {
			return false, from, err
		}
		l.Info().Str("status", string(current)).Msg("status already updated")
		return false, current, nil
	}

	lifecycleTransitions.WithLabelValues(string(kind), channel, string(to)).Inc()
	l.Info().Str("from", string(from)).Str("to", string(to)).Msg("status updated")
	return true, to, nil
}

func (t *Tracker) currentStatus(ctx context.Context, kind domain.Kind, id string) (domain.Status, error) {
	if kind == domain.KindDonation {
		d, err := repo.GetDonation(ctx, t.DB, id)
		if err != nil {
			return "", err
		}
		return d.Status, nil
	}
	p, err := repo.GetPayout(ctx, t.DB, id)
	if err != nil {
		return "", err
	}
	return p.Status, nil
}
