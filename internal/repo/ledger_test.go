package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustDonation(t *testing.T, db *gorm.DB, causeID, phone, amount string) *domain.Donation {
	t.Helper()
	d, err := CreateDonation(context.Background(), db, NewDonation{
		CauseID: causeID, DonorPhone: phone, Amount: dec(amount), Currency: "xaf",
	})
	if err != nil {
		t.Fatalf("CreateDonation: %v", err)
	}
	return d
}

func mustPayout(t *testing.T, db *gorm.DB, causeID, amount string) *domain.Payout {
	t.Helper()
	p, err := CreatePayout(context.Background(), db, causeID, dec(amount), "XAF")
	if err != nil {
		t.Fatalf("CreatePayout: %v", err)
	}
	return p
}

func TestCreateDonation_DefaultsPendingWithoutRef(t *testing.T) {
	db := newTestDB(t, allModels...)
	seedCause(t, db, "c1", time.Now().UTC())

	d := mustDonation(t, db, "c1", "237670000001", "100")
	if d.Status != domain.StatusPending || d.MomoRefID != nil {
		t.Fatalf("unexpected initial state: %+v", d)
	}
	if d.ExternalID == "" || d.ExternalID == d.ID {
		t.Fatalf("external id should be generated and distinct from id: %+v", d)
	}
	if d.Currency != "XAF" {
		t.Fatalf("currency = %q; want XAF", d.Currency)
	}
}

func TestSetDonationRef_WriteOnce(t *testing.T) {
	db := newTestDB(t, allModels...)
	ctx := context.Background()
	seedCause(t, db, "c1", time.Now().UTC())
	d := mustDonation(t, db, "c1", "237670000001", "10")

	if err := SetDonationRef(ctx, db, d.ID, "ref-1"); err != nil {
		t.Fatalf("SetDonationRef: %v", err)
	}
	if err := SetDonationRef(ctx, db, d.ID, "ref-2"); !errors.Is(err, ErrRefAlreadySet) {
		t.Fatalf("expected ErrRefAlreadySet, got %v", err)
	}
	if err := SetDonationRef(ctx, db, "missing", "ref-3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := FindDonationByRef(ctx, db, "ref-1")
	if err != nil || got.ID != d.ID {
		t.Fatalf("FindDonationByRef: got=%v err=%v", got, err)
	}
	if _, err := FindDonationByRef(ctx, db, "ref-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second ref must not have been stored, got %v", err)
	}
}

func TestTransitionDonation_OnlyFromPending(t *testing.T) {
	db := newTestDB(t, allModels...)
	ctx := context.Background()
	seedCause(t, db, "c1", time.Now().UTC())
	d := mustDonation(t, db, "c1", "237670000001", "10")

	ok, err := TransitionDonation(ctx, db, d.ID, domain.StatusSuccess, "fin-1")
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	ok, err = TransitionDonation(ctx, db, d.ID, domain.StatusFailed, "")
	if err != nil || ok {
		t.Fatalf("terminal record must not move: ok=%v err=%v", ok, err)
	}

	got, _ := GetDonation(ctx, db, d.ID)
	if got.Status != domain.StatusSuccess {
		t.Fatalf("status = %q; want success", got.Status)
	}
	if got.FinancialTransactionID == nil || *got.FinancialTransactionID != "fin-1" {
		t.Fatalf("financial transaction id not stored: %+v", got.FinancialTransactionID)
	}
}

func TestListDonations_ByCauseAndDonor(t *testing.T) {
	db := newTestDB(t, allModels...)
	ctx := context.Background()
	seedCause(t, db, "c1", time.Now().UTC())
	seedCause(t, db, "c2", time.Now().UTC())

	mustDonation(t, db, "c1", "237670000001", "1")
	mustDonation(t, db, "c1", "237670000002", "2")
	mustDonation(t, db, "c2", "237670000001", "3")

	byCause, err := ListDonationsByCause(ctx, db, "c1")
	if err != nil || len(byCause) != 2 {
		t.Fatalf("ListDonationsByCause: n=%d err=%v", len(byCause), err)
	}
	byDonor, err := ListDonationsByDonor(ctx, db, "237670000001")
	if err != nil || len(byDonor) != 2 {
		t.Fatalf("ListDonationsByDonor: n=%d err=%v", len(byDonor), err)
	}
	for _, d := range byDonor {
		if d.DonorPhone != "237670000001" {
			t.Fatalf("foreign donor leaked: %+v", d)
		}
	}
}

func TestLatestDonationCurrency(t *testing.T) {
	db := newTestDB(t, allModels...)
	ctx := context.Background()
	seedCause(t, db, "c1", time.Now().UTC())

	cur, err := LatestDonationCurrency(ctx, db, "c1")
	if err != nil || cur != "" {
		t.Fatalf("empty cause: cur=%q err=%v", cur, err)
	}
	mustDonation(t, db, "c1", "237670000001", "1")
	cur, err = LatestDonationCurrency(ctx, db, "c1")
	if err != nil || cur != "XAF" {
		t.Fatalf("cur=%q err=%v; want XAF", cur, err)
	}
}

func TestPayoutRefAndTransition(t *testing.T) {
	db := newTestDB(t, allModels...)
	ctx := context.Background()
	seedCause(t, db, "c1", time.Now().UTC())
	p := mustPayout(t, db, "c1", "40")

	if err := SetPayoutRef(ctx, db, p.ID, "pref"); err != nil {
		t.Fatalf("SetPayoutRef: %v", err)
	}
	got, err := FindPayoutByRef(ctx, db, "pref")
	if err != nil || got.ID != p.ID {
		t.Fatalf("FindPayoutByRef: %v %v", got, err)
	}
	if ok, err := TransitionPayout(ctx, db, p.ID, domain.StatusCompleted, ""); err != nil || !ok {
		t.Fatalf("TransitionPayout: ok=%v err=%v", ok, err)
	}
	if ok, _ := TransitionPayout(ctx, db, p.ID, domain.StatusFailed, ""); ok {
		t.Fatalf("completed payout must not fail afterwards")
	}
	list, err := ListPayoutsByCause(ctx, db, "c1")
	if err != nil || len(list) != 1 || list[0].Status != domain.StatusCompleted {
		t.Fatalf("ListPayoutsByCause: %+v err=%v", list, err)
	}
	if _, err := GetPayout(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSums_ByStatusAndInFlight(t *testing.T) {
	db := newTestDB(t, allModels...)
	ctx := context.Background()
	seedCause(t, db, "c1", time.Now().UTC())

	d1 := mustDonation(t, db, "c1", "237670000001", "100.25")
	d2 := mustDonation(t, db, "c1", "237670000002", "0.10")
	d3 := mustDonation(t, db, "c1", "237670000003", "999")
	mustDonation(t, db, "c1", "237670000004", "50") // stays pending
	for _, id := range []string{d1.ID, d2.ID} {
		if _, err := TransitionDonation(ctx, db, id, domain.StatusSuccess, ""); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	if _, err := TransitionDonation(ctx, db, d3.ID, domain.StatusFailed, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	got, err := SumDonations(ctx, db, "c1", domain.StatusSuccess)
	if err != nil || !got.Equal(dec("100.35")) {
		t.Fatalf("SumDonations = %s, %v; want 100.35", got, err)
	}

	done := mustPayout(t, db, "c1", "40")
	inFlight := mustPayout(t, db, "c1", "20")
	mustPayout(t, db, "c1", "7") // never reached the gateway
	if _, err := TransitionPayout(ctx, db, done.ID, domain.StatusCompleted, ""); err != nil {
		t.Fatalf("transition payout: %v", err)
	}
	if err := SetPayoutRef(ctx, db, inFlight.ID, "r-in-flight"); err != nil {
		t.Fatalf("SetPayoutRef: %v", err)
	}

	completed, err := SumPayouts(ctx, db, "c1", domain.StatusCompleted)
	if err != nil || !completed.Equal(dec("40")) {
		t.Fatalf("SumPayouts = %s, %v; want 40", completed, err)
	}
	reserved, err := SumInFlightPayouts(ctx, db, "c1")
	if err != nil || !reserved.Equal(dec("20")) {
		t.Fatalf("SumInFlightPayouts = %s, %v; want 20", reserved, err)
	}

	empty, err := SumDonations(ctx, db, "other", domain.StatusSuccess)
	if err != nil || !empty.IsZero() {
		t.Fatalf("unknown cause sum = %s, %v; want 0", empty, err)
	}
}
