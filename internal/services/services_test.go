package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/momo"
	"github.com/tbourn/go-donations-backend/internal/repo"
)

// ----- Helpers -----

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustCause(t *testing.T, db *gorm.DB, currency string) *domain.Cause {
	t.Helper()
	c, err := repo.CreateCause(context.Background(), db, repo.NewCause{
		Name:       "Clean water",
		OwnerPhone: "237670000000",
		Currency:   currency,
	})
	if err != nil {
		t.Fatalf("create cause: %v", err)
	}
	return c
}

// settledDonation stores a donation and moves it to status.
func settledDonation(t *testing.T, db *gorm.DB, causeID, amount string, status domain.Status) *domain.Donation {
	t.Helper()
	ctx := context.Background()
	d, err := repo.CreateDonation(ctx, db, repo.NewDonation{
		CauseID: causeID, DonorPhone: "237699000001", Amount: dec(amount), Currency: "XAF",
	})
	if err != nil {
		t.Fatalf("create donation: %v", err)
	}
	if status != domain.StatusPending {
		if _, err := repo.TransitionDonation(ctx, db, d.ID, status, ""); err != nil {
			t.Fatalf("transition donation: %v", err)
		}
	}
	return d
}

func settledPayout(t *testing.T, db *gorm.DB, causeID, amount string, status domain.Status) *domain.Payout {
	t.Helper()
	ctx := context.Background()
	p, err := repo.CreatePayout(ctx, db, causeID, dec(amount), "XAF")
	if err != nil {
		t.Fatalf("create payout: %v", err)
	}
	if status != domain.StatusPending {
		if _, err := repo.TransitionPayout(ctx, db, p.ID, status, ""); err != nil {
			t.Fatalf("transition payout: %v", err)
		}
	}
	return p
}

func countPayouts(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.Payout{}).Count(&n).Error; err != nil {
		t.Fatalf("count payouts: %v", err)
	}
	return n
}

// ----- Fake gateway -----

type fakeGateway struct {
	mu sync.Mutex

	initResult   momo.InitResult
	statusResult momo.StatusResult

	collections   []momo.CollectionRequest
	disbursements []momo.DisbursementRequest
	queries       []string
	nextRef       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{initResult: momo.InitResult{Success: true}}
}

func (g *fakeGateway) ref() string {
	g.nextRef++
	return "ref-" + string(rune('a'+g.nextRef-1))
}

func (g *fakeGateway) InitiateCollection(_ context.Context, r momo.CollectionRequest) momo.InitResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.collections = append(g.collections, r)
	res := g.initResult
	if res.Success {
		res.ReferenceID = g.ref()
	}
	return res
}

func (g *fakeGateway) InitiateDisbursement(_ context.Context, r momo.DisbursementRequest) momo.InitResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disbursements = append(g.disbursements, r)
	res := g.initResult
	if res.Success {
		res.ReferenceID = g.ref()
	}
	return res
}

func (g *fakeGateway) QueryCollectionStatus(_ context.Context, ref string) momo.StatusResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, ref)
	return g.statusResult
}

func (g *fakeGateway) QueryDisbursementStatus(_ context.Context, ref string) momo.StatusResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, ref)
	return g.statusResult
}

func (g *fakeGateway) queryCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queries)
}
