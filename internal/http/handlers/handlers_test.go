package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/momo"
	"github.com/tbourn/go-donations-backend/internal/repo"
	"github.com/tbourn/go-donations-backend/internal/services"
)

// ---------- test DB + repo shim ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "handlers.db"))
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
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Minimal shim implementing services.CauseRepo using the repo package (like router.go).
type testCauseRepo struct{}

func (testCauseRepo) CreateCause(ctx context.Context, db *gorm.DB, in repo.NewCause) (*domain.Cause, error) {
	return repo.CreateCause(ctx, db, in)
}

func (testCauseRepo) GetCause(ctx context.Context, db *gorm.DB, id string) (*domain.Cause, error) {
	return repo.GetCause(ctx, db, id)
}

func (testCauseRepo) LockCause(ctx context.Context, tx *gorm.DB, id string) (*domain.Cause, error) {
	return repo.LockCause(ctx, tx, id)
}

func (testCauseRepo) CountCauses(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountCauses(ctx, db)
}

func (testCauseRepo) ListCausesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Cause, error) {
	return repo.ListCausesPage(ctx, db, offset, limit)
}

func (testCauseRepo) UpdateCause(ctx context.Context, db *gorm.DB, id string, p repo.CausePatch) error {
	return repo.UpdateCause(ctx, db, id, p)
}

func (testCauseRepo) DeleteCause(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteCause(ctx, db, id)
}

func (testCauseRepo) CountCauseTransactions(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	return repo.CountCauseTransactions(ctx, db, id)
}

// ---------- fake gateway ----------

type fakeGateway struct {
	mu     sync.Mutex
	fail   string // when set, initiation fails with this message
	status momo.StatusResult
	n      int
}

func (g *fakeGateway) initiate() momo.InitResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != "" {
		return momo.InitResult{Error: g.fail}
	}
	g.n++
	return momo.InitResult{Success: true, ReferenceID: fmt.Sprintf("ref-%d", g.n)}
}

func (g *fakeGateway) InitiateCollection(context.Context, momo.CollectionRequest) momo.InitResult {
	return g.initiate()
}

func (g *fakeGateway) InitiateDisbursement(context.Context, momo.DisbursementRequest) momo.InitResult {
	return g.initiate()
}

func (g *fakeGateway) QueryCollectionStatus(context.Context, string) momo.StatusResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

func (g *fakeGateway) QueryDisbursementStatus(context.Context, string) momo.StatusResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// ---------- router harness ----------

type testAPI struct {
	db *gorm.DB
	gw *fakeGateway
	r  *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		t.Fatalf("validators: %v", err)
	}

	db := newHandlerDB(t)
	gw := &fakeGateway{status: momo.StatusResult{Status: domain.StatusPending}}

	payouts := services.NewPayoutService(db, gw)
	h := New(
		services.NewCauseService(db, testCauseRepo{}),
		services.NewDonationService(db, gw),
		payouts,
		payouts.Balance,
		services.NewTracker(db, gw),
	)

	r := gin.New()
	r.POST("/causes", h.CreateCause)
	r.GET("/causes", h.ListCauses)
	r.GET("/causes/:id", h.GetCause)
	r.PUT("/causes/:id", h.UpdateCause)
	r.DELETE("/causes/:id", h.DeleteCause)
	r.GET("/causes/:id/donations", h.ListCauseDonations)
	r.GET("/causes/:id/payouts", h.ListCausePayouts)
	r.GET("/causes/:id/balance", h.CauseBalance)
	r.POST("/donations", h.CreateDonation)
	r.GET("/donations/:id", h.GetDonation)
	r.GET("/donations/:id/status", h.DonationStatus)
	r.GET("/donors/:phone/donations", h.ListDonorDonations)
	r.POST("/payouts", h.CreatePayout)
	r.GET("/payouts/:id", h.GetPayout)
	r.GET("/payouts/:id/status", h.PayoutStatus)
	r.POST("/webhooks/momo/collection", h.CollectionWebhook)
	r.POST("/webhooks/momo/disbursement", h.DisbursementWebhook)

	return &testAPI{db: db, gw: gw, r: r}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v
}

func (a *testAPI) cause(t *testing.T) *domain.Cause {
	t.Helper()
	c, err := repo.CreateCause(context.Background(), a.db, repo.NewCause{
		Name: "Clean water", OwnerPhone: "237670000000", Currency: "XAF",
	})
	if err != nil {
		t.Fatalf("create cause: %v", err)
	}
	return c
}

// fund stores a successful donation of amount for causeID.
func (a *testAPI) fund(t *testing.T, causeID, amount string) *domain.Donation {
	t.Helper()
	ctx := context.Background()
	d, err := repo.CreateDonation(ctx, a.db, repo.NewDonation{
		CauseID: causeID, DonorPhone: "237699000001", Amount: mustDec(t, amount), Currency: "XAF",
	})
	if err != nil {
		t.Fatalf("create donation: %v", err)
	}
	if _, err := repo.TransitionDonation(ctx, a.db, d.ID, domain.StatusSuccess, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	return d
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}
