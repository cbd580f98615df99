package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/config"
	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/http/middleware"
	"github.com/tbourn/go-donations-backend/internal/momo"
	"github.com/tbourn/go-donations-backend/internal/repo"
)

// --- gateway stub: every call is accepted, statuses stay pending ---
type stubGateway struct{}

func (stubGateway) InitiateCollection(context.Context, momo.CollectionRequest) momo.InitResult {
	return momo.InitResult{Success: true, ReferenceID: "ref-collection"}
}

func (stubGateway) InitiateDisbursement(context.Context, momo.DisbursementRequest) momo.InitResult {
	return momo.InitResult{Success: true, ReferenceID: "ref-disbursement"}
}

func (stubGateway) QueryCollectionStatus(context.Context, string) momo.StatusResult {
	return momo.StatusResult{Status: domain.StatusPending}
}

func (stubGateway) QueryDisbursementStatus(context.Context, string) momo.StatusResult {
	return momo.StatusResult{Status: domain.StatusPending}
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "router.db"))
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

func baseConfig() config.Config {
	return config.Config{
		APIBasePath:  "/api/v1",
		RateRPS:      100,
		RateBurst:    10,
		MaxBodyBytes: 1 << 20,
		CORS:         config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:     config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:         config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	if err := RegisterRoutes(r, db, stubGateway{}, cfg); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	return r, db
}

func send(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestRouter(t, baseConfig())

	w := send(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	w = send(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w = send(r, http.MethodGet, "/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w = send(r, http.MethodPost, "/health", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	if w = send(r, http.MethodGet, "/swagger/index.html", ""); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := baseConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newTestRouter(t, cfg)

	w := send(r, http.MethodGet, "/health", "", "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	// Routes mount under the configured base path.
	if w = send(r, http.MethodGet, "/api/v2/causes", ""); w.Code != http.StatusOK {
		t.Fatalf("GET /api/v2/causes = %d", w.Code)
	}
}

func TestRegisterRoutes_DonationFlowEndToEnd(t *testing.T) {
	r, db := newTestRouter(t, baseConfig())

	w := send(r, http.MethodPost, "/api/v1/causes", `{"name":"Clean water","ownerPhone":"237670000000","currency":"XAF"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create cause = %d %s", w.Code, w.Body.String())
	}
	var causes []domain.Cause
	if err := db.Find(&causes).Error; err != nil || len(causes) != 1 {
		t.Fatalf("causes: %v %d", err, len(causes))
	}
	id := causes[0].ID

	w = send(r, http.MethodPost, "/api/v1/donations", `{"causeId":"`+id+`","donorPhone":"237699000001","amount":100}`)
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"paymentInitiated":true`) {
		t.Fatalf("donate = %d %s", w.Code, w.Body.String())
	}

	w = send(r, http.MethodPost, "/api/v1/webhooks/momo/collection", `{"referenceId":"ref-collection","status":"SUCCESSFUL"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook = %d %s", w.Code, w.Body.String())
	}

	w = send(r, http.MethodGet, "/api/v1/causes/"+id+"/balance?amount=100", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"valid":true`) {
		t.Fatalf("balance = %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_AuthRequiredSparesReadsAndWebhooks(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth = config.AuthConfig{JWTSecret: "s3cret", Required: true}
	r, _ := newTestRouter(t, cfg)

	body := `{"name":"Clean water","ownerPhone":"237670000000","currency":"XAF"}`
	if w := send(r, http.MethodPost, "/api/v1/causes", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous write = %d; want 401", w.Code)
	}
	if w := send(r, http.MethodGet, "/api/v1/causes", ""); w.Code != http.StatusOK {
		t.Fatalf("anonymous read = %d; want 200", w.Code)
	}
	if w := send(r, http.MethodPost, "/api/v1/webhooks/momo/disbursement", `{"referenceId":"x","status":"FAILED"}`); w.Code != http.StatusOK {
		t.Fatalf("webhook = %d; want 200", w.Code)
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		UserID: "admin-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if w := send(r, http.MethodPost, "/api/v1/causes", body, "Authorization", "Bearer "+tok); w.Code != http.StatusCreated {
		t.Fatalf("authenticated write = %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_AccountFlow(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth = config.AuthConfig{JWTSecret: "s3cret", Issuer: "donations", Required: true, TokenTTL: time.Hour}
	r, _ := newTestRouter(t, cfg)

	w := send(r, http.MethodPost, "/api/v1/auth/register", `{"email":"Ada@Example.com","password":"s3cret!","name":"Ada"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("register response leaks the password hash: %s", w.Body.String())
	}
	var reg struct {
		User  domain.User `json:"user"`
		Token string      `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &reg); err != nil || reg.Token == "" {
		t.Fatalf("register body: %v %s", err, w.Body.String())
	}

	if w = send(r, http.MethodPost, "/api/v1/auth/register", `{"email":"ada@example.com","password":"other1"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register = %d; want 400", w.Code)
	}
	if w = send(r, http.MethodPost, "/api/v1/auth/register", `{"email":"bob@example.com","password":"123"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("short password = %d; want 400", w.Code)
	}
	if w = send(r, http.MethodPost, "/api/v1/auth/login", `{"email":"ada@example.com","password":"nope!!"}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d; want 401", w.Code)
	}
	if w = send(r, http.MethodPost, "/api/v1/auth/login", `{"email":"ada@example.com","password":"s3cret!"}`); w.Code != http.StatusOK {
		t.Fatalf("login = %d %s", w.Code, w.Body.String())
	}

	if w = send(r, http.MethodGet, "/api/v1/auth/me", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous me = %d; want 401", w.Code)
	}
	bearer := "Bearer " + reg.Token
	w = send(r, http.MethodGet, "/api/v1/auth/me", "", "Authorization", bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("me = %d %s", w.Code, w.Body.String())
	}
	var me domain.User
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil || me.ID != reg.User.ID || me.Email != "ada@example.com" {
		t.Fatalf("me body: %v %+v", err, me)
	}
	if w = send(r, http.MethodPost, "/api/v1/auth/logout", "", "Authorization", bearer); w.Code != http.StatusOK {
		t.Fatalf("logout = %d", w.Code)
	}

	// The issued token opens the protected resource routes.
	body := `{"name":"Clean water","ownerPhone":"237670000000","currency":"XAF"}`
	if w = send(r, http.MethodPost, "/api/v1/causes", body, "Authorization", bearer); w.Code != http.StatusCreated {
		t.Fatalf("write with issued token = %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_AccountsNeedSigningKey(t *testing.T) {
	r, _ := newTestRouter(t, baseConfig())
	if w := send(r, http.MethodPost, "/api/v1/auth/register", `{"email":"ada@example.com","password":"s3cret!"}`); w.Code != http.StatusNotFound {
		t.Fatalf("register without JWT secret = %d; want 404", w.Code)
	}
}

func TestRegisterRoutes_RateLimitSparesWebhooks(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, _ := newTestRouter(t, cfg)

	if w := send(r, http.MethodGet, "/api/v1/causes", ""); w.Code != http.StatusOK {
		t.Fatalf("first = %d", w.Code)
	}
	w := send(r, http.MethodGet, "/api/v1/causes", "")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second = %d; want 429 with Retry-After", w.Code)
	}
	for i := 0; i < 3; i++ {
		w = send(r, http.MethodPost, "/api/v1/webhooks/momo/collection", `{"referenceId":"x","status":"SUCCESSFUL"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("webhook %d throttled: %d", i, w.Code)
		}
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := send(r, http.MethodGet, path, "")
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}

func Test_causeRepoShim_Proxies(t *testing.T) {
	db := newTestDB(t)
	shim := causeRepoShim{}
	ctx := context.Background()

	c1, err := shim.CreateCause(ctx, db, repo.NewCause{Name: "A", OwnerPhone: "237670000000", Currency: "XAF"})
	if err != nil || c1.ID == "" {
		t.Fatalf("CreateCause: %v %+v", err, c1)
	}
	if _, err := shim.CreateCause(ctx, db, repo.NewCause{Name: "B", OwnerPhone: "237670000000", Currency: "XAF"}); err != nil {
		t.Fatalf("CreateCause B: %v", err)
	}

	if got, err := shim.GetCause(ctx, db, c1.ID); err != nil || got.Name != "A" {
		t.Fatalf("GetCause: %v %+v", err, got)
	}
	if n, err := shim.CountCauses(ctx, db); err != nil || n != 2 {
		t.Fatalf("CountCauses: %v %d", err, n)
	}
	if page, err := shim.ListCausesPage(ctx, db, 0, 1); err != nil || len(page) != 1 {
		t.Fatalf("ListCausesPage: %v %d", err, len(page))
	}

	name := "A2"
	if err := shim.UpdateCause(ctx, db, c1.ID, repo.CausePatch{Name: &name}); err != nil {
		t.Fatalf("UpdateCause: %v", err)
	}
	if n, err := shim.CountCauseTransactions(ctx, db, c1.ID); err != nil || n != 0 {
		t.Fatalf("CountCauseTransactions: %v %d", err, n)
	}
	if err := shim.DeleteCause(ctx, db, c1.ID); err != nil {
		t.Fatalf("DeleteCause: %v", err)
	}
	if _, err := shim.GetCause(ctx, db, c1.ID); err == nil {
		t.Fatalf("deleted cause still visible")
	}
}
