package momo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-donations-backend/internal/config"
	"github.com/tbourn/go-donations-backend/internal/domain"
)

// fakeGateway is a minimal MoMo sandbox: token endpoints plus a per-path
// handler for API calls.
type fakeGateway struct {
	*httptest.Server
	apiCalls int32
	handlers map[string]http.HandlerFunc
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{handlers: map[string]http.HandlerFunc{}}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/token/") {
			facet := strings.Split(strings.Trim(r.URL.Path, "/"), "/")[0]
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"` + facet + `-token","token_type":"access_token","expires_in":3600}`))
			return
		}
		atomic.AddInt32(&g.apiCalls, 1)
		for prefix, h := range g.handlers {
			if strings.HasPrefix(r.URL.Path, prefix) {
				h(w, r)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(g.Close)
	return g
}

func newTestClient(g *fakeGateway, mutate func(*config.MoMoConfig)) *Client {
	cfg := config.MoMoConfig{
		BaseURL:                     g.URL,
		CollectionSubscriptionKey:   "col-key",
		DisbursementSubscriptionKey: "dis-key",
		APIUserID:                   "user",
		APIKey:                      "key",
		TargetEnvironment:           "sandbox",
		Timeout:                     2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg, WithReferenceIDs(func() string { return "ref-123" }))
}

func TestInitiateCollection_Success_HeadersAndBody(t *testing.T) {
	g := newFakeGateway(t)
	g.handlers["/collection/v1_0/requesttopay"] = func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		checks := map[string]string{
			"Authorization":        "Bearer collection-token",
			"X-Reference-Id":       "ref-123",
			"X-Target-Environment": "sandbox",
			headerSubscriptionKey:  "col-key",
			"Content-Type":         "application/json",
		}
		for h, want := range checks {
			if got := r.Header.Get(h); got != want {
				t.Errorf("%s = %q; want %q", h, got, want)
			}
		}
		if _, present := r.Header[http.CanonicalHeaderKey(headerCallbackURL)]; present {
			t.Errorf("X-Callback-Url must be omitted when no callback is configured")
		}

		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if body["amount"] != "100.5" || body["currency"] != "XAF" || body["externalId"] != "ext-1" {
			t.Errorf("unexpected body: %s", raw)
		}
		payer, _ := body["payer"].(map[string]any)
		if payer["partyIdType"] != "MSISDN" || payer["partyId"] != "237670000001" {
			t.Errorf("unexpected payer: %v", body["payer"])
		}
		if _, ok := body["payee"]; ok {
			t.Errorf("collection body must not carry a payee")
		}
		w.WriteHeader(http.StatusAccepted)
	}
	c := newTestClient(g, nil)

	res := c.InitiateCollection(context.Background(), CollectionRequest{
		Amount:       decimal.RequireFromString("100.50"),
		Currency:     "xaf",
		ExternalID:   "ext-1",
		PayerPhone:   "237670000001",
		PayerMessage: "Donation",
	})
	if !res.Success || res.ReferenceID != "ref-123" || res.Error != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestInitiate_CallbackHeaderWhenConfigured(t *testing.T) {
	g := newFakeGateway(t)
	var got string
	g.handlers["/disbursement/v1_0/transfer"] = func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(headerCallbackURL)
		if r.Header.Get(headerSubscriptionKey) != "dis-key" {
			t.Errorf("disbursement must use its own subscription key")
		}
		raw, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(raw), `"payee":{"partyIdType":"MSISDN","partyId":"237670000009"}`) {
			t.Errorf("unexpected transfer body: %s", raw)
		}
		w.WriteHeader(http.StatusAccepted)
	}
	c := newTestClient(g, func(cfg *config.MoMoConfig) {
		cfg.DisbursementCallbackURL = "https://api.example.com/webhooks/momo/disbursement"
	})

	res := c.InitiateDisbursement(context.Background(), DisbursementRequest{
		Amount: decimal.NewFromInt(60), Currency: "XAF", ExternalID: "ext-p", PayeePhone: "237670000009",
		PayerMessage: "Payout for cause: Clinic", PayeeNote: "Funds disbursement from donations",
	})
	if !res.Success {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if got != "https://api.example.com/webhooks/momo/disbursement" {
		t.Fatalf("callback header = %q", got)
	}
}

func TestInitiate_RejectedNormalizesError(t *testing.T) {
	g := newFakeGateway(t)
	g.handlers["/collection/v1_0/requesttopay"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"RESOURCE_ALREADY_EXIST"}`))
	}
	c := newTestClient(g, nil)

	res := c.InitiateCollection(context.Background(), CollectionRequest{Amount: decimal.NewFromInt(1), Currency: "XAF", ExternalID: "e", PayerPhone: "237670000001"})
	if res.Success || res.ReferenceID != "" || res.Error != "MoMo API Error: RESOURCE_ALREADY_EXIST" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestInitiate_Unauthorized_InvalidatesToken(t *testing.T) {
	g := newFakeGateway(t)
	g.handlers["/collection/v1_0/requesttopay"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Access denied due to invalid subscription key."}`))
	}
	c := newTestClient(g, nil)

	res := c.InitiateCollection(context.Background(), CollectionRequest{Amount: decimal.NewFromInt(1), Currency: "XAF", ExternalID: "e", PayerPhone: "1"})
	if res.Success || !strings.Contains(res.Error, "invalid subscription key") {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, ok := c.Tokens().cached(Collection); ok {
		t.Fatalf("401 should drop the cached token")
	}
}

func TestInitiate_NetworkFailure_NoPanicNoRetry(t *testing.T) {
	g := newFakeGateway(t)
	block := make(chan struct{})
	g.handlers["/collection/v1_0/requesttopay"] = func(w http.ResponseWriter, r *http.Request) {
		<-block
	}
	t.Cleanup(func() { close(block) })

	c := newTestClient(g, nil)
	c.http.Timeout = 100 * time.Millisecond

	res := c.InitiateCollection(context.Background(), CollectionRequest{Amount: decimal.NewFromInt(1), Currency: "XAF", ExternalID: "e", PayerPhone: "1"})
	if res.Success || res.Error == "" {
		t.Fatalf("expected a failure with message, got %+v", res)
	}
	if n := atomic.LoadInt32(&g.apiCalls); n != 1 {
		t.Fatalf("api calls = %d; want exactly 1 (no retries)", n)
	}
}

func TestInitiate_AuthFailureSurfacesAsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	c := NewClient(config.MoMoConfig{BaseURL: srv.URL, TargetEnvironment: "sandbox", Timeout: time.Second})
	res := c.InitiateDisbursement(context.Background(), DisbursementRequest{Amount: decimal.NewFromInt(1), Currency: "XAF", ExternalID: "e", PayeePhone: "1"})
	if res.Success || !strings.Contains(res.Error, "authentication failed") || !strings.Contains(res.Error, "invalid_client") {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestQueryStatus_Mapping(t *testing.T) {
	tests := []struct {
		gateway    string
		collection domain.Status
		payout     domain.Status
	}{
		{"SUCCESSFUL", domain.StatusSuccess, domain.StatusCompleted},
		{"FAILED", domain.StatusFailed, domain.StatusFailed},
		{"PENDING", domain.StatusPending, domain.StatusPending},
		{"ONGOING", domain.StatusPending, domain.StatusPending},
		{"", domain.StatusPending, domain.StatusPending},
	}
	for _, tt := range tests {
		if got := MapCollectionStatus(tt.gateway); got != tt.collection {
			t.Fatalf("MapCollectionStatus(%q) = %q; want %q", tt.gateway, got, tt.collection)
		}
		if got := MapDisbursementStatus(tt.gateway); got != tt.payout {
			t.Fatalf("MapDisbursementStatus(%q) = %q; want %q", tt.gateway, got, tt.payout)
		}
	}
}

func TestQueryCollectionStatus_Success(t *testing.T) {
	g := newFakeGateway(t)
	g.handlers["/collection/v1_0/requesttopay/ref-9"] = func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.Header.Get("Authorization") != "Bearer collection-token" {
			t.Errorf("unexpected request: %s %v", r.Method, r.Header)
		}
		_, _ = w.Write([]byte(`{"referenceId":"ref-9","status":"SUCCESSFUL","financialTransactionId":"fin-77"}`))
	}
	c := newTestClient(g, nil)

	res := c.QueryCollectionStatus(context.Background(), "ref-9")
	if res.Status != domain.StatusSuccess || res.GatewayStatus != "SUCCESSFUL" || res.FinancialTransactionID != "fin-77" || res.Error != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestQueryDisbursementStatus_FailedWithReason(t *testing.T) {
	g := newFakeGateway(t)
	g.handlers["/disbursement/v1_0/transfer/ref-1"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"FAILED","reason":{"code":"PAYEE_NOT_FOUND","message":"Payee does not exist"}}`))
	}
	c := newTestClient(g, nil)

	res := c.QueryDisbursementStatus(context.Background(), "ref-1")
	if res.Status != domain.StatusFailed || res.Reason != "Payee does not exist" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestQueryStatus_FailureIsPendingWithError(t *testing.T) {
	g := newFakeGateway(t)
	g.handlers["/collection/v1_0/requesttopay/"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"RESOURCE_NOT_FOUND","message":"Requested resource was not found."}`))
	}
	g.handlers["/disbursement/v1_0/transfer/"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}
	c := newTestClient(g, nil)

	res := c.QueryCollectionStatus(context.Background(), "missing")
	if res.Status != domain.StatusPending || res.Error != "Requested resource was not found." {
		t.Fatalf("unexpected collection result: %+v", res)
	}
	res = c.QueryDisbursementStatus(context.Background(), "garbled")
	if res.Status != domain.StatusPending || !strings.Contains(res.Error, "malformed status response") {
		t.Fatalf("unexpected disbursement result: %+v", res)
	}
}
