package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-donations-backend/internal/config"
	"github.com/tbourn/go-donations-backend/internal/domain"
)

const (
	headerSubscriptionKey = "Ocp-Apim-Subscription-Key"
	headerReferenceID     = "X-Reference-Id"
	headerTargetEnv       = "X-Target-Environment"
	headerCallbackURL     = "X-Callback-Url"

	// maxBodyBytes caps how much of a gateway response is read.
	maxBodyBytes = 1 << 20

	defaultTimeout = 20 * time.Second
)

// Gateway status strings.
const (
	gatewaySuccessful = "SUCCESSFUL"
	gatewayFailed     = "FAILED"
)

// Party identifies a wallet. MoMo only accepts MSISDN parties here.
type Party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

func msisdn(phone string) *Party { return &Party{PartyIDType: "MSISDN", PartyID: phone} }

type transferBody struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        *Party `json:"payer,omitempty"`
	Payee        *Party `json:"payee,omitempty"`
	PayerMessage string `json:"payerMessage,omitempty"`
	PayeeNote    string `json:"payeeNote,omitempty"`
}

type statusResponse struct {
	Status                 string          `json:"status"`
	FinancialTransactionID string          `json:"financialTransactionId"`
	Reason                 json.RawMessage `json:"reason"`
}

// CollectionRequest asks a donor's wallet to pay.
type CollectionRequest struct {
	Amount       decimal.Decimal
	Currency     string
	ExternalID   string
	PayerPhone   string
	PayerMessage string
	PayeeNote    string
}

// DisbursementRequest sends funds to a wallet.
type DisbursementRequest struct {
	Amount       decimal.Decimal
	Currency     string
	ExternalID   string
	PayeePhone   string
	PayerMessage string
	PayeeNote    string
}

// InitResult is the outcome of RequestToPay/Transfer. Failures are values,
// not errors: Success is false and Error carries the normalized message.
type InitResult struct {
	Success     bool
	ReferenceID string
	Error       string
}

// StatusResult is the outcome of a status query. When the query itself
// fails, Status is pending and Error is set.
type StatusResult struct {
	Status                 domain.Status
	GatewayStatus          string
	FinancialTransactionID string
	Reason                 string
	Error                  string
}

// Client talks to one MoMo deployment. It is safe for concurrent use.
type Client struct {
	baseURL   string
	targetEnv string
	keys      map[Facet]string
	callbacks map[Facet]string
	http      *http.Client
	tokens    *TokenManager
	newRefID  func() string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client (and therefore the timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithReferenceIDs replaces the X-Reference-Id generator.
func WithReferenceIDs(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newRefID = fn
		}
	}
}

// NewClient builds a gateway client from configuration. Every call is
// bounded by cfg.Timeout and is attempted once.
func NewClient(cfg config.MoMoConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		targetEnv: cfg.TargetEnvironment,
		keys: map[Facet]string{
			Collection:   cfg.CollectionSubscriptionKey,
			Disbursement: cfg.DisbursementSubscriptionKey,
		},
		callbacks: map[Facet]string{
			Collection:   strings.TrimSpace(cfg.CollectionCallbackURL),
			Disbursement: strings.TrimSpace(cfg.DisbursementCallbackURL),
		},
		http:     &http.Client{Timeout: timeout},
		newRefID: uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	c.tokens = NewTokenManager(c.baseURL, cfg.APIUserID, cfg.APIKey, c.keys, c.http)
	return c
}

// Tokens exposes the client's token manager.
func (c *Client) Tokens() *TokenManager { return c.tokens }

// InitiateCollection issues a RequestToPay against the donor's wallet.
func (c *Client) InitiateCollection(ctx context.Context, r CollectionRequest) InitResult {
	body := transferBody{
		Amount:       r.Amount.String(),
		Currency:     strings.ToUpper(r.Currency),
		ExternalID:   r.ExternalID,
		Payer:        msisdn(r.PayerPhone),
		PayerMessage: r.PayerMessage,
		PayeeNote:    r.PayeeNote,
	}
	return c.initiate(ctx, Collection, "requesttopay", "/collection/v1_0/requesttopay", body, r.PayerPhone)
}

// InitiateDisbursement issues a Transfer to the payee's wallet.
func (c *Client) InitiateDisbursement(ctx context.Context, r DisbursementRequest) InitResult {
	body := transferBody{
		Amount:       r.Amount.String(),
		Currency:     strings.ToUpper(r.Currency),
		ExternalID:   r.ExternalID,
		Payee:        msisdn(r.PayeePhone),
		PayerMessage: r.PayerMessage,
		PayeeNote:    r.PayeeNote,
	}
	return c.initiate(ctx, Disbursement, "transfer", "/disbursement/v1_0/transfer", body, r.PayeePhone)
}

// QueryCollectionStatus fetches the current state of a RequestToPay.
func (c *Client) QueryCollectionStatus(ctx context.Context, referenceID string) StatusResult {
	return c.query(ctx, Collection, "requesttopay_status", "/collection/v1_0/requesttopay/"+referenceID, MapCollectionStatus)
}

// QueryDisbursementStatus fetches the current state of a Transfer.
func (c *Client) QueryDisbursementStatus(ctx context.Context, referenceID string) StatusResult {
	return c.query(ctx, Disbursement, "transfer_status", "/disbursement/v1_0/transfer/"+referenceID, MapDisbursementStatus)
}

// MapCollectionStatus translates a gateway status into the donation vocabulary.
func MapCollectionStatus(s string) domain.Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case gatewaySuccessful:
		return domain.StatusSuccess
	case gatewayFailed:
		return domain.StatusFailed
	default:
		return domain.StatusPending
	}
}

// MapDisbursementStatus translates a gateway status into the payout vocabulary.
func MapDisbursementStatus(s string) domain.Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case gatewaySuccessful:
		return domain.StatusCompleted
	case gatewayFailed:
		return domain.StatusFailed
	default:
		return domain.StatusPending
	}
}

func (c *Client) initiate(ctx context.Context, facet Facet, op, path string, body transferBody, phone string) InitResult {
	refID := c.newRefID()
	ctx, span := otel.Tracer("momo").Start(ctx, "momo."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("momo.facet", string(facet)),
			attribute.String("momo.reference_id", refID),
			attribute.String("momo.external_id", body.ExternalID),
		),
	)
	defer span.End()

	lg := log.Ctx(ctx).With().
		Str("facet", string(facet)).
		Str("operation", op).
		Str("reference_id", refID).
		Str("external_id", body.ExternalID).
		Str("msisdn", domain.MaskPhone(phone)).
		Logger()

	fail := func(outcome, msg string) InitResult {
		span.SetStatus(codes.Error, msg)
		gatewayRequests.WithLabelValues(string(facet), op, outcome).Inc()
		lg.Warn().Str("outcome", outcome).Str("error", msg).Msg("momo initiation failed")
		return InitResult{Success: false, Error: msg}
	}

	token, err := c.tokens.Token(ctx, facet)
	if err != nil {
		return fail("auth_error", err.Error())
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fail("encode_error", err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fail("request_error", err.Error())
	}
	c.setHeaders(req, facet, token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerReferenceID, refID)
	if cb := c.callbacks[facet]; cb != "" {
		req.Header.Set(headerCallbackURL, cb)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	gatewayDuration.WithLabelValues(string(facet), op).Observe(time.Since(start).Seconds())
	if err != nil {
		return fail("transport_error", ExtractError(nil, err))
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate(facet)
		}
		return fail("rejected", ExtractError(raw, fmt.Errorf("gateway returned status %d", resp.StatusCode)))
	}

	gatewayRequests.WithLabelValues(string(facet), op, "ok").Inc()
	lg.Info().Int("status", resp.StatusCode).Msg("momo initiation accepted")
	return InitResult{Success: true, ReferenceID: refID}
}

func (c *Client) query(ctx context.Context, facet Facet, op, path string, mapStatus func(string) domain.Status) StatusResult {
	ctx, span := otel.Tracer("momo").Start(ctx, "momo."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("momo.facet", string(facet))),
	)
	defer span.End()

	fail := func(outcome, msg string) StatusResult {
		span.SetStatus(codes.Error, msg)
		gatewayRequests.WithLabelValues(string(facet), op, outcome).Inc()
		log.Ctx(ctx).Warn().
			Str("facet", string(facet)).
			Str("operation", op).
			Str("outcome", outcome).
			Str("error", msg).
			Msg("momo status query failed")
		return StatusResult{Status: domain.StatusPending, Error: msg}
	}

	token, err := c.tokens.Token(ctx, facet)
	if err != nil {
		return fail("auth_error", err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fail("request_error", err.Error())
	}
	c.setHeaders(req, facet, token)

	start := time.Now()
	resp, err := c.http.Do(req)
	gatewayDuration.WithLabelValues(string(facet), op).Observe(time.Since(start).Seconds())
	if err != nil {
		return fail("transport_error", ExtractError(nil, err))
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate(facet)
		}
		return fail("rejected", ExtractError(raw, fmt.Errorf("gateway returned status %d", resp.StatusCode)))
	}

	var sr statusResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return fail("decode_error", "malformed status response: "+err.Error())
	}

	out := StatusResult{
		Status:                 mapStatus(sr.Status),
		GatewayStatus:          sr.Status,
		FinancialTransactionID: sr.FinancialTransactionID,
	}
	if len(sr.Reason) > 0 && string(sr.Reason) != "null" {
		out.Reason = ExtractError(sr.Reason, nil)
	}
	span.SetAttributes(attribute.String("momo.status", sr.Status))
	gatewayRequests.WithLabelValues(string(facet), op, "ok").Inc()
	return out
}

func (c *Client) setHeaders(req *http.Request, facet Facet, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(headerTargetEnv, c.targetEnv)
	req.Header.Set(headerSubscriptionKey, c.keys[facet])
}
