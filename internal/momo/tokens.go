// Package momo is the client side of the MTN MoMo Open API: OAuth token
// management per product facet, RequestToPay (collection), Transfer
// (disbursement), status queries, and normalization of the gateway's
// heterogeneous error bodies.
//
// A Client is an explicit value built from config.MoMoConfig; nothing in
// this package is process-global except its Prometheus collectors.
package momo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Facet is a MoMo product. Each facet has its own subscription key,
// token endpoint and cached token.
type Facet string

const (
	Collection   Facet = "collection"
	Disbursement Facet = "disbursement"
)

// refreshMargin is how long before expiry a cached token stops being used.
const refreshMargin = 5 * time.Minute

// ErrAuthentication is wrapped by every token exchange failure.
var ErrAuthentication = errors.New("momo: authentication failed")

type cachedToken struct {
	value  string
	expiry time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenManager exchanges API-user credentials for bearer tokens and caches
// one token per facet. It is safe for concurrent use; concurrent misses on
// the same facet share a single exchange.
type TokenManager struct {
	baseURL   string
	apiUserID string
	apiKey    string
	keys      map[Facet]string
	http      *http.Client
	now       func() time.Time

	mu    sync.Mutex
	cells map[Facet]cachedToken
	group singleflight.Group
}

// NewTokenManager builds a manager for the given credentials. keys maps
// each facet to its Ocp-Apim-Subscription-Key.
func NewTokenManager(baseURL, apiUserID, apiKey string, keys map[Facet]string, httpClient *http.Client) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &TokenManager{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiUserID: apiUserID,
		apiKey:    apiKey,
		keys:      keys,
		http:      httpClient,
		now:       time.Now,
		cells:     make(map[Facet]cachedToken, 2),
	}
}

// Token returns a bearer token for facet, reusing the cached one while
// now < expiry - 5m and exchanging credentials otherwise.
func (m *TokenManager) Token(ctx context.Context, facet Facet) (string, error) {
	if tok, ok := m.cached(facet); ok {
		return tok, nil
	}

	// The exchange is shared by every waiter, so it must not die with the
	// caller that happened to start it. The http client timeout bounds it.
	shared := context.WithoutCancel(ctx)
	ch := m.group.DoChan(string(facet), func() (any, error) {
		// Another caller may have refreshed while we waited.
		if tok, ok := m.cached(facet); ok {
			return tok, nil
		}
		return m.exchange(shared, facet)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s: %w", ErrAuthentication, facet, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

// Invalidate drops the cached token for facet so the next call exchanges
// credentials again. Used when the gateway rejects a token early.
func (m *TokenManager) Invalidate(facet Facet) {
	m.mu.Lock()
	delete(m.cells, facet)
	m.mu.Unlock()
}

func (m *TokenManager) cached(facet Facet) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[facet]
	if !ok || c.value == "" {
		return "", false
	}
	if !m.now().Before(c.expiry.Add(-refreshMargin)) {
		return "", false
	}
	return c.value, true
}

func (m *TokenManager) exchange(ctx context.Context, facet Facet) (tok string, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		tokenRefreshes.WithLabelValues(string(facet), outcome).Inc()
	}()

	url := fmt.Sprintf("%s/%s/token/", m.baseURL, facet)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrAuthentication, facet, err)
	}
	req.SetBasicAuth(m.apiUserID, m.apiKey)
	req.Header.Set(headerSubscriptionKey, m.keys[facet])

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrAuthentication, facet, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %s: read body: %v", ErrAuthentication, facet, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s: status %d: %s", ErrAuthentication, facet, resp.StatusCode, ExtractError(body, nil))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: %s: malformed token response: %v", ErrAuthentication, facet, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: %s: empty access_token", ErrAuthentication, facet)
	}

	m.mu.Lock()
	m.cells[facet] = cachedToken{
		value:  tr.AccessToken,
		expiry: m.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	m.mu.Unlock()
	return tr.AccessToken, nil
}
