// Package middleware – security headers
//
// SecurityHeaders applies a fixed header baseline to every response of the
// JSON API. Financial records are marked no-store when NoStore is set, and
// Strict-Transport-Security is only sent on HTTPS requests.
package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration // zero means 180 days
	NoStore      bool
	EnablePolicy bool // Permissions-Policy and X-Permitted-Cross-Domain-Policies
}

type headerPair struct{ key, value string }

func (o SecurityOptions) static() []headerPair {
	hs := []headerPair{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if o.EnablePolicy {
		hs = append(hs,
			headerPair{"Permissions-Policy", "camera=(), geolocation=(), microphone=(), payment=()"},
			headerPair{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}
	if o.NoStore {
		hs = append(hs, headerPair{"Cache-Control", "no-store"}, headerPair{"Pragma", "no-cache"})
	}
	return hs
}

func (o SecurityOptions) hsts() string {
	age := o.HSTSMaxAge
	if age <= 0 {
		age = defaultHSTSMaxAge
	}
	return fmt.Sprintf("max-age=%d; includeSubDomains", int64(age/time.Second))
}

// SecurityHeaders returns the header-hardening middleware. Run it after
// RequestID so the correlation header can be exposed to browsers.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := opt.static()
	hsts := opt.hsts()

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, p := range static {
			h.Set(p.key, p.value)
		}
		if opt.EnableHSTS && overTLS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers once.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	for _, v := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(v), name) {
			return
		}
	}
	if cur == "" {
		h.Set(key, name)
		return
	}
	h.Set(key, cur+", "+name)
}

// overTLS also trusts X-Forwarded-Proto from the fronting proxy.
func overTLS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
