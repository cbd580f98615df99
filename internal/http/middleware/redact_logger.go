// Package middleware – RedactingLogger
//
// RedactingLogger is the access logger of the API. Request and response
// bodies are never logged. Mobile numbers are masked to their last four
// digits wherever they appear in the path or query (donor lookups carry the
// MSISDN in the URL), and credential headers are blanked, including the
// gateway's Ocp-Apim-Subscription-Key.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures extra scrubbing for RedactingLogger.
type RedactOptions struct {
	// MaskHeaders lists additional header names (case-insensitive) whose
	// values are replaced by "[REDACTED]".
	MaskHeaders []string
	// LogHeaders includes the scrubbed request headers in each entry.
	LogHeaders bool
}

var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Runs of 8 to 15 digits, with an optional plain or percent-encoded
	// plus sign. Over-matching (e.g. digit-only UUID groups) is acceptable.
	msisdnRE = regexp.MustCompile(`(?:\+|%2[bB])?\d{8,15}`)
)

// redactPII masks MSISDNs to their last four digits and drops e-mails.
func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return msisdnRE.ReplaceAllStringFunc(s, func(m string) string {
		digits := strings.TrimPrefix(m, "+")
		if len(digits) > 3 && strings.EqualFold(digits[:3], "%2b") {
			digits = digits[3:]
		}
		return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
	})
}

// RedactingLogger returns the access-log middleware. It also builds the
// request-scoped logger (request id, method, route) used by handlers and
// services for the rest of the request.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization":             {},
		"cookie":                    {},
		"set-cookie":                {},
		"ocp-apim-subscription-key": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = redactPII(c.Request.URL.Path)
		}

		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("route", route).
			Logger()
		attachLogger(c, &l)

		c.Next()

		status := c.Writer.Status()
		level := zerolog.InfoLevel
		switch {
		case len(c.Errors) > 0 || status >= 500:
			level = zerolog.ErrorLevel
		case status >= 400:
			level = zerolog.WarnLevel
		}
		ev := l.WithLevel(level)
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}

		ev = ev.
			Str("path", redactPII(c.Request.URL.Path)).
			Str("query", truncate(redactPII(c.Request.URL.RawQuery), maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start))
		if uid := UserIDFrom(c); uid != "" {
			ev = ev.Str("user_id", uid)
		}
		if opts.LogHeaders {
			safe := make(map[string]string, len(c.Request.Header))
			for k, vv := range c.Request.Header {
				if _, ok := maskHeaders[strings.ToLower(k)]; ok {
					safe[k] = "[REDACTED]"
					continue
				}
				safe[k] = redactPII(strings.Join(vv, ", "))
			}
			ev = ev.Interface("headers", safe)
		}
		ev.Msg("http_request")
	}
}
