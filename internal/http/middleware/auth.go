// Package middleware – bearer-token identity
//
// Auth validates "Authorization: Bearer <JWT>" tokens signed with HS256 and
// stores the subject under UserIDKey. Read-only requests may always be
// anonymous; when Required is set, mutating requests (POST, PUT, PATCH,
// DELETE) without a token are refused. A token that is present but invalid
// is always refused.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthOptions configures Auth.
type AuthOptions struct {
	Secret   string
	Issuer   string // checked when non-empty
	Required bool
}

// Claims is the accepted token payload. UserID wins over Subject when both
// are set.
type Claims struct {
	UserID string `json:"uid,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var (
	errNoToken      = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// Auth returns the identity middleware.
func Auth(opts AuthOptions) gin.HandlerFunc {
	secret := []byte(opts.Secret)
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)

	return func(c *gin.Context) {
		sub, err := subject(c.GetHeader("Authorization"), secret, parser)
		switch {
		case errors.Is(err, errNoToken):
			if opts.Required && !isSafeMethod(c.Request.Method) {
				unauthorized(c, "authentication required")
				return
			}
			c.Next()
			return
		case err != nil || len(secret) == 0:
			unauthorized(c, "invalid token")
			return
		}

		c.Set(UserIDKey, sub)
		l := LoggerFrom(c).With().Str("user_id", sub).Logger()
		attachLogger(c, &l)
		c.Next()
	}
}

// RequireUser refuses requests that Auth did not identify, whatever the
// method. Mount it after Auth.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserIDFrom(c) == "" {
			unauthorized(c, "authentication required")
			return
		}
		c.Next()
	}
}

// subject parses the Authorization header value and returns the token's
// user id.
func subject(header string, secret []byte, parser *jwt.Parser) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errNoToken
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", errInvalidToken
	}
	raw := strings.TrimSpace(header[len(prefix):])

	claims := &Claims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}); err != nil {
		return "", errInvalidToken
	}
	sub := claims.UserID
	if sub == "" {
		sub = claims.Subject
	}
	if sub == "" {
		return "", errInvalidToken
	}
	return sub, nil
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       "unauthorized",
		"message":    msg,
	})
}
