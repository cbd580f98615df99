// Package httpapi wires the Gin engine to the payment services: global
// middleware, operational endpoints, the MoMo webhook group and the
// authenticated, rate-limited resource routes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-donations-backend/internal/config"
	"github.com/tbourn/go-donations-backend/internal/domain"
	"github.com/tbourn/go-donations-backend/internal/http/handlers"
	"github.com/tbourn/go-donations-backend/internal/http/middleware"
	"github.com/tbourn/go-donations-backend/internal/repo"
	"github.com/tbourn/go-donations-backend/internal/services"
)

// causeRepoShim adapts the repository free functions to the
// services.CauseRepo interface expected by the CauseService.
type causeRepoShim struct{}

// CreateCause proxies repo.CreateCause.
func (causeRepoShim) CreateCause(ctx context.Context, db *gorm.DB, in repo.NewCause) (*domain.Cause, error) {
	return repo.CreateCause(ctx, db, in)
}

// GetCause proxies repo.GetCause.
func (causeRepoShim) GetCause(ctx context.Context, db *gorm.DB, id string) (*domain.Cause, error) {
	return repo.GetCause(ctx, db, id)
}

// LockCause proxies repo.LockCause.
func (causeRepoShim) LockCause(ctx context.Context, tx *gorm.DB, id string) (*domain.Cause, error) {
	return repo.LockCause(ctx, tx, id)
}

// CountCauses proxies repo.CountCauses (pagination support).
func (causeRepoShim) CountCauses(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountCauses(ctx, db)
}

// ListCausesPage proxies repo.ListCausesPage (pagination support).
func (causeRepoShim) ListCausesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Cause, error) {
	return repo.ListCausesPage(ctx, db, offset, limit)
}

// UpdateCause proxies repo.UpdateCause.
func (causeRepoShim) UpdateCause(ctx context.Context, db *gorm.DB, id string, p repo.CausePatch) error {
	return repo.UpdateCause(ctx, db, id, p)
}

// DeleteCause proxies repo.DeleteCause.
func (causeRepoShim) DeleteCause(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteCause(ctx, db, id)
}

// CountCauseTransactions proxies repo.CountCauseTransactions.
func (causeRepoShim) CountCauseTransactions(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	return repo.CountCauseTransactions(ctx, db, id)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. gw is the mobile-money gateway used by the donation, payout and
// status endpoints.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip
//  8. CORS and Security headers
//
// The resource routes additionally run Auth and then the per-user/IP rate
// limiter. Webhook routes run neither. The /auth account routes are
// mounted only when a JWT secret is configured.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, gw services.Gateway, cfg config.Config) error {
	if err := handlers.RegisterValidators(); err != nil {
		return err
	}
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Api-Key", "X-Callback-Url"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	r.Use(limitBody(maxBody))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics(prometheus.DefaultRegisterer))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Response compression (metrics already excluded by registration order)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (dev only)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Services
	payouts := services.NewPayoutService(db, gw)
	h := handlers.New(
		services.NewCauseService(db, causeRepoShim{}),
		services.NewDonationService(db, gw),
		payouts,
		payouts.Balance,
		services.NewTracker(db, gw),
	)

	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"

	// Gateway callbacks: no auth, no throttling
	hooks := api.Group("/webhooks/momo")
	{
		hooks.POST("/collection", h.CollectionWebhook)
		hooks.POST("/disbursement", h.DisbursementWebhook)
	}

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	authOpts := middleware.AuthOptions{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Required: cfg.Auth.Required,
	}

	// Accounts: only with a signing key. Register and login are open.
	if cfg.Auth.JWTSecret != "" {
		h.WithAccounts(services.NewAuthService(db, cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL))
		accountOpts := authOpts
		accountOpts.Required = false
		account := api.Group("/auth")
		account.Use(middleware.Auth(accountOpts), rl.Handler())
		{
			account.POST("/register", h.Register)
			account.POST("/login", h.Login)
			account.POST("/logout", middleware.RequireUser(), h.Logout)
			account.GET("/me", middleware.RequireUser(), h.Me)
		}
	}

	pub := api.Group("")
	pub.Use(middleware.Auth(authOpts), rl.Handler())
	{
		// Causes
		pub.POST("/causes", h.CreateCause)
		pub.GET("/causes", h.ListCauses)
		pub.GET("/causes/:id", h.GetCause)
		pub.PUT("/causes/:id", h.UpdateCause)
		pub.DELETE("/causes/:id", h.DeleteCause)
		pub.GET("/causes/:id/donations", h.ListCauseDonations)
		pub.GET("/causes/:id/payouts", h.ListCausePayouts)
		pub.GET("/causes/:id/balance", h.CauseBalance)

		// Donations
		pub.POST("/donations", h.CreateDonation)
		pub.GET("/donations/:id", h.GetDonation)
		pub.GET("/donations/:id/status", h.DonationStatus)
		pub.GET("/donors/:phone/donations", h.ListDonorDonations)

		// Payouts
		pub.POST("/payouts", h.CreatePayout)
		pub.GET("/payouts/:id", h.GetPayout)
		pub.GET("/payouts/:id/status", h.PayoutStatus)
	}
	return nil
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
