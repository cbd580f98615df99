// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database, the mobile-money gateway, rate
// limiting, and observability.
package config

import (
	"errors"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-donations-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the database.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite)
	URL    string // DATABASE_URL (postgres)
}

// DSN returns the connection string for the configured driver.
func (d DBConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

// MoMoConfig holds the gateway credentials and endpoints. Each facet
// (collection, disbursement) has its own subscription key and callback.
type MoMoConfig struct {
	BaseURL                     string        // MOMO_BASE_URL
	CollectionSubscriptionKey   string        // MOMO_COLLECTION_SUBSCRIPTION_KEY
	DisbursementSubscriptionKey string        // MOMO_DISBURSEMENT_SUBSCRIPTION_KEY
	APIUserID                   string        // MOMO_API_USER_ID
	APIKey                      string        // MOMO_API_KEY
	TargetEnvironment           string        // MOMO_TARGET_ENVIRONMENT (sandbox|mtncameroon|...)
	CollectionCallbackURL       string        // MOMO_COLLECTION_CALLBACK_URL, optional
	DisbursementCallbackURL     string        // MOMO_DISBURSEMENT_CALLBACK_URL, optional
	Timeout                     time.Duration // MOMO_TIMEOUT
}

// AuthConfig controls bearer-token identity on mutating endpoints and the
// accounts that issue those tokens.
type AuthConfig struct {
	JWTSecret string        // JWT_SECRET (HS256)
	Issuer    string        // JWT_ISSUER, optional
	Required  bool          // AUTH_REQUIRED
	TokenTTL  time.Duration // JWT_EXPIRES_IN, accepts "7d"
}

// Config holds all configuration values for the application.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	// Storage
	DB DBConfig

	// Gateway
	MoMo MoMoConfig

	// Auth
	Auth AuthConfig

	// Request limits
	MaxBodyBytes int64 // request body cap for JSON endpoints

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from the process environment. Unset variables
// take their defaults; set but malformed values are errors, reported
// together with any validation failures.
func Load() (Config, error) {
	return load(osEnv{})
}

func load(src lookuper) (Config, error) {
	e := &env{src: src}

	sharedKey := e.str("MOMO_SUBSCRIPTION_KEY", "")
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           e.lower("GIN_MODE", "release"),

		LogLevel:       e.lower("LOG_LEVEL", "info"),
		LogPretty:      e.bool("LOG_PRETTY", false),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: e.lower("DB_DRIVER", "sqlite"),
			Path:   e.str("DB_PATH", "app.db"),
			URL:    e.str("DATABASE_URL", ""),
		},

		MoMo: MoMoConfig{
			BaseURL:                     trimSlash(e.str("MOMO_BASE_URL", "https://sandbox.momodeveloper.mtn.com")),
			CollectionSubscriptionKey:   e.str("MOMO_COLLECTION_SUBSCRIPTION_KEY", sharedKey),
			DisbursementSubscriptionKey: e.str("MOMO_DISBURSEMENT_SUBSCRIPTION_KEY", sharedKey),
			APIUserID:                   e.str("MOMO_API_USER_ID", ""),
			APIKey:                      e.str("MOMO_API_KEY", ""),
			TargetEnvironment:           e.str("MOMO_TARGET_ENVIRONMENT", "sandbox"),
			CollectionCallbackURL:       e.str("MOMO_COLLECTION_CALLBACK_URL", ""),
			DisbursementCallbackURL:     e.str("MOMO_DISBURSEMENT_CALLBACK_URL", ""),
			Timeout:                     e.dur("MOMO_TIMEOUT", 20*time.Second),
		},

		Auth: AuthConfig{
			JWTSecret: e.str("JWT_SECRET", ""),
			Issuer:    e.str("JWT_ISSUER", ""),
			Required:  e.bool("AUTH_REQUIRED", false),
			TokenTTL:  e.dur("JWT_EXPIRES_IN", 7*24*time.Hour),
		},

		MaxBodyBytes: int64(e.int("MAX_BODY_BYTES", 64<<10)),

		RateRPS:   e.float("RATE_RPS", 5.0),
		RateBurst: e.int("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "go-donations-backend"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return cfg, err
	}
	return cfg, nil
}
