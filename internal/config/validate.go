package config

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

func (c Config) validate() []error {
	var errs []error
	add := func(cond bool, msg string) {
		if cond {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		add(true, "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	add(c.Port == "", "PORT must not be empty")
	add(c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0,
		"server timeouts must be positive durations")
	add(c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0")
	add(c.MaxBodyBytes <= 0, "MAX_BODY_BYTES must be > 0")
	add(c.RateRPS < 0, "RATE_RPS must be >= 0")
	add(c.RateBurst < 1, "RATE_BURST must be >= 1")
	add(c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0")
	add(c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	add(c.Auth.Required && c.Auth.JWTSecret == "", "JWT_SECRET must be set when AUTH_REQUIRED=true")
	add(c.Auth.TokenTTL <= 0, "JWT_EXPIRES_IN must be a positive duration")
	// A donation or payout request may wait on a token exchange and then
	// on the initiation call, each bounded by MOMO_TIMEOUT.
	add(c.WriteTimeout > 0 && c.MoMo.Timeout > 0 && c.WriteTimeout <= 2*c.MoMo.Timeout,
		"WRITE_TIMEOUT must exceed twice MOMO_TIMEOUT")

	errs = append(errs, c.DB.validate()...)
	errs = append(errs, c.MoMo.validate()...)
	return errs
}

func (d DBConfig) validate() []error {
	switch d.Driver {
	case "sqlite":
		if d.Path == "" {
			return []error{errors.New("DB_PATH must not be empty")}
		}
	case "postgres":
		if d.URL == "" {
			return []error{errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")}
		}
	default:
		return []error{errors.New("DB_DRIVER must be one of: sqlite, postgres")}
	}
	return nil
}

func (m MoMoConfig) validate() []error {
	var errs []error
	if !isHTTPURL(m.BaseURL) {
		errs = append(errs, errors.New("MOMO_BASE_URL must be an http(s) URL"))
	}
	if m.TargetEnvironment == "" {
		errs = append(errs, errors.New("MOMO_TARGET_ENVIRONMENT must not be empty"))
	}
	if m.Timeout <= 0 || m.Timeout > 2*time.Minute {
		errs = append(errs, errors.New("MOMO_TIMEOUT must be in (0, 2m]"))
	}
	for name, cb := range map[string]string{
		"MOMO_COLLECTION_CALLBACK_URL":   m.CollectionCallbackURL,
		"MOMO_DISBURSEMENT_CALLBACK_URL": m.DisbursementCallbackURL,
	} {
		if cb != "" && !isHTTPURL(cb) {
			errs = append(errs, errors.New(name+" must be an http(s) URL"))
		}
	}
	return errs
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Scheme, "http") || strings.EqualFold(u.Scheme, "https")
}
