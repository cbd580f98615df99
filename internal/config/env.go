package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type lookuper interface {
	Lookup(key string) (string, bool)
}

type osEnv struct{}

func (osEnv) Lookup(key string) (string, bool) { return os.LookupEnv(key) }

// mapEnv is a fixed environment, used by tests.
type mapEnv map[string]string

func (m mapEnv) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// env reads typed values and records every malformed one.
type env struct {
	src  lookuper
	errs []error
}

// raw returns the trimmed value of key; blank counts as unset.
func (e *env) raw(key string) (string, bool) {
	v, ok := e.src.Lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) bad(key, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", key, v, want))
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) lower(key, def string) string {
	return strings.ToLower(e.str(key, def))
}

func (e *env) int(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.bad(key, v, "integer")
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.bad(key, v, "number")
		return def
	}
	return f
}

func (e *env) bool(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.bad(key, v, "boolean")
	return def
}

func (e *env) dur(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := parseDuration(v)
	if err != nil {
		e.bad(key, v, "duration")
		return def
	}
	return d
}

// parseDuration is time.ParseDuration plus a whole-day form such as "7d".
func parseDuration(v string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid day count %q", v)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(v)
}

// list splits a comma-separated value, dropping blanks.
func (e *env) list(key string) []string {
	v, ok := e.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones
// (except for the root).
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}

func trimSlash(u string) string { return strings.TrimRight(u, "/") }
