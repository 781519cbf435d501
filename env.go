package alphastream

import (
	"os"
	"strconv"
	"time"
)

// EnvOr reads key from the environment, returning fallback if it is unset
// or empty. Mirrors the teacher's cmd/prism/main.go envOr convention,
// exposed here for callers embedding AlphaStream without a cmd/ of their
// own, who still want to seed Builder/Config values from the environment.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvOrInt is EnvOr for integer-valued options (worker counts, pool
// sizes, buffer lengths). An unparsable value falls back the same as an
// unset one.
func EnvOrInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// EnvOrDuration is EnvOr for duration-valued options (timeouts), parsed
// with time.ParseDuration ("10s", "500ms").
func EnvOrDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
