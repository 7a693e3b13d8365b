package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/anvay/backend-dinetab/internal/billing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	// Upstream order service.
	UpstreamProvider string // "http" or "mock"
	UpstreamBaseURL  string
	UpstreamTimeout  time.Duration

	// Cache and session lifetimes.
	CatalogCacheTTL time.Duration
	SessionTTL      time.Duration

	// Adaptive polling cadence and lifetime ceiling.
	PollPendingInterval   time.Duration
	PollConfirmedInterval time.Duration
	PollActiveInterval    time.Duration
	PollCeiling           time.Duration

	// PriceTolerance is the reconciliation tolerance in minor currency units.
	PriceTolerance billing.Money
	CurrencyCode   string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		UpstreamProvider: strings.ToLower(valueOrDefault(k.String("UPSTREAM_PROVIDER"), "http")),
		UpstreamBaseURL:  strings.TrimSpace(k.String("UPSTREAM_BASE_URL")),
		UpstreamTimeout:  parseDuration(k.String("UPSTREAM_TIMEOUT"), "10s"),

		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		SessionTTL:      parseDuration(k.String("SESSION_TTL"), "24h"),

		PollPendingInterval:   parseDuration(k.String("POLL_PENDING_INTERVAL"), "15s"),
		PollConfirmedInterval: parseDuration(k.String("POLL_CONFIRMED_INTERVAL"), "10s"),
		PollActiveInterval:    parseDuration(k.String("POLL_ACTIVE_INTERVAL"), "5s"),
		PollCeiling:           parseDuration(k.String("POLL_CEILING"), "2h"),

		PriceTolerance: parseMoney(k.String("PRICE_TOLERANCE"), 1),
		CurrencyCode:   valueOrDefault(k.String("CURRENCY_CODE"), "INR"),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.UpstreamProvider {
	case "mock":
	case "http":
		if cfg.UpstreamBaseURL == "" {
			return nil, errors.New("UPSTREAM_BASE_URL is required unless UPSTREAM_PROVIDER=mock")
		}
	default:
		return nil, fmt.Errorf("unsupported UPSTREAM_PROVIDER: %s", cfg.UpstreamProvider)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseMoney(value string, fallback billing.Money) billing.Money {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
