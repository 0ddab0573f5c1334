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
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	AutoMigrate bool

	PromoCacheTTL    time.Duration
	PromoSharedCache bool
	CouponRateLimit  string
	IdempotencyTTL   time.Duration

	JWTSecret         string
	JWTIssuer         string
	JWTAudience       string
	AccessTokenTTL    time.Duration
	AdminEmail        string
	AdminPasswordHash string

	CheckoutFunctionURL string
	CheckoutFunctionKey string
	CheckoutTimeout     time.Duration
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	CORSAllowedOrigins []string

	LogFormat       string
	LogLevel        string
	MetricsEnabled  bool
	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string
	OTelSampleRatio float64

	WorkerConcurrency int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("HTTP_PORT"), valueOrDefault(k.String("PORT"), "8080")),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),
		AutoMigrate: parseBool(k.String("AUTO_MIGRATE")),

		PromoCacheTTL:    parseDuration(k.String("PROMO_CACHE_TTL"), "45s"),
		PromoSharedCache: parseBoolDefault(k.String("PROMO_SHARED_CACHE"), true),
		CouponRateLimit:  valueOrDefault(k.String("RATE_LIMIT_COUPON"), "20-M"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),

		JWTSecret:         k.String("JWT_SECRET"),
		JWTIssuer:         valueOrDefault(k.String("JWT_ISSUER"), "storefront-promo"),
		JWTAudience:       valueOrDefault(k.String("JWT_AUDIENCE"), "storefront-admin"),
		AccessTokenTTL:    parseDuration(k.String("JWT_TTL"), "8h"),
		AdminEmail:        strings.ToLower(strings.TrimSpace(k.String("ADMIN_EMAIL"))),
		AdminPasswordHash: strings.TrimSpace(k.String("ADMIN_PASSWORD_HASH")),

		CheckoutFunctionURL: strings.TrimSpace(k.String("CHECKOUT_FUNCTION_URL")),
		CheckoutFunctionKey: strings.TrimSpace(k.String("CHECKOUT_FUNCTION_KEY")),
		CheckoutTimeout:     parseDuration(k.String("CHECKOUT_TIMEOUT"), "10s"),
		CheckoutSuccessURL:  strings.TrimSpace(k.String("CHECKOUT_SUCCESS_URL")),
		CheckoutCancelURL:   strings.TrimSpace(k.String("CHECKOUT_CANCEL_URL")),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		LogFormat:       valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:        valueOrDefault(k.String("LOG_LEVEL"), "info"),
		MetricsEnabled:  parseBoolDefault(k.String("METRICS_ENABLED"), true),
		OTelEnabled:     parseBool(k.String("OTEL_ENABLED")),
		OTelEndpoint:    strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTelServiceName: valueOrDefault(k.String("OTEL_SERVICE_NAME"), "storefront-promo"),
		OTelSampleRatio: parseFloat(k.String("OTEL_TRACES_SAMPLER_ARG"), 0.1),

		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 10),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPasswordHash == "") {
		return nil, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD_HASH must be set together")
	}
	if cfg.AdminPasswordHash != "" && !strings.HasPrefix(cfg.AdminPasswordHash, "$argon2id$") {
		return nil, errors.New("ADMIN_PASSWORD_HASH must be an argon2id hash")
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

// CheckoutEnabled reports whether the payment handoff is configured.
func (c *Config) CheckoutEnabled() bool {
	return c.CheckoutFunctionURL != ""
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
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
		return strings.TrimSpace(value)
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

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
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
