// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rankwell/rankwell/internal/tiers"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Identity
	JWTSecret string

	// Billing
	StripeSecretKey     string
	StripeWebhookSecret string
	// StripePriceTiers maps Stripe price lookup keys to tier identifiers.
	StripePriceTiers map[string]tiers.ID

	// Credits
	CreditResetTZ string // IANA zone that month boundaries are computed in

	// Tracing
	OTLPEndpoint     string  // empty disables tracing
	TraceSampleRatio float64 // fraction of new traces kept; 0 keeps all

	// Version is the build version, set by the binary rather than the environment.
	Version string

	// Pool
	MaxOpenConns int

	// HTTP edge
	CORSOrigins  []string // dashboard frontends allowed to call the API
	RateLimitRPM int      // per-caller sustained requests per minute
}

const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultCreditResetTZ = "UTC"
	DefaultMaxOpenConns  = 25
	DefaultRateLimitRPM  = 120

	// MinJWTSecretLength applies outside development.
	MinJWTSecretLength = 32
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	priceTiers, err := ParsePriceTiers(os.Getenv("STRIPE_PRICE_TIERS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		JWTSecret:           os.Getenv("JWT_SECRET"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePriceTiers:    priceTiers,
		CreditResetTZ:       getEnv("CREDIT_RESET_TZ", DefaultCreditResetTZ),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 0),
		MaxOpenConns:        int(getEnvInt64("DB_MAX_OPEN_CONNS", DefaultMaxOpenConns)),
		CORSOrigins:         splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		RateLimitRPM:        int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if !c.IsDevelopment() && len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters outside development", MinJWTSecretLength)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("CREDIT_RESET_TZ: %w", err)
	}
	if c.StripeSecretKey != "" && c.IsProduction() && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set in production")
	}
	return nil
}

// Location returns the zone credit periods are computed in.
func (c *Config) Location() (*time.Location, error) {
	if c.CreditResetTZ == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.CreditResetTZ)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ParsePriceTiers parses "lookup_key=tier,lookup_key=tier". Tier names are
// normalized and must exist in the catalog.
func ParsePriceTiers(raw string) (map[string]tiers.ID, error) {
	out := make(map[string]tiers.ID)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, tier, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("STRIPE_PRICE_TIERS: malformed entry %q", pair)
		}
		def, err := tiers.Lookup(tier)
		if err != nil {
			return nil, fmt.Errorf("STRIPE_PRICE_TIERS: %w", err)
		}
		out[key] = def.ID
	}
	return out, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
