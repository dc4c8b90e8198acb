package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Application base URL (for redirects and export links)
	BaseURL string

	// SEO data provider configuration
	SEOProvider       string // "seorank" or "mock"
	SEORankAPIKey     string
	SEORankBaseURL    string
	SEOMaxRetries     int
	SEORetryBaseDelay time.Duration
	SEORequestTimeout time.Duration

	// Export storage configuration
	StorageProvider string // "local" or "r2"

	// Local storage (development)
	LocalStoragePath string // Base directory for export files
	LocalStorageURL  string // Base URL for accessing export files

	// R2 storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string

	// Session cleanup interval
	SessionCleanupInterval time.Duration

	// Stripe billing configuration.
	// Required when billing is enabled in production; in development the
	// billing handlers function as stubs if these are empty.
	StripeSecretKey     string // Stripe API secret key (sk_test_... or sk_live_...)
	StripeWebhookSecret string // Stripe webhook signing secret (whsec_...)

	// Stripe price IDs for subscription plans
	StripeProMonthlyPriceID   string
	StripeProYearlyPriceID    string
	StripeSuperMonthlyPriceID string
	StripeSuperYearlyPriceID  string

	// Metrics endpoint authentication.
	// If both are empty the /metrics endpoint is unprotected (not recommended).
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Base URL defaults to localhost for development
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		// SEO provider defaults
		SEOProvider:       getEnv("SEO_PROVIDER", "mock"),
		SEORankAPIKey:     getEnv("SEORANK_API_KEY", ""),
		SEORankBaseURL:    getEnv("SEORANK_BASE_URL", "https://api.seorank.io/v1"),
		SEOMaxRetries:     getEnvInt("SEO_MAX_RETRIES", 3),
		SEORetryBaseDelay: getEnvDuration("SEO_RETRY_BASE_DELAY", 500*time.Millisecond),
		SEORequestTimeout: getEnvDuration("SEO_REQUEST_TIMEOUT", 30*time.Second),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),

		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", 1*time.Hour),

		// Stripe billing (optional, stubs work without these)
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		// Stripe price IDs (optional, required when billing is enabled)
		StripeProMonthlyPriceID:   getEnv("STRIPE_PRO_MONTHLY_PRICE_ID", ""),
		StripeProYearlyPriceID:    getEnv("STRIPE_PRO_YEARLY_PRICE_ID", ""),
		StripeSuperMonthlyPriceID: getEnv("STRIPE_SUPER_MONTHLY_PRICE_ID", ""),
		StripeSuperYearlyPriceID:  getEnv("STRIPE_SUPER_YEARLY_PRICE_ID", ""),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// Validate SEO provider configuration
	if cfg.SEOProvider == "seorank" {
		if cfg.SEORankAPIKey == "" {
			return nil, fmt.Errorf("SEORANK_API_KEY is required when SEO_PROVIDER is 'seorank'")
		}
	} else if cfg.SEOProvider != "mock" {
		return nil, fmt.Errorf("SEO_PROVIDER must be either 'seorank' or 'mock', got: %s", cfg.SEOProvider)
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		for key, val := range map[string]string{
			"R2_ACCOUNT_ID":        cfg.R2AccountID,
			"R2_ACCESS_KEY_ID":     cfg.R2AccessKeyID,
			"R2_SECRET_ACCESS_KEY": cfg.R2SecretAccessKey,
			"R2_BUCKET_NAME":       cfg.R2BucketName,
		} {
			if strings.TrimSpace(val) == "" {
				return nil, fmt.Errorf("%s is required when STORAGE_PROVIDER is 'r2'", key)
			}
		}
	} else if cfg.StorageProvider != "local" {
		return nil, fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
