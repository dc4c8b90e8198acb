package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ranklens-io/ranklens/internal"
	"github.com/ranklens-io/ranklens/internal/billing"
	"github.com/ranklens-io/ranklens/internal/export"
	"github.com/ranklens-io/ranklens/internal/handler"
	"github.com/ranklens-io/ranklens/internal/metrics"
	"github.com/ranklens-io/ranklens/internal/middleware"
	"github.com/ranklens-io/ranklens/internal/repository"
	"github.com/ranklens-io/ranklens/internal/seodata"
	"github.com/ranklens-io/ranklens/internal/seodata/mock"
	"github.com/ranklens-io/ranklens/internal/seodata/seorank"
	"github.com/ranklens-io/ranklens/internal/service"
	"github.com/ranklens-io/ranklens/internal/storage"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(db)

	// Initialize SEO data provider
	provider, err := newSEOProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("SEO provider initialization failed: %w", err)
	}
	logger.Info("SEO data provider ready", "provider", cfg.SEOProvider)

	// Initialize export storage
	store, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Export storage ready", "provider", cfg.StorageProvider)

	// Initialize services
	userService := service.NewUserService(repo, logger)
	roleService := service.NewRoleService(repo, db, logger)
	quotaService := service.NewQuotaService(repo, roleService, logger)
	exportService := export.NewService(store, logger)
	seoService := service.NewSEOService(provider, quotaService, exportService, repo, logger)

	// Initialize billing (optional; handlers degrade gracefully without it)
	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			ProMonthlyPriceID:   cfg.StripeProMonthlyPriceID,
			ProYearlyPriceID:    cfg.StripeProYearlyPriceID,
			SuperMonthlyPriceID: cfg.StripeSuperMonthlyPriceID,
			SuperYearlyPriceID:  cfg.StripeSuperYearlyPriceID,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled, no secret key configured")
	}

	// Initialize middleware
	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(userService, roleService, logger, isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	authLimiter := middleware.NewAuthRateLimiter(logger)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(userService, roleService, logger, isSecure)
	quotaHandler := handler.NewQuotaHandler(quotaService, logger)
	seoHandler := handler.NewSEOHandler(seoService, logger)
	adminHandler := handler.NewAdminHandler(userService, roleService, repo, logger)
	billingHandler := handler.NewBillingHandler(billingService, userService, logger, cfg.BaseURL)
	webhookHandler := handler.NewWebhookHandler(billingService, userService, roleService, quotaService, logger)
	dashboardHandler, err := handler.NewDashboardHandler(quotaService, seoService, logger)
	if err != nil {
		return fmt.Errorf("dashboard handler initialization failed: %w", err)
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics (basic auth when configured)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Auth routes with per-IP rate limiting on credential endpoints
	authHandler.RegisterRoutes(mux, authLimiter.LimitRegister, authLimiter.LimitLogin)

	// Quota and check routes. These serve guests too; WithUser at the outer
	// stack resolves the identity, the handlers fall back to the guest
	// sentinel when nobody is signed in.
	quotaHandler.RegisterRoutes(mux)
	seoHandler.RegisterRoutes(mux)

	// Billing routes and the Stripe webhook
	billingHandler.RegisterRoutes(mux)
	webhookHandler.RegisterRoutes(mux)

	// Pages
	dashboardHandler.RegisterRoutes(mux)

	// Admin routes get their own stack with the role check
	requireAdmin := middleware.Stack(authMw.RequireUser, authMw.RequireAdmin)
	adminMux := http.NewServeMux()
	adminHandler.RegisterRoutes(adminMux)
	mux.Handle("/api/admin/", requireAdmin(adminMux))

	// Local export downloads. In production R2 serves presigned URLs
	// directly and this route is unused.
	if cfg.StorageProvider == storage.ProviderLocal {
		filesFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	// Outer middleware stack applied to every route
	stack := middleware.Stack(
		securityMw.Handler,
		metrics.Middleware,
		authMw.WithUser,
		loggingMw.Handler,
	)

	// ==========================================================================
	// Background session cleanup
	// ==========================================================================

	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go sessionCleanupLoop(cleanupCtx, userService, cfg.SessionCleanupInterval, logger)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: stack(mux),
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	cancelCleanup()

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// sessionCleanupLoop periodically deletes expired sessions until ctx is
// canceled. Failures are logged and retried on the next tick.
func sessionCleanupLoop(ctx context.Context, users service.UserService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := users.DeleteExpiredSessions(ctx); err != nil {
				logger.Error("session cleanup failed", "error", err)
			}
		}
	}
}

// newSEOProvider builds the configured SEO data provider.
func newSEOProvider(cfg *internal.Config, logger *slog.Logger) (seodata.Provider, error) {
	switch cfg.SEOProvider {
	case "seorank":
		return seorank.New(seorank.Config{
			APIKey:         cfg.SEORankAPIKey,
			BaseURL:        cfg.SEORankBaseURL,
			MaxRetries:     cfg.SEOMaxRetries,
			RetryBaseDelay: cfg.SEORetryBaseDelay,
			RequestTimeout: cfg.SEORequestTimeout,
		}, logger)
	case "mock":
		return mock.New(logger), nil
	default:
		return nil, fmt.Errorf("unknown SEO provider: %s", cfg.SEOProvider)
	}
}

// newStorage builds the configured export storage backend.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		}, logger)
	case storage.ProviderLocal:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.StorageProvider)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
