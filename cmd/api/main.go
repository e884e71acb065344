package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jdmarch/gauntlet/internal/auth"
	"github.com/jdmarch/gauntlet/internal/background"
	"github.com/jdmarch/gauntlet/internal/config"
	"github.com/jdmarch/gauntlet/internal/database"
	"github.com/jdmarch/gauntlet/internal/handlers"
	middlewareCustom "github.com/jdmarch/gauntlet/internal/middleware"
	"github.com/jdmarch/gauntlet/internal/repositories"
	"github.com/jdmarch/gauntlet/internal/routes"
	"github.com/jdmarch/gauntlet/internal/services"
	pkghttp "github.com/jdmarch/gauntlet/pkg/http"
	pkglogger "github.com/jdmarch/gauntlet/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	challengeRepo := repositories.NewChallengeRepository(db)
	failureRepo := repositories.NewFailureRecordRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(challengeRepo, failureRepo, logger, cfg.Security.CleanupInterval)

	// Audit logger for attempt/verification/telemetry events
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Threat tracking
	threatService := services.NewThreatService(failureRepo, services.ThreatConfig{
		FailureWindow: cfg.Security.FailureWindow,
	}, logger)

	// Lockout manager
	lockoutService := services.NewLockoutService(threatService,
		services.DefaultLockoutConfig(cfg.Security.BackoffBase), logger)

	// Challenge factory and verifier
	challengeService := services.NewChallengeService(challengeRepo, threatService, services.ChallengeConfig{
		TTL:    cfg.Security.ChallengeTTL,
		Secret: cfg.Security.Secret,
	}, logger, auditLogger)

	// Clearance token manager
	tokenManager := auth.NewTokenManager(cfg.Security.Secret, cfg.Security.ClearanceTokenTTL)

	// Client IP extraction
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize handlers
	asrHandler := handlers.NewASRHandler(threatService, challengeService, lockoutService, tokenManager, ipConfig, auditLogger, logger)
	adminHandler := handlers.NewAdminHandler(threatService, lockoutService, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, asrHandler, adminHandler, ipConfig,
		cfg.Security.AdminToken, cfg.Security.ReporterToken)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
