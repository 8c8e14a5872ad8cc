// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the AuthKeeper HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire security, mail, storage and domain services.
//  7. Schedule the unverified account cleanup.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/authkeeper/internal/api"
	"github.com/taibuivan/authkeeper/internal/platform/config"
	"github.com/taibuivan/authkeeper/internal/platform/constants"
	"github.com/taibuivan/authkeeper/internal/platform/cookie"
	"github.com/taibuivan/authkeeper/internal/platform/geo"
	"github.com/taibuivan/authkeeper/internal/platform/mail"
	"github.com/taibuivan/authkeeper/internal/platform/migration"
	pgstore "github.com/taibuivan/authkeeper/internal/platform/postgres"
	redisstore "github.com/taibuivan/authkeeper/internal/platform/redis"
	"github.com/taibuivan/authkeeper/internal/platform/sec"
	"github.com/taibuivan/authkeeper/internal/platform/storage"
	"github.com/taibuivan/authkeeper/internal/users/account"
	"github.com/taibuivan/authkeeper/internal/users/auth"
	"github.com/taibuivan/authkeeper/internal/users/cleanup"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "authkeeper"))
	slog.SetDefault(log)

	log.Info("[AuthKeeper] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "authkeeper"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing_postgres_pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing_redis_client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis_close_error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Security, Mail and Storage ─────────────────────────────────────
	tokens, err := sec.NewTokenService(cfg.JWTSecret, constants.AuthIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	must(log, err, "initialize token service")
	hasher := sec.NewPasswordHasher(cfg.BcryptCost)

	locator := geo.NewIPAPIClient(cfg.GeolocationURL, cfg.GeolocationTimeout)
	mailer, err := mail.NewMailer(mail.NewResendSender(cfg.ResendAPIKey), locator, cfg.MailFrom)
	must(log, err, "initialize mailer")

	photos, err := storage.NewS3Store(startupCtx, storage.Options{
		Bucket:          cfg.BucketName,
		Region:          cfg.BucketRegion,
		AccessKeyID:     cfg.BucketAccessKey,
		SecretAccessKey: cfg.BucketSecretAccessKey,
		Endpoint:        cfg.BucketEndpoint,
		URLTTL:          cfg.PhotoURLTTL,
	})
	must(log, err, "initialize object storage")

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error {
			return pgstore.Ping(ctx, pool)
		},
		CheckCache: func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	accountStore := account.NewPostgresStore(pool)
	cookies := cookie.NewJar(!cfg.IsDevelopment(), cfg.RefreshCookieMaxAge())

	profileService := account.NewService(accountStore, photos, cfg.MaxPhotoBytes)
	profileHandler := account.NewHandler(profileService, cookies, cfg.MaxPhotoBytes)

	authService := auth.NewService(accountStore, hasher, tokens, mailer, auth.Options{
		FrontendURL: cfg.FrontendURL,
	})
	authHandler := auth.NewHandler(authService, profileHandler, cookies)

	// ── 9. Cleanup Schedule ───────────────────────────────────────────────
	sweeper := cleanup.NewSweeper(accountStore, cfg.UnverifiedRetention, log)
	scheduler, err := cleanup.NewScheduler(cfg.CleanupSchedule, sweeper, redisstore.NewLocker(rdb), cfg.CleanupTimeout, log)
	must(log, err, "schedule cleanup")
	scheduler.Start()

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	server := api.NewServer(cfg, log, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
	})

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting_down_server", slog.Duration("timeout", shutdownTimeout))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	scheduler.Stop(stopCtx)

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown_error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped_cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
