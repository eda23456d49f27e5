package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/lavente-auth/authcore/internal/api"
	"github.com/lavente-auth/authcore/internal/audit"
	"github.com/lavente-auth/authcore/internal/auth"
	"github.com/lavente-auth/authcore/internal/config"
	"github.com/lavente-auth/authcore/internal/keymanager"
	"github.com/lavente-auth/authcore/internal/pdp"
	"github.com/lavente-auth/authcore/internal/permission"
	"github.com/lavente-auth/authcore/internal/risk"
	"github.com/lavente-auth/authcore/internal/rotation"
	"github.com/lavente-auth/authcore/internal/session"
	"github.com/lavente-auth/authcore/internal/storage"
	"github.com/lavente-auth/authcore/internal/token"
	"github.com/lavente-auth/authcore/internal/user"
	"github.com/lavente-auth/authcore/pkg/logger"
)

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Setup(cfg.Environment)
	log.Info("application_startup", "env", cfg.Environment)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 1.0,
			Environment:      cfg.Environment,
		}); err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			log.Info("sentry_initialized")
		}
	} else {
		log.Warn("sentry_dsn_missing", "details", "skipping_init")
	}

	ctx := context.Background()

	pool, err := storage.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("database_connected")

	keys, err := keymanager.New(keymanager.Config{
		Dir:         cfg.KeyStoreDir,
		GraceWindow: cfg.KeyGrace(),
		Logger:      log,
	})
	if err != nil {
		log.Error("keymanager_init_failed", "error", err)
		os.Exit(1)
	}
	select {
	case <-keys.ActiveKeyAvailable():
		log.Info("keymanager_ready")
	case <-time.After(30 * time.Second):
		log.Warn("keymanager_not_ready_after_timeout")
	}

	tokens := token.NewService(keys, token.Config{
		Issuer:       cfg.JWTIssuer,
		Audience:     cfg.JWTAudience,
		ClockSkew:    cfg.ClockSkew(),
		AccessTTL:    cfg.AccessTTL(),
		RefreshTTL:   cfg.RefreshTTL(),
		LegacySecret: cfg.JWTSecret,
	})

	sessions := session.NewPostgresStore(pool)
	users := user.NewPostgresRepository(pool)

	auditBackend := audit.NewPostgresLog(pool, cfg.AuditHashChain)
	auditLog := audit.NewLogger(auditBackend, log)

	hasher := auth.NewBcryptHasher()
	mfaService := auth.NewMFAService("lavente-auth")
	authService := auth.NewService(users, sessions, tokens, auditLog, hasher, mfaService, log)

	rotationEngine := rotation.NewEngine(tokens, sessions, users, auditLog, log)

	permStore := permission.NewPostgresStore(pool)
	permEngine := permission.NewEngine(permStore, log, permission.WithSeedOnEmpty(cfg.PermissionSeedOnEmpty))
	if err := permEngine.Load(ctx); err != nil {
		log.Error("permission_engine_load_failed", "error", err)
		os.Exit(1)
	}

	var counters risk.Counters
	if cfg.RiskRedisAddr != "" {
		counters = risk.NewRedisCounters(redis.NewClient(&redis.Options{Addr: cfg.RiskRedisAddr}))
		log.Info("risk_counters_backend", "backend", "redis", "addr", cfg.RiskRedisAddr)
	} else {
		counters = risk.NewMemoryCounters()
		log.Warn("risk_counters_backend", "backend", "memory", "details", "not_shared_across_processes")
	}
	riskEngine := risk.NewEngine(counters, auditLog, log)

	decisionPoint := pdp.New(permEngine, riskEngine, log)

	server := api.NewServer(pool, authService, rotationEngine, decisionPoint, sessions, users, keys, tokens, log)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server_listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			if err := srv.Close(); err != nil {
				log.Error("server_force_close_failed", "error", err)
			}
		}

		pool.Close()
		log.Info("database_pool_closed")
		log.Info("server_shutdown_complete")
	}
}
