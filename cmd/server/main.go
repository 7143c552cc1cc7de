package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Spok95/attendance-web/internal/app"
	"github.com/Spok95/attendance-web/internal/assistant"
	"github.com/Spok95/attendance-web/internal/auth"
	"github.com/Spok95/attendance-web/internal/config"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/jobs"
	"github.com/Spok95/attendance-web/internal/logging"
	"github.com/Spok95/attendance-web/internal/observability"
	"github.com/Spok95/attendance-web/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer lg.Closer()
	logger := lg.Base

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, cfg.Release)
	if err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(ctx, database); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	if err := db.SeedDefaultGroups(ctx, database); err != nil {
		logger.Fatal("seed groups failed", zap.Error(err))
	}

	svc := service.New(service.Deps{
		DB:                   database,
		Hasher:               auth.NewBcryptHasher(),
		Log:                  logger,
		Location:             cfg.Location(),
		AdminRegistrationKey: cfg.Admin.RegistrationKey,
		PDFFontPath:          cfg.PDFFontPath,
	})
	if err := svc.Identity.EnsureAdmin(ctx, cfg.Admin.Phone, cfg.Admin.Password, cfg.Admin.Name); err != nil {
		logger.Fatal("bootstrap admin failed", zap.Error(err))
	}

	var limiter auth.LoginLimiter = auth.NewMemoryLimiter(cfg.Login.MaxAttempts, cfg.Login.Window)
	if cfg.Redis.Addr != "" {
		rdb, err := auth.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, login limiter is in-memory", zap.Error(err))
		} else {
			defer func() { _ = rdb.Close() }()
			limiter = auth.NewRedisLimiter(rdb, cfg.Login.MaxAttempts, cfg.Login.Window)
		}
	}

	ai := assistant.New(assistant.Config{
		Enabled: cfg.Assistant.Enabled,
		BaseURL: cfg.Assistant.BaseURL,
		Model:   cfg.Assistant.Model,
		APIKey:  cfg.Assistant.APIKey,
		Timeout: cfg.Assistant.Timeout,
	})

	jobs.New(ctx, logger).Every(cfg.StatsRefreshInterval, "refresh_gauges", jobs.RefreshGauges(database))

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := app.NewRouter(app.Deps{
		DB:           database,
		Service:      svc,
		Sessions:     auth.NewSessions(cfg.Session.Secret, cfg.Session.TTL),
		Limiter:      limiter,
		Assistant:    ai,
		Log:          logger,
		Location:     cfg.Location(),
		CORSOrigins:  cfg.CORSOrigins,
		CookieSecure: cfg.Session.CookieSecure,
	})
	srv := app.StartHTTP(ctx, cfg.HTTPAddr, router, logger)

	<-ctx.Done()
	logger.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}
