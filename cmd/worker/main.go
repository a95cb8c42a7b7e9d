package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/beopar/beopar/internal/app"
	"github.com/beopar/beopar/internal/billing"
	"github.com/beopar/beopar/internal/customers"
	jobmetrics "github.com/beopar/beopar/internal/jobs"
	"github.com/beopar/beopar/internal/mail"
	"github.com/beopar/beopar/internal/payments"
	"github.com/beopar/beopar/internal/platform/cache"
	"github.com/beopar/beopar/internal/platform/db"
	"github.com/beopar/beopar/internal/shared"
	"github.com/beopar/beopar/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var appCache *cache.Cache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		appCache = cache.NewCache(redisClient, cfg.CacheTTL)
	}

	var sender mail.Sender
	if cfg.MailProvider == "ses" {
		sesSender, err := mail.NewSESSender(ctx, cfg.SESRegion, cfg.MailFrom, cfg.MailFromName)
		if err != nil {
			logger.Error("init ses sender", slog.Any("error", err))
			os.Exit(1)
		}
		sender = sesSender
	} else {
		sender = mail.NewNoopSender(logger)
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	customersRepo := customers.NewRepository(pool)
	customersService := customers.NewService(customersRepo, auditLogger)

	paymentsRepo := payments.NewRepository(pool)
	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, customersService, paymentsRepo, appCache, auditLogger, idempotencyStore, billing.Config{
		HomeJurisdiction: cfg.GSTHomeState,
		DueDays:          cfg.InvoiceDueDays,
	})

	// The worker only reads payments, so the enqueue bridge stays empty.
	paymentsService := payments.NewService(paymentsRepo, billingService, jobs.NewNotifyEnqueuer(nil), appCache, auditLogger, idempotencyStore)

	metrics := jobmetrics.NewMetrics(nil)

	sweepTask, err := jobs.NewOverdueSweepTask(time.Time{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(int(cfg.IdempotencyRetention.Hours()))
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOverdueSweep, Handler: jobs.NewOverdueSweepHandler(billingService, customersService, sender, appCache, metrics, logger)},
			{Type: jobs.TaskPaymentNotify, Handler: jobs.NewPaymentNotifyHandler(paymentsService, billingService, customersService, sender, metrics, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotencyStore, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
