package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtarikucar/kds-sub004/internal/billing"
	"github.com/mtarikucar/kds-sub004/internal/cron"
	"github.com/mtarikucar/kds-sub004/internal/tenants"
	"github.com/mtarikucar/kds-sub004/internal/zreports"
	"github.com/mtarikucar/kds-sub004/pkg/config"
	"github.com/mtarikucar/kds-sub004/pkg/db"
	"github.com/mtarikucar/kds-sub004/pkg/instance"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/mailer"
	"github.com/mtarikucar/kds-sub004/pkg/metrics"
	"github.com/mtarikucar/kds-sub004/pkg/migrate"
	"github.com/mtarikucar/kds-sub004/pkg/outbox"
	"github.com/mtarikucar/kds-sub004/pkg/redis"
	"github.com/mtarikucar/kds-sub004/pkg/render"
)

const (
	lockKeyFormat   = "kds:cron-worker:lock:%s"
	shutdownTimeout = 30 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	tenantRepo := tenants.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())

	renderer, err := render.NewRenderer(render.NewGotenbergClient(cfg.Reports.RendererURL, cfg.Reports.RenderTimeout))
	if err != nil {
		logg.Error(context.Background(), "failed to create report renderer", err)
		os.Exit(1)
	}

	reportsService, err := zreports.NewService(zreports.ServiceParams{
		Repo:              zreports.NewRepository(dbClient.DB()),
		Tenants:           tenantRepo,
		Outbox:            outbox.NewService(outboxRepo, logg),
		TransactionRunner: dbClient,
		Renderer:          renderer,
		Mailer:            mailer.NewClient(cfg.Sendgrid, logg),
		Metrics:           metrics.NewReportMetrics(prometheus.DefaultRegisterer),
		Logger:            logg,
		TaxRate:           cfg.Reports.TaxRate,
		DefaultCurrency:   cfg.Reports.DefaultCurrency,
		RenderTimeout:     cfg.Reports.RenderTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create z-report service", err)
		os.Exit(1)
	}

	reportJob, err := cron.NewZReportJob(cron.ZReportJobParams{
		Logger:  logg,
		Tenants: tenantRepo,
		Reports: reportsService,
		Window:  cfg.Scheduler.TickInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create z-report job", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewSubscriptionExpiryJob(cron.SubscriptionExpiryJobParams{
		Logger:      logg,
		DB:          dbClient,
		Billing:     billing.NewRepository(dbClient.DB()),
		GracePeriod: cfg.Billing.GracePeriod,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription expiry job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		Retention:   time.Duration(cfg.Outbox.RetentionDays) * 24 * time.Hour,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(reportJob, expiryJob, retentionJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewDistributedLock(redis.NewLocker(redisClient.Raw()), lockKey(cfg.App.Env), cfg.Scheduler.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Scheduler.TickInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"interval":    service.Interval().String(),
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: ":" + cfg.App.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped unexpectedly", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")
	if err := service.Start(ctx); err != nil {
		logg.Error(ctx, "failed to start cron service", err)
		os.Exit(1)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := service.Stop(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "cron tick did not finish before shutdown", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "metrics server shutdown failed", err)
	}
	logg.Info(shutdownCtx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
