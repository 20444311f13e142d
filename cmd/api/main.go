package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mtarikucar/kds-sub004/api/routes"
	"github.com/mtarikucar/kds-sub004/internal/billing"
	"github.com/mtarikucar/kds-sub004/internal/cron"
	"github.com/mtarikucar/kds-sub004/internal/orders"
	"github.com/mtarikucar/kds-sub004/internal/subscriptions"
	"github.com/mtarikucar/kds-sub004/internal/tenants"
	paytrwebhook "github.com/mtarikucar/kds-sub004/internal/webhooks/paytr"
	"github.com/mtarikucar/kds-sub004/internal/zreports"
	"github.com/mtarikucar/kds-sub004/pkg/config"
	"github.com/mtarikucar/kds-sub004/pkg/db"
	"github.com/mtarikucar/kds-sub004/pkg/instance"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/mailer"
	"github.com/mtarikucar/kds-sub004/pkg/metrics"
	"github.com/mtarikucar/kds-sub004/pkg/migrate"
	"github.com/mtarikucar/kds-sub004/pkg/outbox"
	"github.com/mtarikucar/kds-sub004/pkg/paytr"
	"github.com/mtarikucar/kds-sub004/pkg/redis"
	"github.com/mtarikucar/kds-sub004/pkg/render"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	locker := redis.NewLocker(redisClient.Raw())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	tenantRepo := tenants.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())

	paytrClient, err := paytr.NewClient(cfg.PayTR)
	if err != nil {
		logg.Error(context.Background(), "failed to create paytr client", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		outboxService,
		logg,
		orders.WithDistributedLock(locker, redisClient.LockKey),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	billingService, err := billing.NewService(billing.ServiceParams{Repo: billingRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		BillingRepo:       billingRepo,
		TenantRepo:        tenantRepo,
		Links:             paytrClient,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	mailClient := mailer.NewClient(cfg.Sendgrid, logg)

	webhookService, err := paytrwebhook.NewService(paytrwebhook.ServiceParams{
		BillingRepo:       billingRepo,
		Invoices:          billingService,
		TenantRepo:        tenantRepo,
		Verifier:          paytrClient,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Locker:            locker,
		LockKey:           redisClient.LockKey,
		Mailer:            mailClient,
		Metrics:           metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create paytr webhook service", err)
		os.Exit(1)
	}

	renderer, err := render.NewRenderer(render.NewGotenbergClient(cfg.Reports.RendererURL, cfg.Reports.RenderTimeout))
	if err != nil {
		logg.Error(context.Background(), "failed to create report renderer", err)
		os.Exit(1)
	}

	reportsService, err := zreports.NewService(zreports.ServiceParams{
		Repo:              zreports.NewRepository(dbClient.DB()),
		Tenants:           tenantRepo,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Renderer:          renderer,
		Mailer:            mailClient,
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
		logg.Error(context.Background(), "failed to create z-report trigger", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Orders:        ordersService,
			Subscriptions: subscriptionsService,
			Billing:       billingService,
			PayTRWebhook:  webhookService,
			Reports:       reportsService,
			ReportTrigger: reportJob,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}
