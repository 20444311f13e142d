package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtarikucar/kds-sub004/api/controllers"
	billingcontrollers "github.com/mtarikucar/kds-sub004/api/controllers/billing"
	ordercontrollers "github.com/mtarikucar/kds-sub004/api/controllers/orders"
	reportcontrollers "github.com/mtarikucar/kds-sub004/api/controllers/reports"
	subscriptioncontrollers "github.com/mtarikucar/kds-sub004/api/controllers/subscriptions"
	webhookcontrollers "github.com/mtarikucar/kds-sub004/api/controllers/webhooks"
	"github.com/mtarikucar/kds-sub004/api/middleware"
	"github.com/mtarikucar/kds-sub004/internal/orders"
	subscriptionsvc "github.com/mtarikucar/kds-sub004/internal/subscriptions"
	"github.com/mtarikucar/kds-sub004/internal/zreports"
	"github.com/mtarikucar/kds-sub004/pkg/config"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/redis"
)

// RouterParams carries every collaborator the API mounts. Nil services
// answer their routes with an internal error rather than panicking.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    *redis.Client
	Gatherer prometheus.Gatherer

	Orders        orders.Service
	Subscriptions subscriptionsvc.Service
	Billing       billingcontrollers.HistoryService
	PayTRWebhook  webhookcontrollers.CallbackProcessor
	Reports       zreports.Service
	ReportTrigger reportcontrollers.Trigger
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	var (
		idempotencyStore redis.IdempotencyStore
		readiness        = map[string]controllers.Pinger{"db": params.DB}
	)
	if params.Redis != nil {
		idempotencyStore = params.Redis
		readiness["redis"] = params.Redis
	}
	reportLimit := func(action string) func(http.Handler) http.Handler {
		if params.Redis == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.TenantRateLimit(action, cfg.RateLimit.ReportActionPerMinute, time.Minute, params.Redis, logg)
	}

	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.SecureHeaders(cfg.App.IsProd()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.IPRateLimit(cfg.RateLimit.WebhookPerMinute, time.Minute, webhookcontrollers.PayTRThrottled(logg))).
			Post("/paytr", webhookcontrollers.PayTRCallback(params.PayTRWebhook, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleManager, enums.UserRoleWaiter)).
				Post("/", ordercontrollers.Create(params.Orders, logg))
			r.Get("/", ordercontrollers.List(params.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(params.Orders, logg))
			r.Patch("/{orderId}/status", ordercontrollers.UpdateStatus(params.Orders, logg))
			r.Get("/{orderId}/payments", ordercontrollers.ListPayments(params.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleManager, enums.UserRoleWaiter)).
				Post("/{orderId}/payments", ordercontrollers.RecordPayment(params.Orders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Post("/payments/create-intent", subscriptioncontrollers.CreateIntent(params.Subscriptions, logg))
			r.Get("/subscriptions/current", subscriptioncontrollers.Current(params.Subscriptions, logg))
			r.Get("/billing/invoices", billingcontrollers.Invoices(params.Billing, logg))
			r.Get("/billing/payments", billingcontrollers.Payments(params.Billing, logg))
		})

		r.Route("/reports/z-reports", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleManager))
			r.Get("/", reportcontrollers.List(params.Reports, logg))
			r.With(reportLimit("z-report-generate")).Post("/", reportcontrollers.Generate(params.Reports, logg))
			r.With(reportLimit("z-report-trigger")).Post("/trigger", reportcontrollers.TriggerScheduled(params.ReportTrigger, logg))
			r.Get("/{reportId}", reportcontrollers.Get(params.Reports, logg))
			r.Get("/{reportId}/download", reportcontrollers.Download(params.Reports, logg))
			r.Post("/{reportId}/close", reportcontrollers.Close(params.Reports, logg))
			r.With(reportLimit("z-report-send-email")).Post("/{reportId}/send-email", reportcontrollers.SendEmail(params.Reports, logg))
		})
	})

	return r
}
