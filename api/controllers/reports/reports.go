package reports

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtarikucar/kds-sub004/api/controllers/tenantcontext"
	"github.com/mtarikucar/kds-sub004/api/responses"
	"github.com/mtarikucar/kds-sub004/api/validators"
	"github.com/mtarikucar/kds-sub004/internal/cron"
	"github.com/mtarikucar/kds-sub004/internal/zreports"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/pagination"
)

// Trigger runs the scheduled generation path for one tenant on demand.
type Trigger interface {
	TriggerReportForTenant(ctx context.Context, tenantID uuid.UUID) cron.TriggerResult
}

type generateRequest struct {
	ReportDate  string  `json:"reportDate" validate:"required,datetime=2006-01-02"`
	CashOpening string  `json:"cashOpening" validate:"required,money"`
	CashClosing string  `json:"cashClosing" validate:"required,money"`
	Notes       *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type sendEmailRequest struct {
	Recipients []string `json:"recipients,omitempty" validate:"omitempty,max=20,dive,email"`
}

// Generate closes the day for the caller's tenant.
func Generate(svc zreports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload generateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		reportDate, err := time.Parse(validators.DateLayout, payload.ReportDate)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reportDate"))
			return
		}
		opening, err := validators.ParseMoney("cashOpening", payload.CashOpening)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		counted, err := validators.ParseMoney("cashClosing", payload.CashClosing)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var notes *string
		if payload.Notes != nil {
			if clean := validators.CleanText(*payload.Notes, 1000); clean != "" {
				notes = &clean
			}
		}

		report, err := svc.Generate(ctx, zreports.GenerateInput{
			TenantID:    actor.TenantID,
			ActorUserID: actor.UserID,
			ReportDate:  reportDate,
			OpeningCash: &opening,
			CountedCash: &counted,
			Notes:       notes,
			Trigger:     zreports.TriggerManual,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, report)
	}
}

func Get(svc zreports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, reportID, ok := resolveReport(w, r, svc, logg)
		if !ok {
			return
		}
		report, err := svc.Get(ctx, actor.TenantID, reportID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// List pages reports newest first within an optional inclusive date range.
func List(svc zreports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := validators.ParseQueryInt(r, "page", 1, 1, 100000)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		start, err := validators.ParseQueryDate(r, "startDate")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		end, err := validators.ParseQueryDate(r, "endDate")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.List(ctx, actor.TenantID, zreports.ListFilters{StartDate: start, EndDate: end}, pagination.Params{Page: page, Limit: limit})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Download streams the report as PDF (default) or XLSX.
func Download(svc zreports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, reportID, ok := resolveReport(w, r, svc, logg)
		if !ok {
			return
		}
		format := zreports.Format(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
		if format == "" {
			format = zreports.FormatPDF
		}

		doc, err := svc.Download(ctx, actor.TenantID, reportID, format)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteAttachment(w, doc.Filename, doc.ContentType, doc.Content)
	}
}

func Close(svc zreports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, reportID, ok := resolveReport(w, r, svc, logg)
		if !ok {
			return
		}
		report, err := svc.Close(ctx, actor.TenantID, reportID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// SendEmail mails the report. A failed delivery is still a 200 with
// emailSent=false.
func SendEmail(svc zreports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, reportID, ok := resolveReport(w, r, svc, logg)
		if !ok {
			return
		}

		var payload sendEmailRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		result, err := svc.SendEmail(ctx, actor.TenantID, reportID, payload.Recipients)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// TriggerScheduled runs today's scheduled report for the caller's tenant
// regardless of its closing time.
func TriggerScheduled(trigger Trigger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if trigger == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report scheduler unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, trigger.TriggerReportForTenant(ctx, actor.TenantID))
	}
}

func resolveReport(w http.ResponseWriter, r *http.Request, svc zreports.Service, logg *logger.Logger) (tenantcontext.Actor, uuid.UUID, bool) {
	ctx := r.Context()
	if svc == nil {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report service unavailable"))
		return tenantcontext.Actor{}, uuid.Nil, false
	}
	actor, err := tenantcontext.Resolve(r)
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return tenantcontext.Actor{}, uuid.Nil, false
	}
	reportID, err := validators.ParseUUIDParam(r, "reportId")
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return tenantcontext.Actor{}, uuid.Nil, false
	}
	return actor, reportID, true
}
