package cron

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/internal/tenants"
	"github.com/mtarikucar/kds-sub004/internal/zreports"
	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
)

const ZReportJobName = "z-report-scheduler"

type tenantSource interface {
	ListReportEnabled(ctx context.Context) ([]models.Tenant, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	FindAdmin(ctx context.Context, tenantID uuid.UUID) (*models.User, error)
}

type ZReportJobParams struct {
	Logger  *logger.Logger
	Tenants tenantSource
	Reports zreports.Service
	// Window is the closing-time eligibility width; it must equal the tick interval.
	Window time.Duration
	Now    func() time.Time
}

// ZReportJob generates and mails each tenant's end-of-day report once, on the
// first tick after the tenant's local closing time.
type ZReportJob struct {
	logg    *logger.Logger
	tenants tenantSource
	reports zreports.Service
	window  time.Duration
	now     func() time.Time
}

// TriggerResult is the outcome of a manual run for one tenant.
type TriggerResult struct {
	Success  bool       `json:"success"`
	Message  string     `json:"message"`
	ReportID *uuid.UUID `json:"reportId,omitempty"`
}

func NewZReportJob(params ZReportJobParams) (*ZReportJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenant source required")
	}
	if params.Reports == nil {
		return nil, fmt.Errorf("z-report service required")
	}
	if params.Window <= 0 {
		return nil, fmt.Errorf("eligibility window must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &ZReportJob{
		logg:    params.Logger,
		tenants: params.Tenants,
		reports: params.Reports,
		window:  params.Window,
		now:     now,
	}, nil
}

func (j *ZReportJob) Name() string { return ZReportJobName }

func (j *ZReportJob) Run(ctx context.Context) error {
	candidates, err := j.tenants.ListReportEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list report tenants: %w", err)
	}
	now := j.now()

	var errs error
	for i := range candidates {
		tenant := &candidates[i]
		if len(tenants.Recipients(tenant)) == 0 {
			continue
		}
		loc := zreports.Location(tenant.Timezone)
		due, err := ClosingWindowOpen(now, loc, *tenant.ClosingTime, j.window)
		if err != nil {
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"tenant_id":    tenant.ID.String(),
				"closing_time": *tenant.ClosingTime,
			}), "invalid closing time; tenant skipped")
			continue
		}
		if !due {
			continue
		}
		if _, err := j.process(ctx, tenant, zreports.CalendarDate(now, loc), true); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("tenant %s: %w", tenant.ID, err))
		}
	}
	return errs
}

// TriggerReportForTenant runs the scheduled generation path for one tenant
// regardless of its closing time.
func (j *ZReportJob) TriggerReportForTenant(ctx context.Context, tenantID uuid.UUID) TriggerResult {
	tenant, err := j.tenants.FindByID(ctx, tenantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TriggerResult{Success: false, Message: "Tenant not found"}
	}
	if err != nil {
		return TriggerResult{Success: false, Message: err.Error()}
	}

	loc := zreports.Location(tenant.Timezone)
	report, err := j.process(ctx, tenant, zreports.CalendarDate(j.now(), loc), false)
	if err != nil {
		return TriggerResult{Success: false, Message: err.Error()}
	}
	if report == nil {
		return TriggerResult{Success: false, Message: "No admin user found for tenant"}
	}
	id := report.ID
	return TriggerResult{Success: true, Message: "Report processed successfully", ReportID: &id}
}

// process generates today's report if missing and attempts delivery. When
// skipDelivered is set, a report whose delivery was already attempted is left
// alone. A nil report with a nil error means the tenant has no admin.
func (j *ZReportJob) process(ctx context.Context, tenant *models.Tenant, day time.Time, skipDelivered bool) (*models.ZReport, error) {
	ctx = j.logg.WithFields(ctx, map[string]any{
		"tenant_id":   tenant.ID.String(),
		"report_date": day.Format("2006-01-02"),
	})

	report, err := j.reports.FindForDate(ctx, tenant.ID, day)
	switch {
	case err == nil:
		if skipDelivered && report.DeliveryAttempted() {
			return report, nil
		}
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		report, err = j.generate(ctx, tenant, day)
		if err != nil || report == nil {
			return nil, err
		}
	default:
		return nil, err
	}

	result, err := j.reports.SendEmail(ctx, tenant.ID, report.ID, nil)
	if err != nil {
		return report, err
	}
	if !result.EmailSent {
		j.logg.Warn(j.logg.WithField(ctx, "email_error", result.EmailError), "z-report generated but email not sent")
	}
	return report, nil
}

func (j *ZReportJob) generate(ctx context.Context, tenant *models.Tenant, day time.Time) (*models.ZReport, error) {
	admin, err := j.tenants.FindAdmin(ctx, tenant.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		j.logg.Warn(ctx, "no admin user for tenant; z-report skipped")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant admin: %w", err)
	}

	report, err := j.reports.Generate(ctx, zreports.GenerateInput{
		TenantID:    tenant.ID,
		ActorUserID: admin.ID,
		ReportDate:  day,
		Trigger:     zreports.TriggerScheduled,
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeDuplicateReport) {
		return j.reports.FindForDate(ctx, tenant.ID, day)
	}
	return report, err
}

// ClosingWindowOpen reports whether now, read in loc, falls in
// [closing, closing+window) on the same local day.
func ClosingWindowOpen(now time.Time, loc *time.Location, closing string, window time.Duration) (bool, error) {
	closingMinutes, err := parseClockMinutes(closing)
	if err != nil {
		return false, err
	}
	local := now.In(loc)
	currentMinutes := local.Hour()*60 + local.Minute()
	since := currentMinutes - closingMinutes
	return since >= 0 && time.Duration(since)*time.Minute < window, nil
}

func parseClockMinutes(value string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, fmt.Errorf("closing time %q is not HH:MM", value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("closing time %q has an invalid hour", value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("closing time %q has an invalid minute", value)
	}
	return hour*60 + minute, nil
}
