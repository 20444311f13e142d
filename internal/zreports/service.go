package zreports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/internal/tenants"
	"github.com/mtarikucar/kds-sub004/pkg/currency"
	"github.com/mtarikucar/kds-sub004/pkg/db"
	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/mailer"
	"github.com/mtarikucar/kds-sub004/pkg/metrics"
	"github.com/mtarikucar/kds-sub004/pkg/outbox"
	"github.com/mtarikucar/kds-sub004/pkg/outbox/payloads"
	"github.com/mtarikucar/kds-sub004/pkg/pagination"
	"github.com/mtarikucar/kds-sub004/pkg/render"
)

const (
	defaultTaxRate       = "0.10"
	defaultRenderTimeout = 30 * time.Second
	reportDateLayout     = "2006-01-02"

	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type tenantDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	FindUser(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error)
}

type documentRenderer interface {
	PDF(ctx context.Context, view render.ReportView) ([]byte, error)
	XLSX(ctx context.Context, view render.ReportView) ([]byte, error)
}

type mailSender interface {
	Send(ctx context.Context, msg mailer.Message) (bool, string)
}

// Service generates, finalizes and delivers end-of-day reports.
type Service interface {
	Generate(ctx context.Context, input GenerateInput) (*models.ZReport, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.ZReport, error)
	FindForDate(ctx context.Context, tenantID uuid.UUID, date time.Time) (*models.ZReport, error)
	List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.ZReport], error)
	Close(ctx context.Context, tenantID, id uuid.UUID) (*models.ZReport, error)
	Download(ctx context.Context, tenantID, id uuid.UUID, format Format) (*Document, error)
	SendEmail(ctx context.Context, tenantID, id uuid.UUID, recipients []string) (*DeliveryResult, error)
}

type ServiceParams struct {
	Repo              Repository
	Tenants           tenantDirectory
	Outbox            outboxPublisher
	TransactionRunner txRunner
	Renderer          documentRenderer
	Mailer            mailSender
	Metrics           *metrics.ReportMetrics
	Logger            *logger.Logger
	TaxRate           string
	DefaultCurrency   string
	RenderTimeout     time.Duration
	Now               func() time.Time
}

type service struct {
	repo            Repository
	tenants         tenantDirectory
	outbox          outboxPublisher
	tx              txRunner
	renderer        documentRenderer
	mailer          mailSender
	metrics         *metrics.ReportMetrics
	logg            *logger.Logger
	taxRate         decimal.Decimal
	defaultCurrency string
	renderTimeout   time.Duration
	now             func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("z-report repository required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenant directory required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Renderer == nil {
		return nil, fmt.Errorf("document renderer required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}

	rawRate := params.TaxRate
	if rawRate == "" {
		rawRate = defaultTaxRate
	}
	taxRate, err := decimal.NewFromString(rawRate)
	if err != nil || taxRate.IsNegative() {
		return nil, fmt.Errorf("invalid tax rate %q", rawRate)
	}
	renderTimeout := params.RenderTimeout
	if renderTimeout <= 0 {
		renderTimeout = defaultRenderTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &service{
		repo:            params.Repo,
		tenants:         params.Tenants,
		outbox:          params.Outbox,
		tx:              params.TransactionRunner,
		renderer:        params.Renderer,
		mailer:          params.Mailer,
		metrics:         params.Metrics,
		logg:            params.Logger,
		taxRate:         taxRate,
		defaultCurrency: currency.Normalize(params.DefaultCurrency, "TRY"),
		renderTimeout:   renderTimeout,
		now:             now,
	}, nil
}

func (s *service) Generate(ctx context.Context, input GenerateInput) (*models.ZReport, error) {
	if err := validateGenerate(input); err != nil {
		return nil, err
	}
	tenant, err := s.loadTenant(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}

	loc := Location(tenant.Timezone)
	reportDate := CalendarDate(input.ReportDate, input.ReportDate.Location())
	from, to := DayWindow(reportDate, loc)
	trigger := input.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}

	var report *models.ZReport
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindByDate(ctx, tenant.ID, reportDate); err == nil {
			return duplicateReport(reportDate)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing report")
		}

		day, err := s.loadDay(ctx, repo, tenant.ID, from, to)
		if err != nil {
			return err
		}

		aggregated := Aggregate(day, CashCount{Opening: input.OpeningCash, Counted: input.CountedCash}, s.taxRate)
		now := s.now().UTC()
		aggregated.ID = uuid.New()
		aggregated.TenantID = tenant.ID
		aggregated.ReportNumber = ReportNumber(reportDate)
		aggregated.ReportDate = reportDate
		aggregated.Currency = currency.Normalize(tenant.Currency, s.defaultCurrency)
		aggregated.Notes = input.Notes
		aggregated.ClosedByID = input.ActorUserID
		aggregated.CreatedAt = now
		aggregated.UpdatedAt = now

		if err := repo.Create(ctx, &aggregated); err != nil {
			if db.IsUniqueViolation(err, "uq_z_reports_tenant_date") {
				return duplicateReport(reportDate)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create z-report")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventZReportGenerated,
			AggregateType: enums.AggregateZReport,
			AggregateID:   aggregated.ID,
			Actor:         &outbox.ActorRef{UserID: &input.ActorUserID, TenantID: tenant.ID},
			Data: payloads.ZReportGeneratedEvent{
				ReportID:       aggregated.ID,
				TenantID:       tenant.ID,
				ReportNumber:   aggregated.ReportNumber,
				ReportDate:     reportDate.Format(reportDateLayout),
				NetSales:       aggregated.NetSales,
				CashDifference: aggregated.CashDifference,
			},
		}); err != nil {
			return err
		}
		report = &aggregated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncGenerated(trigger)
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"tenant_id":       tenant.ID.String(),
			"report_id":       report.ID.String(),
			"report_number":   report.ReportNumber,
			"trigger":         trigger,
			"cash_difference": report.CashDifference.StringFixed(2),
		})
		s.logg.Info(logCtx, "z-report generated")
	}
	return report, nil
}

func (s *service) loadDay(ctx context.Context, repo Repository, tenantID uuid.UUID, from, to time.Time) (DayActivity, error) {
	paid, err := repo.ListOrdersInWindow(ctx, tenantID, enums.OrderStatusPaid, from, to)
	if err != nil {
		return DayActivity{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load paid orders")
	}
	cancelled, err := repo.ListOrdersInWindow(ctx, tenantID, enums.OrderStatusCancelled, from, to)
	if err != nil {
		return DayActivity{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cancelled orders")
	}
	orderIDs := make([]uuid.UUID, 0, len(paid))
	for _, order := range paid {
		orderIDs = append(orderIDs, order.ID)
	}
	payments, err := repo.ListCompletedPayments(ctx, orderIDs)
	if err != nil {
		return DayActivity{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payments")
	}
	movements, err := repo.ListCashMovements(ctx, tenantID, from, to)
	if err != nil {
		return DayActivity{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cash movements")
	}
	return DayActivity{Paid: paid, Payments: payments, Cancelled: cancelled, Movements: movements}, nil
}

func (s *service) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.ZReport, error) {
	report, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return report, nil
}

func (s *service) FindForDate(ctx context.Context, tenantID uuid.UUID, date time.Time) (*models.ZReport, error) {
	report, err := s.repo.FindByDate(ctx, tenantID, CalendarDate(date, time.UTC))
	if err != nil {
		return nil, mapLoadError(err)
	}
	return report, nil
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.ZReport], error) {
	if filters.StartDate != nil && filters.EndDate != nil && filters.EndDate.Before(*filters.StartDate) {
		return pagination.Page[models.ZReport]{}, pkgerrors.New(pkgerrors.CodeValidation, "endDate must not be before startDate")
	}
	params = params.Normalize()
	reports, total, err := s.repo.List(ctx, tenantID, filters, params)
	if err != nil {
		return pagination.Page[models.ZReport]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list z-reports")
	}
	return pagination.NewPage(reports, total, params), nil
}

func (s *service) Close(ctx context.Context, tenantID, id uuid.UUID) (*models.ZReport, error) {
	var report *models.ZReport
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, tenantID, id)
		if err != nil {
			return mapLoadError(err)
		}
		if current.IsFinalized {
			return alreadyFinalized(current)
		}
		updated, err := repo.Finalize(ctx, current.ID, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize z-report")
		}
		if !updated {
			return alreadyFinalized(current)
		}
		report, err = repo.FindByID(ctx, tenantID, id)
		if err != nil {
			return mapLoadError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *service) Download(ctx context.Context, tenantID, id uuid.UUID, format Format) (*Document, error) {
	if format == "" {
		format = FormatPDF
	}
	if format != FormatPDF && format != FormatXLSX {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "format must be pdf or xlsx")
	}
	report, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	tenant, err := s.loadTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	view := render.NewReportView(report, tenant.Name, s.closedByName(ctx, report))

	renderCtx, cancel := context.WithTimeout(ctx, s.renderTimeout)
	defer cancel()

	switch format {
	case FormatXLSX:
		content, err := s.renderer.XLSX(renderCtx, view)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "render spreadsheet")
		}
		return &Document{Filename: report.ReportNumber + ".xlsx", ContentType: contentTypeXLSX, Content: content}, nil
	default:
		content, err := s.renderer.PDF(renderCtx, view)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "render pdf")
		}
		return &Document{Filename: report.ReportNumber + ".pdf", ContentType: contentTypePDF, Content: content}, nil
	}
}

// SendEmail renders the PDF and mails it. Explicit recipients win over the
// tenant's configured list. Render and transport failures are stored on the
// report and returned in the result.
func (s *service) SendEmail(ctx context.Context, tenantID, id uuid.UUID, recipients []string) (*DeliveryResult, error) {
	report, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	tenant, err := s.loadTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	to := tenants.CleanRecipients(recipients)
	if len(to) == 0 {
		to = tenants.Recipients(tenant)
	}
	result := &DeliveryResult{ReportID: report.ID, Recipients: to}

	sent, failure := s.deliver(ctx, tenant, report, to)
	now := s.now().UTC()
	if sent {
		err = s.repo.RecordDelivery(ctx, report.ID, &now, nil, now)
	} else {
		err = s.repo.RecordDelivery(ctx, report.ID, nil, &failure, now)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record z-report delivery")
	}
	s.metrics.ObserveDelivery(sent)

	result.EmailSent = sent
	result.EmailError = failure
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"tenant_id":  tenantID.String(),
			"report_id":  report.ID.String(),
			"recipients": len(to),
		})
		if sent {
			s.logg.Info(logCtx, "z-report delivered")
		} else {
			s.logg.Warn(s.logg.WithField(logCtx, "email_error", failure), "z-report delivery failed")
		}
	}
	return result, nil
}

func (s *service) deliver(ctx context.Context, tenant *models.Tenant, report *models.ZReport, to []string) (bool, string) {
	if len(to) == 0 {
		return false, "no recipients configured"
	}
	view := render.NewReportView(report, tenant.Name, s.closedByName(ctx, report))

	renderCtx, cancel := context.WithTimeout(ctx, s.renderTimeout)
	pdf, err := s.renderer.PDF(renderCtx, view)
	cancel()
	if err != nil {
		return false, "render pdf: " + err.Error()
	}

	return s.mailer.Send(ctx, mailer.Message{
		To:       to,
		Subject:  fmt.Sprintf("Z-Report %s - %s", report.ReportNumber, tenant.Name),
		Template: mailer.TemplateZReport,
		Context: map[string]any{
			"tenantName":      tenant.Name,
			"reportNumber":    report.ReportNumber,
			"reportDate":      view.ReportDate(),
			"totalOrders":     report.TotalOrders,
			"netSales":        view.Money(report.NetSales),
			"cashDifference":  view.Money(report.CashDifference),
			"differenceLabel": view.DifferenceLabel(),
		},
		Attachments: []mailer.Attachment{{
			Filename:    report.ReportNumber + ".pdf",
			ContentType: contentTypePDF,
			Content:     pdf,
		}},
	})
}

func (s *service) closedByName(ctx context.Context, report *models.ZReport) string {
	user, err := s.tenants.FindUser(ctx, report.TenantID, report.ClosedByID)
	if err != nil || user == nil || user.Name == "" {
		return report.ClosedByID.String()
	}
	return user.Name
}

func (s *service) loadTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant")
	}
	return tenant, nil
}

func validateGenerate(input GenerateInput) error {
	if input.TenantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing")
	}
	if input.ActorUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "closing user is required")
	}
	if input.ReportDate.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "reportDate is required")
	}
	if err := validateCash("cashDrawerOpening", input.OpeningCash); err != nil {
		return err
	}
	return validateCash("cashDrawerClosing", input.CountedCash)
}

func validateCash(field string, amount *decimal.Decimal) error {
	if amount == nil {
		return nil
	}
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" cannot be negative")
	}
	if !amount.Equal(amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" allows at most two decimal places")
	}
	return nil
}

func duplicateReport(date time.Time) error {
	return pkgerrors.New(pkgerrors.CodeDuplicateReport, "z-report already exists for this date").
		WithDetails(map[string]any{"reportDate": date.Format(reportDateLayout)})
}

func alreadyFinalized(report *models.ZReport) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyFinalized, "z-report is already finalized").
		WithDetails(map[string]any{"reportId": report.ID.String()})
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "z-report not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load z-report")
}
