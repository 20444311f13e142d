package zreports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/internal/tenants"
	"github.com/mtarikucar/kds-sub004/pkg/db/dbtest"
	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/mailer"
	"github.com/mtarikucar/kds-sub004/pkg/metrics"
	"github.com/mtarikucar/kds-sub004/pkg/outbox"
	"github.com/mtarikucar/kds-sub004/pkg/pagination"
	"github.com/mtarikucar/kds-sub004/pkg/render"
)

type stubRenderer struct {
	pdfErr error
	views  []render.ReportView
}

func (s *stubRenderer) PDF(_ context.Context, view render.ReportView) ([]byte, error) {
	s.views = append(s.views, view)
	if s.pdfErr != nil {
		return nil, s.pdfErr
	}
	return []byte("%PDF-1.7 " + view.Report.ReportNumber), nil
}

func (s *stubRenderer) XLSX(_ context.Context, view render.ReportView) ([]byte, error) {
	s.views = append(s.views, view)
	return []byte("PK xlsx"), nil
}

type stubMailer struct {
	mu       sync.Mutex
	messages []mailer.Message
	fail     string
}

func (m *stubMailer) Send(_ context.Context, msg mailer.Message) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if m.fail != "" {
		return false, m.fail
	}
	return true, ""
}

type reportFixture struct {
	svc      Service
	conn     *gorm.DB
	renderer *stubRenderer
	mailer   *stubMailer
	tenant   *models.Tenant
	admin    *models.User
	day      time.Time
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	day := time.Date(2025, 5, 19, 0, 0, 0, 0, time.UTC)
	now := day.Add(23 * time.Hour)

	tenant := &models.Tenant{
		ID:                    uuid.New(),
		Name:                  "Köşe Kafe",
		Status:                enums.TenantStatusActive,
		Currency:              "TRY",
		Timezone:              "UTC",
		ReportEmailEnabled:    true,
		ReportEmailRecipients: pq.StringArray{"owner@kose.example", "OWNER@kose.example", "nope"},
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	require.NoError(t, conn.Create(tenant).Error)
	admin := &models.User{ID: uuid.New(), TenantID: tenant.ID, Email: "admin@kose.example", Name: "Mehmet", Role: enums.UserRoleAdmin, CreatedAt: now}
	require.NoError(t, conn.Create(admin).Error)

	renderer := &stubRenderer{}
	mail := &stubMailer{}
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(conn),
		Tenants:           tenants.NewRepository(conn),
		Outbox:            outbox.NewService(outbox.NewRepository(conn), nil),
		TransactionRunner: client,
		Renderer:          renderer,
		Mailer:            mail,
		Metrics:           metrics.NewReportMetrics(prometheus.NewRegistry()),
		Now:               func() time.Time { return now },
	})
	require.NoError(t, err)
	return &reportFixture{svc: svc, conn: conn, renderer: renderer, mailer: mail, tenant: tenant, admin: admin, day: day}
}

type paymentSpec struct {
	method enums.PaymentMethod
	amount string
}

func (f *reportFixture) seedOrder(t *testing.T, at time.Time, status enums.OrderStatus, orderType enums.OrderType, productID uuid.UUID, qty int, unit string, payments ...paymentSpec) *models.Order {
	t.Helper()
	subtotal := dec(unit).Mul(decimal.NewFromInt(int64(qty)))
	order := &models.Order{
		ID:          uuid.New(),
		TenantID:    f.tenant.ID,
		OrderNumber: "ORD-" + at.Format("20060102") + "-" + uuid.NewString()[:6],
		Type:        orderType,
		Status:      status,
		TotalAmount: subtotal,
		Discount:    dec("0"),
		FinalAmount: subtotal,
		CreatedAt:   at,
		UpdatedAt:   at,
		Items: []models.OrderItem{{
			ID: uuid.New(), ProductID: productID, Name: "Item", Quantity: qty, UnitPrice: dec(unit), Subtotal: subtotal,
		}},
	}
	require.NoError(t, f.conn.Create(order).Error)
	for _, p := range payments {
		require.NoError(t, f.conn.Create(&models.Payment{
			ID: uuid.New(), OrderID: order.ID, TenantID: f.tenant.ID, Method: p.method, Amount: dec(p.amount), Status: enums.PaymentStatusCompleted, CreatedAt: at,
		}).Error)
	}
	return order
}

func (f *reportFixture) generate(t *testing.T, opening, counted string) *models.ZReport {
	t.Helper()
	report, err := f.svc.Generate(context.Background(), GenerateInput{
		TenantID:    f.tenant.ID,
		ActorUserID: f.admin.ID,
		ReportDate:  f.day,
		OpeningCash: decPtr(opening),
		CountedCash: decPtr(counted),
	})
	require.NoError(t, err)
	return report
}

func TestGeneratePersistsDayFigures(t *testing.T) {
	f := newReportFixture(t)
	burger := uuid.New()
	f.seedOrder(t, f.day.Add(10*time.Hour), enums.OrderStatusPaid, enums.OrderTypeDineIn, burger, 2, "100.00",
		paymentSpec{enums.PaymentMethodCash, "150.00"}, paymentSpec{enums.PaymentMethodCard, "50.00"})
	f.seedOrder(t, f.day.Add(12*time.Hour), enums.OrderStatusPaid, enums.OrderTypeTakeaway, uuid.New(), 1, "100.00",
		paymentSpec{enums.PaymentMethodCash, "100.00"})
	f.seedOrder(t, f.day.Add(13*time.Hour), enums.OrderStatusCancelled, enums.OrderTypeDineIn, uuid.New(), 1, "30.00")
	f.seedOrder(t, f.day.Add(14*time.Hour), enums.OrderStatusReady, enums.OrderTypeDineIn, uuid.New(), 1, "999.00")
	f.seedOrder(t, f.day.Add(-time.Hour), enums.OrderStatusPaid, enums.OrderTypeDineIn, uuid.New(), 1, "500.00",
		paymentSpec{enums.PaymentMethodCash, "500.00"})

	report := f.generate(t, "100.00", "340.00")

	assert.Equal(t, "Z-20250519", report.ReportNumber)
	assert.Equal(t, 2, report.TotalOrders)
	assert.Equal(t, "300.00", report.NetSales.StringFixed(2))
	assert.Equal(t, "30.00", report.TaxAmount.StringFixed(2))
	assert.Equal(t, "250.00", report.CashPayments.StringFixed(2))
	assert.Equal(t, "350.00", report.ExpectedCash.StringFixed(2))
	assert.Equal(t, "-10.00", report.CashDifference.StringFixed(2))
	assert.Equal(t, 1, report.CancelledOrders)
	assert.Equal(t, f.admin.ID, report.ClosedByID)
	require.NotEmpty(t, report.TopProducts)
	assert.Equal(t, burger, report.TopProducts[0].ProductID)

	stored, err := f.svc.Get(context.Background(), f.tenant.ID, report.ID)
	require.NoError(t, err)
	assert.Equal(t, "-10.00", stored.CashDifference.StringFixed(2))
	assert.Equal(t, 2, stored.PaymentMethods.Cash.Count)
	assert.Equal(t, 1, stored.OrderTypes.Takeaway.Count)
	assert.False(t, stored.IsFinalized)

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventZReportGenerated, events[0].EventType)
}

func TestGenerateRejectsDuplicateDate(t *testing.T) {
	f := newReportFixture(t)
	f.generate(t, "0", "0")

	_, err := f.svc.Generate(context.Background(), GenerateInput{
		TenantID:    f.tenant.ID,
		ActorUserID: f.admin.ID,
		ReportDate:  f.day.Add(15 * time.Hour),
		OpeningCash: decPtr("0"),
		CountedCash: decPtr("0"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateReport))

	var count int64
	require.NoError(t, f.conn.Model(&models.ZReport{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGenerateValidatesInput(t *testing.T) {
	f := newReportFixture(t)
	cases := map[string]GenerateInput{
		"missing actor":    {TenantID: f.tenant.ID, ReportDate: f.day},
		"missing date":     {TenantID: f.tenant.ID, ActorUserID: f.admin.ID},
		"negative opening": {TenantID: f.tenant.ID, ActorUserID: f.admin.ID, ReportDate: f.day, OpeningCash: decPtr("-1")},
		"three decimals":   {TenantID: f.tenant.ID, ActorUserID: f.admin.ID, ReportDate: f.day, CountedCash: decPtr("1.005")},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Generate(context.Background(), input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	_, err := f.svc.Generate(context.Background(), GenerateInput{TenantID: uuid.New(), ActorUserID: f.admin.ID, ReportDate: f.day})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCloseFinalizesOnce(t *testing.T) {
	f := newReportFixture(t)
	report := f.generate(t, "0", "0")

	closed, err := f.svc.Close(context.Background(), f.tenant.ID, report.ID)
	require.NoError(t, err)
	assert.True(t, closed.IsFinalized)
	require.NotNil(t, closed.FinalizedAt)

	_, err = f.svc.Close(context.Background(), f.tenant.ID, report.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyFinalized))

	_, err = f.svc.Close(context.Background(), uuid.New(), report.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListPaginatesNewestFirstWithinRange(t *testing.T) {
	f := newReportFixture(t)
	for i := 0; i < 5; i++ {
		_, err := f.svc.Generate(context.Background(), GenerateInput{
			TenantID:    f.tenant.ID,
			ActorUserID: f.admin.ID,
			ReportDate:  f.day.AddDate(0, 0, -i),
			OpeningCash: decPtr("0"),
			CountedCash: decPtr("0"),
		})
		require.NoError(t, err)
	}

	page, err := f.svc.List(context.Background(), f.tenant.ID, ListFilters{}, pagination.Params{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.Pages)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Z-20250519", page.Data[0].ReportNumber)
	assert.Equal(t, "Z-20250518", page.Data[1].ReportNumber)

	start := f.day.AddDate(0, 0, -3)
	end := f.day.AddDate(0, 0, -2)
	ranged, err := f.svc.List(context.Background(), f.tenant.ID, ListFilters{StartDate: &start, EndDate: &end}, pagination.Params{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ranged.Total)
	assert.Equal(t, pagination.DefaultLimit, ranged.Limit)

	_, err = f.svc.List(context.Background(), f.tenant.ID, ListFilters{StartDate: &end, EndDate: &start}, pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSendEmailFallsBackToTenantRecipients(t *testing.T) {
	f := newReportFixture(t)
	report := f.generate(t, "0", "0")

	result, err := f.svc.SendEmail(context.Background(), f.tenant.ID, report.ID, nil)
	require.NoError(t, err)
	assert.True(t, result.EmailSent)
	assert.Equal(t, []string{"owner@kose.example"}, result.Recipients)

	require.Len(t, f.mailer.messages, 1)
	msg := f.mailer.messages[0]
	assert.Equal(t, mailer.TemplateZReport, msg.Template)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "Z-20250519.pdf", msg.Attachments[0].Filename)
	require.NotEmpty(t, f.renderer.views)
	assert.Equal(t, "Mehmet", f.renderer.views[0].ClosedBy)

	stored, err := f.svc.Get(context.Background(), f.tenant.ID, report.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailSent)
	assert.NotNil(t, stored.EmailSentAt)
	assert.Nil(t, stored.EmailError)
}

func TestSendEmailExplicitRecipients(t *testing.T) {
	f := newReportFixture(t)
	report := f.generate(t, "0", "0")

	result, err := f.svc.SendEmail(context.Background(), f.tenant.ID, report.ID, []string{" acct@kose.example "})
	require.NoError(t, err)
	assert.Equal(t, []string{"acct@kose.example"}, result.Recipients)
}

func TestSendEmailRecordsDeliveryFailure(t *testing.T) {
	f := newReportFixture(t)
	report := f.generate(t, "0", "0")
	f.mailer.fail = "sendgrid status 500: boom"

	result, err := f.svc.SendEmail(context.Background(), f.tenant.ID, report.ID, nil)
	require.NoError(t, err)
	assert.False(t, result.EmailSent)
	assert.Equal(t, "sendgrid status 500: boom", result.EmailError)

	stored, err := f.svc.Get(context.Background(), f.tenant.ID, report.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailSent)
	require.NotNil(t, stored.EmailError)
	assert.True(t, stored.DeliveryAttempted())
	assert.True(t, stored.CashDifference.IsZero())
}

func TestSendEmailRenderFailureKeepsReport(t *testing.T) {
	f := newReportFixture(t)
	report := f.generate(t, "0", "0")
	f.renderer.pdfErr = errors.New("gotenberg unavailable")

	result, err := f.svc.SendEmail(context.Background(), f.tenant.ID, report.ID, nil)
	require.NoError(t, err)
	assert.False(t, result.EmailSent)
	assert.Contains(t, result.EmailError, "gotenberg unavailable")
	assert.Empty(t, f.mailer.messages)

	_, err = f.svc.Get(context.Background(), f.tenant.ID, report.ID)
	assert.NoError(t, err)
}

func TestDownloadFormats(t *testing.T) {
	f := newReportFixture(t)
	report := f.generate(t, "0", "0")

	pdf, err := f.svc.Download(context.Background(), f.tenant.ID, report.ID, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "Z-20250519.pdf", pdf.Filename)
	assert.Equal(t, contentTypePDF, pdf.ContentType)

	xlsx, err := f.svc.Download(context.Background(), f.tenant.ID, report.ID, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "Z-20250519.xlsx", xlsx.Filename)

	_, err = f.svc.Download(context.Background(), f.tenant.ID, report.ID, Format("csv"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
