package paytrwebhook

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/internal/billing"
	"github.com/mtarikucar/kds-sub004/internal/tenants"
	"github.com/mtarikucar/kds-sub004/pkg/db/dbtest"
	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	"github.com/mtarikucar/kds-sub004/pkg/mailer"
	"github.com/mtarikucar/kds-sub004/pkg/metrics"
	"github.com/mtarikucar/kds-sub004/pkg/outbox"
	"github.com/mtarikucar/kds-sub004/pkg/outbox/payloads"
	"github.com/mtarikucar/kds-sub004/pkg/paytr"
	pkgredis "github.com/mtarikucar/kds-sub004/pkg/redis"
)

const (
	testKey  = "merchant-key"
	testSalt = "merchant-salt"
)

type keyVerifier struct{}

func (keyVerifier) VerifyCallback(cb paytr.Callback) bool {
	return paytr.VerifyCallback(testKey, testSalt, cb)
}

type callbackFixture struct {
	svc      *Service
	conn     *gorm.DB
	now      time.Time
	registry *prometheus.Registry
	tenant   *models.Tenant
	plan     *models.SubscriptionPlan
	sub      *models.Subscription
	payment  *models.SubscriptionPayment
	periodT  time.Time
}

func newCallbackFixture(t *testing.T, mutate func(*ServiceParams)) *callbackFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	periodT := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 5, 19, 14, 0, 0, 0, time.UTC)

	tenant := &models.Tenant{ID: uuid.New(), Name: "Lokanta", Status: enums.TenantStatusActive, Currency: "TRY", Timezone: "Europe/Istanbul", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, conn.Create(tenant).Error)
	admin := &models.User{ID: uuid.New(), TenantID: tenant.ID, Email: "owner@lokanta.example", Name: "Owner", Role: enums.UserRoleAdmin, CreatedAt: now}
	require.NoError(t, conn.Create(admin).Error)
	plan := &models.SubscriptionPlan{
		ID:           uuid.New(),
		Name:         "pro",
		DisplayName:  "Pro",
		MonthlyPrice: decimal.RequireFromString("299.99"),
		YearlyPrice:  decimal.RequireFromString("2999.00"),
		Currency:     "TRY",
		IsActive:     true,
		CreatedAt:    now,
	}
	require.NoError(t, conn.Create(plan).Error)
	sub := &models.Subscription{
		ID:                 uuid.New(),
		TenantID:           tenant.ID,
		PlanID:             plan.ID,
		Status:             enums.SubscriptionStatusPending,
		BillingCycle:       enums.BillingCycleMonthly,
		PaymentProvider:    enums.PaymentProviderPayTR,
		Amount:             plan.MonthlyPrice,
		Currency:           "TRY",
		CurrentPeriodStart: periodT.AddDate(0, -1, 0),
		CurrentPeriodEnd:   periodT,
		IsTrialPeriod:      true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, conn.Create(sub).Error)
	payment := &models.SubscriptionPayment{
		ID:              uuid.New(),
		SubscriptionID:  sub.ID,
		MerchantOrderID: "SUB-" + sub.ID.String() + "-1747663200000",
		PlanID:          plan.ID,
		BillingCycle:    enums.BillingCycleMonthly,
		PaymentProvider: enums.PaymentProviderPayTR,
		Amount:          plan.MonthlyPrice,
		Currency:        "TRY",
		Status:          enums.SubscriptionPaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, conn.Create(payment).Error)

	registry := prometheus.NewRegistry()
	billingRepo := billing.NewRepository(conn)
	invoices, err := billing.NewService(billing.ServiceParams{Repo: billingRepo, Now: func() time.Time { return now }})
	require.NoError(t, err)

	params := ServiceParams{
		BillingRepo:       billingRepo,
		Invoices:          invoices,
		TenantRepo:        tenants.NewRepository(conn),
		Verifier:          keyVerifier{},
		Outbox:            outbox.NewService(outbox.NewRepository(conn), nil),
		TransactionRunner: client,
		Metrics:           metrics.NewWebhookMetrics(registry),
		Now:               func() time.Time { return now },
	}
	if mutate != nil {
		mutate(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	return &callbackFixture{svc: svc, conn: conn, now: now, registry: registry, tenant: tenant, plan: plan, sub: sub, payment: payment, periodT: periodT}
}

func signedCallback(oid, status, total string) paytr.Callback {
	return paytr.Callback{
		MerchantOID: oid,
		Status:      status,
		TotalAmount: total,
		Hash:        paytr.CallbackHash(testKey, testSalt, oid, status, total),
	}
}

func (f *callbackFixture) reload(t *testing.T) (*models.Subscription, *models.SubscriptionPayment, *models.Tenant) {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, f.conn.First(&sub, "id = ?", f.sub.ID).Error)
	var payment models.SubscriptionPayment
	require.NoError(t, f.conn.First(&payment, "id = ?", f.payment.ID).Error)
	var tenant models.Tenant
	require.NoError(t, f.conn.First(&tenant, "id = ?", f.tenant.ID).Error)
	return &sub, &payment, &tenant
}

func (f *callbackFixture) invoices(t *testing.T) []models.Invoice {
	t.Helper()
	var rows []models.Invoice
	require.NoError(t, f.conn.Where("subscription_id = ?", f.sub.ID).Find(&rows).Error)
	return rows
}

func (f *callbackFixture) outboxRows(t *testing.T) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Order("created_at ASC").Find(&rows).Error)
	return rows
}

func (f *callbackFixture) outcomeCount(t *testing.T, outcome string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestProcessSuccessActivatesSubscription(t *testing.T) {
	f := newCallbackFixture(t, nil)

	res := f.svc.Process(context.Background(), signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999"))
	assert.Equal(t, paytr.ResponseOK, res.Response)
	assert.Equal(t, metrics.WebhookOutcomeOK, res.Outcome)

	sub, payment, tenant := f.reload(t)
	assert.Equal(t, enums.SubscriptionPaymentStatusSucceeded, payment.Status)
	require.NotNil(t, payment.PaidAt)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.False(t, sub.IsTrialPeriod)
	assert.True(t, sub.CurrentPeriodStart.Equal(f.periodT))
	assert.True(t, sub.CurrentPeriodEnd.Equal(f.periodT.AddDate(0, 1, 0)))
	assert.Nil(t, sub.GracePeriodEndsAt)
	require.NotNil(t, tenant.CurrentPlanID)
	assert.Equal(t, f.plan.ID, *tenant.CurrentPlanID)

	invoices := f.invoices(t)
	require.Len(t, invoices, 1)
	assert.True(t, invoices[0].Total.Equal(decimal.RequireFromString("299.99")))
	assert.Equal(t, enums.InvoiceStatusPaid, invoices[0].Status)
	assert.Equal(t, "INV-202505-0001", invoices[0].InvoiceNumber)
	require.NotNil(t, invoices[0].PaymentID)
	assert.Equal(t, f.payment.ID, *invoices[0].PaymentID)

	rows := f.outboxRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventSubscriptionActivated, rows[0].EventType)
	var envelope struct {
		Data payloads.SubscriptionActivatedEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, invoices[0].ID, envelope.Data.InvoiceID)

	assert.Equal(t, float64(1), f.outcomeCount(t, metrics.WebhookOutcomeOK))
}

func TestProcessReplayIsIdempotent(t *testing.T) {
	f := newCallbackFixture(t, nil)
	cb := signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999")

	first := f.svc.Process(context.Background(), cb)
	require.Equal(t, paytr.ResponseOK, first.Response)
	afterFirst, _, _ := f.reload(t)

	second := f.svc.Process(context.Background(), cb)
	assert.Equal(t, paytr.ResponseOK, second.Response)
	assert.Equal(t, metrics.WebhookOutcomeReplay, second.Outcome)

	afterSecond, _, _ := f.reload(t)
	assert.True(t, afterFirst.CurrentPeriodEnd.Equal(afterSecond.CurrentPeriodEnd))
	assert.Len(t, f.invoices(t), 1)
	assert.Len(t, f.outboxRows(t), 1)
	assert.Equal(t, float64(1), f.outcomeCount(t, metrics.WebhookOutcomeReplay))
}

func TestProcessRejectsBadSignatureWithoutChanges(t *testing.T) {
	f := newCallbackFixture(t, nil)
	cb := signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999")
	cb.TotalAmount = "1"

	res := f.svc.Process(context.Background(), cb)
	assert.Equal(t, paytr.ResponseFail, res.Response)
	assert.Equal(t, metrics.WebhookOutcomeFailSignature, res.Outcome)

	sub, payment, tenant := f.reload(t)
	assert.Equal(t, enums.SubscriptionPaymentStatusPending, payment.Status)
	assert.Equal(t, enums.SubscriptionStatusPending, sub.Status)
	assert.Nil(t, tenant.CurrentPlanID)
	assert.Empty(t, f.invoices(t))
	assert.Empty(t, f.outboxRows(t))
}

func TestProcessAcceptsHTMLEncodedHash(t *testing.T) {
	f := newCallbackFixture(t, nil)
	cb := signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999")
	cb.Hash = strings.ReplaceAll(cb.Hash, "=", "&#61;")

	res := f.svc.Process(context.Background(), cb)
	assert.Equal(t, paytr.ResponseOK, res.Response)
}

func TestProcessUnknownMerchantOrderAcknowledged(t *testing.T) {
	f := newCallbackFixture(t, nil)

	res := f.svc.Process(context.Background(), signedCallback("SUB-missing-1", paytr.StatusSuccess, "100"))
	assert.Equal(t, paytr.ResponseOK, res.Response)
	assert.Equal(t, metrics.WebhookOutcomeUnknownID, res.Outcome)
	assert.Empty(t, f.outboxRows(t))
}

func TestProcessFailureRecordsReason(t *testing.T) {
	f := newCallbackFixture(t, nil)
	cb := signedCallback(f.payment.MerchantOrderID, paytr.StatusFailed, "29999")
	cb.FailedReasonCode = "6"
	cb.FailedReasonMsg = "Yetersiz bakiye"

	res := f.svc.Process(context.Background(), cb)
	assert.Equal(t, paytr.ResponseOK, res.Response)

	sub, payment, _ := f.reload(t)
	assert.Equal(t, enums.SubscriptionPaymentStatusFailed, payment.Status)
	require.NotNil(t, payment.FailureCode)
	assert.Equal(t, "6", *payment.FailureCode)
	require.NotNil(t, payment.FailureMessage)
	assert.Equal(t, "Yetersiz bakiye", *payment.FailureMessage)
	assert.Equal(t, 1, payment.RetryCount)
	assert.Equal(t, enums.SubscriptionStatusPending, sub.Status)
	assert.Empty(t, f.invoices(t))

	rows := f.outboxRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventSubscriptionPaymentFailed, rows[0].EventType)
}

func TestProcessWithDistributedLockReleasesKey(t *testing.T) {
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	keyFn := func(scope, id string) string { return "kds:test:lock:" + scope + ":" + id }

	f := newCallbackFixture(t, func(p *ServiceParams) {
		p.Locker = pkgredis.NewLocker(raw)
		p.LockKey = keyFn
	})

	res := f.svc.Process(context.Background(), signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999"))
	assert.Equal(t, paytr.ResponseOK, res.Response)
	assert.False(t, mr.Exists(keyFn("paytr", f.payment.MerchantOrderID)))
}

type busyLocker struct{}

func (busyLocker) Obtain(context.Context, string, time.Duration, time.Duration) (pkgredis.Lock, error) {
	return nil, pkgredis.ErrLockNotObtained
}

func TestProcessBusyLockFails(t *testing.T) {
	f := newCallbackFixture(t, func(p *ServiceParams) {
		p.Locker = busyLocker{}
		p.LockKey = func(scope, id string) string { return scope + ":" + id }
	})

	res := f.svc.Process(context.Background(), signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999"))
	assert.Equal(t, paytr.ResponseFail, res.Response)
	assert.Equal(t, metrics.WebhookOutcomeError, res.Outcome)

	_, payment, _ := f.reload(t)
	assert.Equal(t, enums.SubscriptionPaymentStatusPending, payment.Status)
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

func (f *callbackFixture) addPendingPayment(t *testing.T, oid string, plan *models.SubscriptionPlan, cycle enums.BillingCycle, amount string) *models.SubscriptionPayment {
	t.Helper()
	payment := &models.SubscriptionPayment{
		ID:              uuid.New(),
		SubscriptionID:  f.sub.ID,
		MerchantOrderID: oid,
		PlanID:          plan.ID,
		BillingCycle:    cycle,
		PaymentProvider: enums.PaymentProviderPayTR,
		Amount:          decimal.RequireFromString(amount),
		Currency:        "TRY",
		Status:          enums.SubscriptionPaymentStatusPending,
		CreatedAt:       f.now,
		UpdatedAt:       f.now,
	}
	require.NoError(t, f.conn.Create(payment).Error)
	return payment
}

func TestProcessSuccessGrantsWhatThePaymentBought(t *testing.T) {
	f := newCallbackFixture(t, nil)
	enterprise := &models.SubscriptionPlan{
		ID:           uuid.New(),
		Name:         "enterprise",
		DisplayName:  "Enterprise",
		MonthlyPrice: decimal.RequireFromString("999.00"),
		YearlyPrice:  decimal.RequireFromString("9990.00"),
		Currency:     "TRY",
		IsActive:     true,
		CreatedAt:    f.now,
	}
	require.NoError(t, f.conn.Create(enterprise).Error)
	yearlyOID := "SUB-" + f.sub.ID.String() + "-1747663300000"
	f.addPendingPayment(t, yearlyOID, enterprise, enums.BillingCycleYearly, "9990.00")

	res := f.svc.Process(context.Background(), signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999"))
	require.Equal(t, paytr.ResponseOK, res.Response)

	sub, _, tenant := f.reload(t)
	assert.Equal(t, f.plan.ID, sub.PlanID)
	assert.Equal(t, enums.BillingCycleMonthly, sub.BillingCycle)
	assert.True(t, sub.Amount.Equal(decimal.RequireFromString("299.99")))
	assert.True(t, sub.CurrentPeriodEnd.Equal(f.periodT.AddDate(0, 1, 0)))
	require.NotNil(t, tenant.CurrentPlanID)
	assert.Equal(t, f.plan.ID, *tenant.CurrentPlanID)

	res = f.svc.Process(context.Background(), signedCallback(yearlyOID, paytr.StatusSuccess, "999000"))
	require.Equal(t, paytr.ResponseOK, res.Response)

	sub, _, tenant = f.reload(t)
	assert.Equal(t, enterprise.ID, sub.PlanID)
	assert.Equal(t, enums.BillingCycleYearly, sub.BillingCycle)
	assert.True(t, sub.Amount.Equal(decimal.RequireFromString("9990.00")))
	assert.True(t, sub.CurrentPeriodStart.Equal(f.periodT.AddDate(0, 1, 0)))
	assert.True(t, sub.CurrentPeriodEnd.Equal(f.periodT.AddDate(1, 1, 0)))
	assert.Equal(t, enterprise.ID, *tenant.CurrentPlanID)
	assert.Len(t, f.invoices(t), 2)
}

func TestProcessConcurrentDeliveriesSettleOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	f := newCallbackFixture(t, func(p *ServiceParams) {
		p.Locker = pkgredis.NewLocker(raw)
		p.LockKey = func(scope, id string) string { return "kds:test:lock:" + scope + ":" + id }
	})
	cb := signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999")

	const deliveries = 8
	responses := make([]string, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = f.svc.Process(context.Background(), cb).Response
		}(i)
	}
	wg.Wait()

	for _, response := range responses {
		assert.Contains(t, []string{paytr.ResponseOK, paytr.ResponseFail}, response)
	}
	assert.Contains(t, responses, paytr.ResponseOK)

	sub, payment, _ := f.reload(t)
	assert.Equal(t, enums.SubscriptionPaymentStatusSucceeded, payment.Status)
	assert.True(t, sub.CurrentPeriodEnd.Equal(f.periodT.AddDate(0, 1, 0)))
	assert.Len(t, f.invoices(t), 1)
	assert.Len(t, f.outboxRows(t), 1)
	assert.Equal(t, float64(1), f.outcomeCount(t, metrics.WebhookOutcomeOK))
}

func TestProcessVerifiesMerchantOIDAsReceived(t *testing.T) {
	f := newCallbackFixture(t, nil)
	raw := " " + f.payment.MerchantOrderID + "\n"

	res := f.svc.Process(context.Background(), signedCallback(raw, paytr.StatusSuccess, "29999"))
	assert.Equal(t, paytr.ResponseOK, res.Response)
	assert.Equal(t, metrics.WebhookOutcomeOK, res.Outcome)

	_, payment, _ := f.reload(t)
	assert.Equal(t, enums.SubscriptionPaymentStatusSucceeded, payment.Status)

	tampered := signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999")
	tampered.MerchantOID = " " + tampered.MerchantOID
	res = f.svc.Process(context.Background(), tampered)
	assert.Equal(t, paytr.ResponseFail, res.Response)
	assert.Equal(t, metrics.WebhookOutcomeFailSignature, res.Outcome)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	ok   bool
}

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	if !m.ok {
		return false, "sendgrid status 500: boom"
	}
	return true, ""
}

func TestProcessSuccessEmailsTenantAdmin(t *testing.T) {
	mail := &recordingMailer{ok: true}
	f := newCallbackFixture(t, func(p *ServiceParams) { p.Mailer = mail })

	res := f.svc.Process(context.Background(), signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999"))
	require.Equal(t, paytr.ResponseOK, res.Response)

	require.Len(t, mail.sent, 1)
	msg := mail.sent[0]
	assert.Equal(t, []string{"owner@lokanta.example"}, msg.To)
	assert.Equal(t, mailer.TemplatePaymentSucceeded, msg.Template)
	assert.Equal(t, "Payment received - INV-202505-0001", msg.Subject)
	assert.Equal(t, "Lokanta", msg.Context["tenantName"])
	assert.Equal(t, "Pro", msg.Context["planName"])
	assert.Equal(t, "INV-202505-0001", msg.Context["invoiceNumber"])
	assert.Equal(t, "2025-06-20", msg.Context["periodEnd"])
	assert.Contains(t, msg.Context["amount"], "299.99")

	replay := f.svc.Process(context.Background(), signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999"))
	require.Equal(t, metrics.WebhookOutcomeReplay, replay.Outcome)
	assert.Len(t, mail.sent, 1)
}

func TestProcessFailureEmailsTenantAdminWithReason(t *testing.T) {
	mail := &recordingMailer{}
	f := newCallbackFixture(t, func(p *ServiceParams) { p.Mailer = mail })
	cb := signedCallback(f.payment.MerchantOrderID, paytr.StatusFailed, "29999")
	cb.FailedReasonMsg = "Yetersiz bakiye"

	res := f.svc.Process(context.Background(), cb)
	assert.Equal(t, paytr.ResponseOK, res.Response)

	require.Len(t, mail.sent, 1)
	assert.Equal(t, mailer.TemplatePaymentFailed, mail.sent[0].Template)
	assert.Equal(t, []string{"owner@lokanta.example"}, mail.sent[0].To)
	assert.Equal(t, "Yetersiz bakiye", mail.sent[0].Context["reason"])

	_, payment, _ := f.reload(t)
	assert.Equal(t, enums.SubscriptionPaymentStatusFailed, payment.Status)
}

func TestProcessBadSignatureSendsNoEmail(t *testing.T) {
	mail := &recordingMailer{ok: true}
	f := newCallbackFixture(t, func(p *ServiceParams) { p.Mailer = mail })
	cb := signedCallback(f.payment.MerchantOrderID, paytr.StatusSuccess, "29999")
	cb.Hash = "forged"

	res := f.svc.Process(context.Background(), cb)
	assert.Equal(t, paytr.ResponseFail, res.Response)
	assert.Empty(t, mail.sent)
}
