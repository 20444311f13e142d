package subscriptions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/internal/billing"
	"github.com/mtarikucar/kds-sub004/internal/tenants"
	"github.com/mtarikucar/kds-sub004/pkg/db/dbtest"
	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/paytr"
)

type stubLinks struct {
	requests []paytr.LinkRequest
	err      error
}

func (s *stubLinks) CreatePaymentLink(_ context.Context, req paytr.LinkRequest) (*paytr.Link, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &paytr.Link{URL: "https://www.paytr.com/odeme/guvenli/tok-" + req.MerchantOID, Token: "tok"}, nil
}

type intentFixture struct {
	svc    Service
	conn   *gorm.DB
	links  *stubLinks
	tenant *models.Tenant
	plan   *models.SubscriptionPlan
	now    time.Time
}

func newIntentFixture(t *testing.T) *intentFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	now := time.Date(2025, 4, 10, 8, 30, 0, 0, time.UTC)

	tenant := &models.Tenant{ID: uuid.New(), Name: "Çınaraltı", Status: enums.TenantStatusActive, Currency: "TRY", Timezone: "Europe/Istanbul", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, conn.Create(tenant).Error)
	admin := &models.User{ID: uuid.New(), TenantID: tenant.ID, Email: "admin@cinar.example", Name: "Admin", Role: enums.UserRoleAdmin, CreatedAt: now}
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

	links := &stubLinks{}
	current := now
	clock := func() time.Time {
		at := current
		current = current.Add(time.Second)
		return at
	}
	svc, err := NewService(ServiceParams{
		BillingRepo:       billing.NewRepository(conn),
		TenantRepo:        tenants.NewRepository(conn),
		Links:             links,
		TransactionRunner: client,
		Now:               clock,
	})
	require.NoError(t, err)
	return &intentFixture{svc: svc, conn: conn, links: links, tenant: tenant, plan: plan, now: now}
}

func TestCreatePaymentIntentCreatesPendingSubscription(t *testing.T) {
	f := newIntentFixture(t)

	intent, err := f.svc.CreatePaymentIntent(context.Background(), CreateIntentInput{
		TenantID:     f.tenant.ID,
		UserEmail:    "waiter@cinar.example",
		PlanID:       f.plan.ID,
		BillingCycle: enums.BillingCycleMonthly,
		ClientIP:     "10.0.0.1",
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentProviderPayTR, intent.Provider)
	assert.True(t, intent.Amount.Equal(decimal.RequireFromString("299.99")))
	assert.Equal(t, "TRY", intent.Currency)
	assert.Contains(t, intent.PaymentLink, intent.MerchantOrderID)

	var sub models.Subscription
	require.NoError(t, f.conn.Where("tenant_id = ?", f.tenant.ID).First(&sub).Error)
	assert.Equal(t, enums.SubscriptionStatusPending, sub.Status)
	assert.Regexp(t, fmt.Sprintf(`^SUB-%s-\d{13}$`, sub.ID), intent.MerchantOrderID)

	var payment models.SubscriptionPayment
	require.NoError(t, f.conn.Where("merchant_order_id = ?", intent.MerchantOrderID).First(&payment).Error)
	assert.Equal(t, enums.SubscriptionPaymentStatusPending, payment.Status)
	assert.Equal(t, sub.ID, payment.SubscriptionID)
	require.NotNil(t, payment.PaymentLink)

	require.Len(t, f.links.requests, 1)
	assert.Equal(t, "admin@cinar.example", f.links.requests[0].Email)
	assert.Equal(t, "Pro - Aylık", f.links.requests[0].Description)
}

func TestCreatePaymentIntentReusesOpenSubscription(t *testing.T) {
	f := newIntentFixture(t)
	input := CreateIntentInput{TenantID: f.tenant.ID, PlanID: f.plan.ID, BillingCycle: enums.BillingCycleMonthly}

	first, err := f.svc.CreatePaymentIntent(context.Background(), input)
	require.NoError(t, err)

	input.BillingCycle = enums.BillingCycleYearly
	second, err := f.svc.CreatePaymentIntent(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, second.Amount.Equal(decimal.RequireFromString("2999.00")))

	var subs []models.Subscription
	require.NoError(t, f.conn.Where("tenant_id = ?", f.tenant.ID).Find(&subs).Error)
	require.Len(t, subs, 1)
	assert.Equal(t, enums.BillingCycleMonthly, subs[0].BillingCycle)
	assert.True(t, subs[0].Amount.Equal(decimal.RequireFromString("299.99")))

	var payments []models.SubscriptionPayment
	require.NoError(t, f.conn.Where("subscription_id = ?", subs[0].ID).Order("created_at ASC").Find(&payments).Error)
	require.Len(t, payments, 2)
	assert.Equal(t, first.MerchantOrderID, payments[0].MerchantOrderID)
	assert.Equal(t, enums.BillingCycleMonthly, payments[0].BillingCycle)
	assert.Equal(t, second.MerchantOrderID, payments[1].MerchantOrderID)
	assert.Equal(t, enums.BillingCycleYearly, payments[1].BillingCycle)
	assert.Equal(t, f.plan.ID, payments[1].PlanID)
	assert.NotEqual(t, first.MerchantOrderID, second.MerchantOrderID)
}

func TestCreatePaymentIntentLeavesActiveSubscriptionUntouched(t *testing.T) {
	f := newIntentFixture(t)
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
	periodEnd := f.now.AddDate(0, 0, 20)
	active := &models.Subscription{
		ID:                 uuid.New(),
		TenantID:           f.tenant.ID,
		PlanID:             f.plan.ID,
		Status:             enums.SubscriptionStatusActive,
		BillingCycle:       enums.BillingCycleMonthly,
		PaymentProvider:    enums.PaymentProviderPayTR,
		Amount:             f.plan.MonthlyPrice,
		Currency:           "TRY",
		CurrentPeriodStart: periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd:   periodEnd,
		CreatedAt:          f.now,
		UpdatedAt:          f.now,
	}
	require.NoError(t, f.conn.Create(active).Error)

	intent, err := f.svc.CreatePaymentIntent(context.Background(), CreateIntentInput{TenantID: f.tenant.ID, PlanID: enterprise.ID, BillingCycle: enums.BillingCycleYearly})
	require.NoError(t, err)

	var sub models.Subscription
	require.NoError(t, f.conn.First(&sub, "id = ?", active.ID).Error)
	assert.Equal(t, f.plan.ID, sub.PlanID)
	assert.Equal(t, enums.BillingCycleMonthly, sub.BillingCycle)
	assert.True(t, sub.Amount.Equal(decimal.RequireFromString("299.99")))
	assert.True(t, sub.CurrentPeriodEnd.Equal(periodEnd))

	var payment models.SubscriptionPayment
	require.NoError(t, f.conn.Where("merchant_order_id = ?", intent.MerchantOrderID).First(&payment).Error)
	assert.Equal(t, active.ID, payment.SubscriptionID)
	assert.Equal(t, enterprise.ID, payment.PlanID)
	assert.Equal(t, enums.BillingCycleYearly, payment.BillingCycle)
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("9990.00")))
}

func TestCreatePaymentIntentGatewayFailureStoresNoPayment(t *testing.T) {
	f := newIntentFixture(t)
	f.links.err = pkgerrors.New(pkgerrors.CodeDependency, "paytr rejected link request")

	_, err := f.svc.CreatePaymentIntent(context.Background(), CreateIntentInput{TenantID: f.tenant.ID, PlanID: f.plan.ID, BillingCycle: enums.BillingCycleMonthly})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var count int64
	require.NoError(t, f.conn.Model(&models.SubscriptionPayment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreatePaymentIntentValidation(t *testing.T) {
	f := newIntentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePaymentIntent(ctx, CreateIntentInput{TenantID: f.tenant.ID, PlanID: f.plan.ID, BillingCycle: "WEEKLY"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreatePaymentIntent(ctx, CreateIntentInput{TenantID: f.tenant.ID, PlanID: uuid.New(), BillingCycle: enums.BillingCycleMonthly})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreatePaymentIntent(ctx, CreateIntentInput{TenantID: uuid.New(), PlanID: f.plan.ID, BillingCycle: enums.BillingCycleMonthly})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	assert.Empty(t, f.links.requests)
}

func TestCurrentSubscription(t *testing.T) {
	f := newIntentFixture(t)
	_, err := f.svc.Current(context.Background(), f.tenant.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.CreatePaymentIntent(context.Background(), CreateIntentInput{TenantID: f.tenant.ID, PlanID: f.plan.ID, BillingCycle: enums.BillingCycleMonthly})
	require.NoError(t, err)

	sub, err := f.svc.Current(context.Background(), f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusPending, sub.Status)
}

func TestNextPeriodEnd(t *testing.T) {
	end := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC), NextPeriodEnd(end, enums.BillingCycleMonthly))
	assert.Equal(t, time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC), NextPeriodEnd(end, enums.BillingCycleYearly))
	assert.Equal(t, time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC), NextPeriodEnd(time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC), enums.BillingCycleMonthly))
	assert.Equal(t, time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC), NextPeriodEnd(time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC), enums.BillingCycleMonthly))
	assert.Equal(t, time.Date(2025, 4, 30, 9, 0, 0, 0, time.UTC), NextPeriodEnd(time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC), enums.BillingCycleMonthly))
	assert.Equal(t, time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC), NextPeriodEnd(time.Date(2025, 12, 31, 9, 0, 0, 0, time.UTC), enums.BillingCycleMonthly))
	assert.Equal(t, time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC), NextPeriodEnd(time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC), enums.BillingCycleYearly))
	assert.True(t, IsEntitled(enums.SubscriptionStatusTrialing))
	assert.False(t, IsEntitled(enums.SubscriptionStatusPastDue))
}
