package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/internal/billing"
	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/paytr"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type tenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	FindAdmin(ctx context.Context, tenantID uuid.UUID) (*models.User, error)
}

// LinkCreator opens a hosted payment page at the gateway.
type LinkCreator interface {
	CreatePaymentLink(ctx context.Context, req paytr.LinkRequest) (*paytr.Link, error)
}

// Service defines the subscription entitlement surface.
type Service interface {
	CreatePaymentIntent(ctx context.Context, input CreateIntentInput) (*PaymentIntent, error)
	Current(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	BillingRepo       billing.Repository
	TenantRepo        tenantRepository
	Links             LinkCreator
	TransactionRunner txRunner
	Logger            *logger.Logger
	Now               func() time.Time
}

// CreateIntentInput is a tenant's request to pay for a plan.
type CreateIntentInput struct {
	TenantID     uuid.UUID
	UserID       uuid.UUID
	UserEmail    string
	PlanID       uuid.UUID
	BillingCycle enums.BillingCycle
	ClientIP     string
}

// PaymentIntent is returned to the client to complete payment at the gateway.
type PaymentIntent struct {
	Provider        enums.PaymentProvider `json:"provider"`
	PaymentLink     string                `json:"paymentLink"`
	MerchantOrderID string                `json:"merchantOrderId"`
	Amount          decimal.Decimal       `json:"amount"`
	Currency        string                `json:"currency"`
}

type service struct {
	billingRepo billing.Repository
	tenants     tenantRepository
	links       LinkCreator
	txRunner    txRunner
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.TenantRepo == nil {
		return nil, fmt.Errorf("tenant repo required")
	}
	if params.Links == nil {
		return nil, fmt.Errorf("payment link creator required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		billingRepo: params.BillingRepo,
		tenants:     params.TenantRepo,
		links:       params.Links,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
		now:         now,
	}, nil
}

func (s *service) CreatePaymentIntent(ctx context.Context, input CreateIntentInput) (*PaymentIntent, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing")
	}
	if input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id required")
	}
	if !input.BillingCycle.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing cycle")
	}

	tenant, err := s.tenants.FindByID(ctx, input.TenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant")
	}
	plan, err := s.billingRepo.FindPlan(ctx, input.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if !plan.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan is not available")
	}
	amount := plan.MonthlyPrice
	if input.BillingCycle == enums.BillingCycleYearly {
		amount = plan.YearlyPrice
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan has no price for billing cycle")
	}

	var subscription *models.Subscription
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		existing, err := repo.FindReusableSubscription(ctx, tenant.ID)
		if err == nil {
			subscription = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		now := s.now().UTC()
		subscription = &models.Subscription{
			ID:                 uuid.New(),
			TenantID:           tenant.ID,
			PlanID:             plan.ID,
			Status:             enums.SubscriptionStatusPending,
			BillingCycle:       input.BillingCycle,
			PaymentProvider:    enums.PaymentProviderPayTR,
			Amount:             amount,
			Currency:           plan.Currency,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   now,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := repo.CreateSubscription(ctx, subscription); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	merchantOID := MerchantOrderID(subscription.ID, s.now())
	email := strings.TrimSpace(input.UserEmail)
	if admin, err := s.tenants.FindAdmin(ctx, tenant.ID); err == nil && admin.Email != "" {
		email = admin.Email
	}
	link, err := s.links.CreatePaymentLink(ctx, paytr.LinkRequest{
		MerchantOID: merchantOID,
		Email:       email,
		Amount:      amount,
		Description: planDescription(plan, input.BillingCycle),
		UserName:    tenant.Name,
		UserIP:      input.ClientIP,
	})
	if err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		now := s.now().UTC()
		linkURL := link.URL
		payment := &models.SubscriptionPayment{
			ID:              uuid.New(),
			SubscriptionID:  subscription.ID,
			MerchantOrderID: merchantOID,
			PlanID:          plan.ID,
			BillingCycle:    input.BillingCycle,
			PaymentProvider: enums.PaymentProviderPayTR,
			PaymentLink:     &linkURL,
			Amount:          amount,
			Currency:        plan.Currency,
			Status:          enums.SubscriptionPaymentStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"tenant_id":         tenant.ID.String(),
			"subscription_id":   subscription.ID.String(),
			"merchant_order_id": merchantOID,
		})
		s.logg.Info(logCtx, "subscription payment intent created")
	}

	return &PaymentIntent{
		Provider:        enums.PaymentProviderPayTR,
		PaymentLink:     link.URL,
		MerchantOrderID: merchantOID,
		Amount:          amount,
		Currency:        plan.Currency,
	}, nil
}

func (s *service) Current(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.billingRepo.FindReusableSubscription(ctx, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no current subscription")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return sub, nil
}

// MerchantOrderID correlates a gateway payment with its subscription.
func MerchantOrderID(subscriptionID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("SUB-%s-%d", subscriptionID, at.UnixMilli())
}

func planDescription(plan *models.SubscriptionPlan, cycle enums.BillingCycle) string {
	name := plan.DisplayName
	if name == "" {
		name = plan.Name
	}
	if cycle == enums.BillingCycleYearly {
		return name + " - Yıllık"
	}
	return name + " - Aylık"
}
