package paytrwebhook

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
	"github.com/mtarikucar/kds-sub004/internal/subscriptions"
	"github.com/mtarikucar/kds-sub004/pkg/currency"
	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/mailer"
	"github.com/mtarikucar/kds-sub004/pkg/metrics"
	"github.com/mtarikucar/kds-sub004/pkg/outbox"
	"github.com/mtarikucar/kds-sub004/pkg/outbox/payloads"
	"github.com/mtarikucar/kds-sub004/pkg/paytr"
	pkgredis "github.com/mtarikucar/kds-sub004/pkg/redis"
)

const (
	provider = "paytr"

	callbackLockTTL  = 30 * time.Second
	callbackLockWait = 3 * time.Second
	notifyTimeout    = 10 * time.Second

	defaultFailureReason = "Payment was declined by the bank"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Verifier authenticates a callback.
type Verifier interface {
	VerifyCallback(cb paytr.Callback) bool
}

type invoiceIssuer interface {
	IssueInvoice(ctx context.Context, tx *gorm.DB, input billing.InvoiceInput) (*models.Invoice, error)
}

type tenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	FindAdmin(ctx context.Context, tenantID uuid.UUID) (*models.User, error)
	UpdateCurrentPlanWithTx(tx *gorm.DB, tenantID, planID uuid.UUID, at time.Time) error
}

type notifier interface {
	Send(ctx context.Context, msg mailer.Message) (bool, string)
}

type ServiceParams struct {
	BillingRepo       billing.Repository
	Invoices          invoiceIssuer
	TenantRepo        tenantRepository
	Verifier          Verifier
	Outbox            outboxPublisher
	TransactionRunner txRunner
	Locker            pkgredis.Locker
	LockKey           func(scope, id string) string
	// Mailer is optional; without it no payment emails are sent.
	Mailer  notifier
	Metrics *metrics.WebhookMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

// Service settles subscription payments from PayTR callbacks.
type Service struct {
	billingRepo billing.Repository
	invoices    invoiceIssuer
	tenants     tenantRepository
	verifier    Verifier
	outbox      outboxPublisher
	txRunner    txRunner
	locker      pkgredis.Locker
	lockKey     func(scope, id string) string
	mailer      notifier
	metrics     *metrics.WebhookMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// paymentNotice carries what the tenant admin is told once a settlement commits.
type paymentNotice struct {
	tenantID      uuid.UUID
	succeeded     bool
	planID        uuid.UUID
	amount        decimal.Decimal
	currency      string
	invoiceNumber string
	periodEnd     time.Time
	reason        string
}

// Result is the wire response plus the outcome label it was recorded under.
type Result struct {
	Response string
	Outcome  string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Invoices == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoice issuer required")
	}
	if params.TenantRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant repo required")
	}
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "callback verifier required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Locker != nil && params.LockKey == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "lock key builder required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		billingRepo: params.BillingRepo,
		invoices:    params.Invoices,
		tenants:     params.TenantRepo,
		verifier:    params.Verifier,
		outbox:      params.Outbox,
		txRunner:    params.TransactionRunner,
		locker:      params.Locker,
		lockKey:     params.LockKey,
		mailer:      params.Mailer,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// Process handles one callback. The response is always paytr.ResponseOK or
// paytr.ResponseFail; a rejected signature never touches the database.
// The signature is checked over the fields exactly as received.
func (s *Service) Process(ctx context.Context, cb paytr.Callback) Result {
	ctx = s.withFields(ctx, map[string]any{
		"merchant_order_id": strings.TrimSpace(cb.MerchantOID),
		"callback_status":   cb.Status,
	})

	if !s.verifier.VerifyCallback(cb) {
		s.warn(ctx, "paytr callback signature mismatch")
		return s.finish(paytr.ResponseFail, metrics.WebhookOutcomeFailSignature)
	}
	cb.MerchantOID = strings.TrimSpace(cb.MerchantOID)

	release, err := s.obtainLock(ctx, cb.MerchantOID)
	if err != nil {
		s.error(ctx, "paytr callback lock", err)
		return s.finish(paytr.ResponseFail, metrics.WebhookOutcomeError)
	}
	defer release()

	outcome := metrics.WebhookOutcomeOK
	var notice *paymentNotice
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		notice = nil
		repo := s.billingRepo.WithTx(tx)
		payment, err := repo.FindPaymentByMerchantOIDForUpdate(ctx, cb.MerchantOID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			outcome = metrics.WebhookOutcomeUnknownID
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription payment")
		}
		if payment.Status != enums.SubscriptionPaymentStatusPending {
			outcome = metrics.WebhookOutcomeReplay
			return nil
		}
		if cb.Succeeded() {
			notice, err = s.applySuccess(ctx, tx, repo, payment, cb)
		} else {
			notice, err = s.applyFailure(ctx, tx, repo, payment, cb)
		}
		return err
	})
	if err != nil {
		s.error(ctx, "paytr callback processing failed", err)
		return s.finish(paytr.ResponseFail, metrics.WebhookOutcomeError)
	}

	switch outcome {
	case metrics.WebhookOutcomeUnknownID:
		s.warn(ctx, "paytr callback for unknown merchant order id acknowledged without changes")
	case metrics.WebhookOutcomeReplay:
		s.info(ctx, "paytr callback replay acknowledged")
	default:
		s.info(ctx, "paytr callback processed")
	}
	if notice != nil {
		s.notify(ctx, *notice)
	}
	return s.finish(paytr.ResponseOK, outcome)
}

func (s *Service) applySuccess(ctx context.Context, tx *gorm.DB, repo billing.Repository, payment *models.SubscriptionPayment, cb paytr.Callback) (*paymentNotice, error) {
	amount, err := cb.Amount()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse total_amount")
	}
	if !amount.Equal(payment.Amount) {
		s.warn(s.withFields(ctx, map[string]any{
			"expected_amount": payment.Amount.StringFixed(2),
			"callback_amount": amount.StringFixed(2),
		}), "paytr callback amount differs from payment record")
	}

	now := s.now().UTC()
	payment.Status = enums.SubscriptionPaymentStatusSucceeded
	payment.PaidAt = &now
	payment.FailureCode = nil
	payment.FailureMessage = nil
	payment.UpdatedAt = now
	if err := repo.UpdatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment succeeded")
	}

	sub, err := repo.FindSubscriptionForUpdate(ctx, payment.SubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	periodStart := sub.CurrentPeriodEnd
	periodEnd := subscriptions.NextPeriodEnd(periodStart, payment.BillingCycle)
	sub.PlanID = payment.PlanID
	sub.BillingCycle = payment.BillingCycle
	sub.Amount = payment.Amount
	sub.Currency = payment.Currency
	sub.Status = enums.SubscriptionStatusActive
	sub.IsTrialPeriod = false
	sub.CurrentPeriodStart = periodStart
	sub.CurrentPeriodEnd = periodEnd
	sub.RenewalReminderSentAt = nil
	sub.GracePeriodEndsAt = nil
	sub.UpdatedAt = now
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate subscription")
	}

	if err := s.tenants.UpdateCurrentPlanWithTx(tx, sub.TenantID, sub.PlanID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tenant plan")
	}

	paymentID := payment.ID
	invoice, err := s.invoices.IssueInvoice(ctx, tx, billing.InvoiceInput{
		SubscriptionID: sub.ID,
		PaymentID:      &paymentID,
		Amount:         amount,
		Currency:       payment.Currency,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		Description:    fmt.Sprintf("Subscription %s %s - %s", strings.ToLower(sub.BillingCycle.String()), periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02")),
	})
	if err != nil {
		return nil, err
	}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionActivated,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         &outbox.ActorRef{TenantID: sub.TenantID, Role: "system"},
		Data: payloads.SubscriptionActivatedEvent{
			SubscriptionID:   sub.ID,
			TenantID:         sub.TenantID,
			PlanID:           sub.PlanID,
			BillingCycle:     sub.BillingCycle,
			CurrentPeriodEnd: periodEnd,
			InvoiceID:        invoice.ID,
			MerchantOrderID:  payment.MerchantOrderID,
		},
	})
	if err != nil {
		return nil, err
	}
	return &paymentNotice{
		tenantID:      sub.TenantID,
		succeeded:     true,
		planID:        sub.PlanID,
		amount:        amount,
		currency:      payment.Currency,
		invoiceNumber: invoice.InvoiceNumber,
		periodEnd:     periodEnd,
	}, nil
}

func (s *Service) applyFailure(ctx context.Context, tx *gorm.DB, repo billing.Repository, payment *models.SubscriptionPayment, cb paytr.Callback) (*paymentNotice, error) {
	now := s.now().UTC()
	payment.Status = enums.SubscriptionPaymentStatusFailed
	payment.FailureCode = optionalString(cb.FailedReasonCode)
	payment.FailureMessage = optionalString(cb.FailedReasonMsg)
	payment.RetryCount++
	payment.UpdatedAt = now
	if err := repo.UpdatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
	}

	sub, err := repo.FindSubscriptionForUpdate(ctx, payment.SubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionPaymentFailed,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         &outbox.ActorRef{TenantID: sub.TenantID, Role: "system"},
		Data: payloads.SubscriptionPaymentFailedEvent{
			SubscriptionID:  sub.ID,
			TenantID:        sub.TenantID,
			MerchantOrderID: payment.MerchantOrderID,
			FailureCode:     strings.TrimSpace(cb.FailedReasonCode),
			FailureMessage:  strings.TrimSpace(cb.FailedReasonMsg),
			RetryCount:      payment.RetryCount,
		},
	})
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(cb.FailedReasonMsg)
	if reason == "" {
		reason = defaultFailureReason
	}
	return &paymentNotice{
		tenantID: sub.TenantID,
		planID:   payment.PlanID,
		amount:   payment.Amount,
		currency: payment.Currency,
		reason:   reason,
	}, nil
}

// notify emails the tenant admin about a committed settlement. Delivery
// problems are logged and never change the callback response.
func (s *Service) notify(ctx context.Context, notice paymentNotice) {
	if s.mailer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	tenant, err := s.tenants.FindByID(ctx, notice.tenantID)
	if err != nil {
		s.error(ctx, "load tenant for payment email", err)
		return
	}
	admin, err := s.tenants.FindAdmin(ctx, notice.tenantID)
	if err != nil {
		s.error(ctx, "load tenant admin for payment email", err)
		return
	}

	amount := currency.Symbol(notice.currency) + notice.amount.StringFixed(2)
	msg := mailer.Message{To: []string{admin.Email}}
	if notice.succeeded {
		planName := notice.planID.String()
		if plan, err := s.billingRepo.FindPlan(ctx, notice.planID); err == nil {
			planName = plan.DisplayName
		}
		msg.Subject = fmt.Sprintf("Payment received - %s", notice.invoiceNumber)
		msg.Template = mailer.TemplatePaymentSucceeded
		msg.Context = map[string]any{
			"tenantName":    tenant.Name,
			"amount":        amount,
			"planName":      planName,
			"invoiceNumber": notice.invoiceNumber,
			"periodEnd":     notice.periodEnd.Format("2006-01-02"),
		}
	} else {
		msg.Subject = "Payment failed"
		msg.Template = mailer.TemplatePaymentFailed
		msg.Context = map[string]any{
			"tenantName": tenant.Name,
			"amount":     amount,
			"reason":     notice.reason,
		}
	}

	if ok, reason := s.mailer.Send(ctx, msg); !ok {
		s.warn(s.withFields(ctx, map[string]any{"error": reason}), "payment email not delivered")
	}
}

func (s *Service) obtainLock(ctx context.Context, merchantOID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lock, err := s.locker.Obtain(ctx, s.lockKey(provider, merchantOID), callbackLockTTL, callbackLockWait)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.error(ctx, "release paytr callback lock", err)
		}
	}, nil
}

func (s *Service) finish(response, outcome string) Result {
	s.metrics.Observe(provider, outcome)
	return Result{Response: response, Outcome: outcome}
}

func (s *Service) withFields(ctx context.Context, fields map[string]any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func (s *Service) error(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
