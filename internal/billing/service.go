package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/pkg/db"
	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
)

const (
	invoiceNumberAttempts = 3
	invoiceSavepoint      = "invoice_number"
)

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo Repository
	Now  func() time.Time
}

// Service issues invoices and exposes billing history.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, now: now}, nil
}

// InvoiceInput describes a settled billing period.
type InvoiceInput struct {
	SubscriptionID uuid.UUID
	PaymentID      *uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Description    string
}

// IssueInvoice appends an invoice inside tx. Invoices tied to a payment are
// created PAID, the rest OPEN.
func (s *Service) IssueInvoice(ctx context.Context, tx *gorm.DB, input InvoiceInput) (*models.Invoice, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.SubscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice amount cannot be negative")
	}

	repo := s.repo.WithTx(tx)
	now := s.now().UTC()
	invoice := &models.Invoice{
		SubscriptionID: input.SubscriptionID,
		PaymentID:      input.PaymentID,
		Status:         enums.InvoiceStatusOpen,
		Subtotal:       input.Amount,
		Tax:            decimal.Zero,
		Total:          input.Amount,
		Currency:       input.Currency,
		PeriodStart:    input.PeriodStart.UTC(),
		PeriodEnd:      input.PeriodEnd.UTC(),
		Description:    input.Description,
		CreatedAt:      now,
	}
	if input.PaymentID != nil {
		invoice.Status = enums.InvoiceStatusPaid
		invoice.PaidAt = &now
	}
	if invoice.Description == "" {
		invoice.Description = fmt.Sprintf("Subscription invoice for %s - %s",
			invoice.PeriodStart.Format("2006-01-02"), invoice.PeriodEnd.Format("2006-01-02"))
	}

	prefix := InvoicePrefix(now)
	for attempt := 0; attempt < invoiceNumberAttempts; attempt++ {
		count, err := repo.CountInvoicesByPrefix(ctx, prefix)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count invoices")
		}
		invoice.ID = uuid.New()
		invoice.InvoiceNumber = FormatInvoiceNumber(now, count+1+int64(attempt))
		if err := tx.SavePoint(invoiceSavepoint).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invoice savepoint")
		}
		err = repo.CreateInvoice(ctx, invoice)
		if err == nil {
			return invoice, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
		}
		if err := tx.RollbackTo(invoiceSavepoint).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rollback invoice savepoint")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate invoice number")
}

// ListInvoices returns the tenant's invoices, newest first.
func (s *Service) ListInvoices(ctx context.Context, tenantID uuid.UUID) ([]models.Invoice, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	invoices, err := s.repo.ListInvoicesByTenant(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	return invoices, nil
}

// ListPayments returns the tenant's latest subscription payments.
func (s *Service) ListPayments(ctx context.Context, tenantID uuid.UUID) ([]models.SubscriptionPayment, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	payments, err := s.repo.ListPaymentsByTenant(ctx, tenantID, 50)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscription payments")
	}
	return payments, nil
}

// InvoicePrefix is the month bucket invoice numbers are counted in.
func InvoicePrefix(at time.Time) string {
	return "INV-" + at.Format("200601") + "-"
}

// FormatInvoiceNumber renders INV-YYYYMM-#### for the given sequence.
func FormatInvoiceNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("%s%04d", InvoicePrefix(at), seq)
}
