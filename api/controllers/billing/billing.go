package billing

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/mtarikucar/kds-sub004/api/controllers/tenantcontext"
	"github.com/mtarikucar/kds-sub004/api/responses"
	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
)

// HistoryService exposes the tenant's billing records.
type HistoryService interface {
	ListInvoices(ctx context.Context, tenantID uuid.UUID) ([]models.Invoice, error)
	ListPayments(ctx context.Context, tenantID uuid.UUID) ([]models.SubscriptionPayment, error)
}

func Invoices(svc HistoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		invoices, err := svc.ListInvoices(ctx, actor.TenantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoices)
	}
}

func Payments(svc HistoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payments, err := svc.ListPayments(ctx, actor.TenantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, payments)
	}
}
