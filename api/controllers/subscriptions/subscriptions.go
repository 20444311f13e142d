package subscriptions

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mtarikucar/kds-sub004/api/controllers/tenantcontext"
	"github.com/mtarikucar/kds-sub004/api/middleware"
	"github.com/mtarikucar/kds-sub004/api/responses"
	"github.com/mtarikucar/kds-sub004/api/validators"
	subsvc "github.com/mtarikucar/kds-sub004/internal/subscriptions"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
)

type createIntentRequest struct {
	PlanID       string `json:"planId" validate:"required,uuid"`
	BillingCycle string `json:"billingCycle" validate:"required,oneof=MONTHLY YEARLY"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
}

// CreateIntent opens a hosted payment link for a plan and stores the pending payment.
func CreateIntent(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload createIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		planID, err := uuid.Parse(payload.PlanID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid planId"))
			return
		}
		cycle, err := enums.ParseBillingCycle(payload.BillingCycle)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billingCycle"))
			return
		}

		intent, err := svc.CreatePaymentIntent(ctx, subsvc.CreateIntentInput{
			TenantID:     actor.TenantID,
			UserID:       actor.UserID,
			UserEmail:    payload.Email,
			PlanID:       planID,
			BillingCycle: cycle,
			ClientIP:     middleware.ClientIP(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

// Current returns the tenant's live subscription.
func Current(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		actor, err := tenantcontext.Resolve(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.Current(ctx, actor.TenantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}
