// Package tenantcontext resolves the authenticated tenant and actor for controllers.
package tenantcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mtarikucar/kds-sub004/api/middleware"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
)

// Actor is the authenticated caller.
type Actor struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Role     string
}

// UserIDPtr returns the user id for optional actor fields.
func (a Actor) UserIDPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// Resolve extracts the tenant and user seeded by the auth middleware.
func Resolve(r *http.Request) (Actor, error) {
	ctx := r.Context()
	rawTenant := middleware.TenantIDFromContext(ctx)
	if rawTenant == "" {
		return Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context required")
	}
	tenantID, err := uuid.Parse(rawTenant)
	if err != nil {
		return Actor{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tenant id")
	}

	actor := Actor{TenantID: tenantID, Role: middleware.RoleFromContext(ctx)}
	if rawUser := middleware.UserIDFromContext(ctx); rawUser != "" {
		userID, err := uuid.Parse(rawUser)
		if err != nil {
			return Actor{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
		}
		actor.UserID = userID
	}
	return actor, nil
}
