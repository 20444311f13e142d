package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mtarikucar/kds-sub004/api/responses"
	pkgAuth "github.com/mtarikucar/kds-sub004/pkg/auth"
	"github.com/mtarikucar/kds-sub004/pkg/config"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the tenant,
// user and role it carries.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := withClaims(r.Context(), claims)
			if logg != nil {
				ctx = logg.WithTenantID(ctx, claims.TenantID.String())
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}

func withClaims(ctx context.Context, claims *pkgAuth.AccessTokenClaims) context.Context {
	ctx = WithTenantID(ctx, claims.TenantID.String())
	ctx = WithUserID(ctx, claims.UserID.String())
	return WithRole(ctx, string(claims.Role))
}
