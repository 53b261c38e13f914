package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/vietshopapp/vietshop/internal/services"
)

type principalContextKey struct{}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (*services.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(*services.Principal)
	return principal, ok
}

func withPrincipal(ctx context.Context, principal *services.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// Authenticate resolves the bearer token into a principal. Requests without a
// valid token are rejected before reaching any handler behind it.
func (h *Handlers) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw := bearerToken(r)
		if raw == "" {
			h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		principal, err := h.tokenService.Verify(raw)
		if err != nil {
			h.loggerFromContext(ctx).Warn("rejected invalid token", "error", err)
			h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}

		next.ServeHTTP(w, r.WithContext(withPrincipal(ctx, principal)))
	})
}

// RequireRole gates a subtree on the principal's role. Admin passes every
// gate.
func (h *Handlers) RequireRole(roles ...services.Role) func(http.Handler) http.Handler {
	allowed := make(map[services.Role]struct{}, len(roles)+1)
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	allowed[services.RoleAdmin] = struct{}{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, ok := PrincipalFromContext(ctx)
			if !ok {
				h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
				return
			}
			if _, ok := allowed[principal.Role]; !ok {
				h.writeJSON(ctx, w, http.StatusForbidden, errorResponse{Error: "insufficient role"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
