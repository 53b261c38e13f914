package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietshopapp/vietshop/internal/services"
)

func newTestTokenService(t *testing.T) *services.TokenService {
	t.Helper()
	tokens, err := services.NewTokenService("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("failed to build token service: %v", err)
	}
	return tokens
}

func issueToken(t *testing.T, tokens *services.TokenService, role services.Role) string {
	t.Helper()
	token, err := tokens.Issue(uuid.New(), role)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenService(t)
	h := &Handlers{tokenService: tokens}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok || principal == nil {
			t.Fatal("expected principal in context")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{
			name:       "valid token",
			authHeader: "Bearer " + issueToken(t, tokens, services.RoleCustomer),
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "missing header",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme",
			authHeader: "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			authHeader: "Bearer not-a-token",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rec := httptest.NewRecorder()

			h.Authenticate(next).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenService(t)
	h := &Handlers{tokenService: tokens}

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		role       services.Role
		required   services.Role
		wantStatus int
	}{
		{name: "shipper may access shipper routes", role: services.RoleShipper, required: services.RoleShipper, wantStatus: http.StatusNoContent},
		{name: "admin passes every gate", role: services.RoleAdmin, required: services.RoleShipper, wantStatus: http.StatusNoContent},
		{name: "customer blocked from shipper routes", role: services.RoleCustomer, required: services.RoleShipper, wantStatus: http.StatusForbidden},
		{name: "shipper blocked from admin routes", role: services.RoleShipper, required: services.RoleAdmin, wantStatus: http.StatusForbidden},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/shipper/deliveries", nil)
			req.Header.Set("Authorization", "Bearer "+issueToken(t, tokens, tc.role))
			rec := httptest.NewRecorder()

			h.Authenticate(h.RequireRole(tc.required)(next)).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestRequireRole_WithoutPrincipal(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	rec := httptest.NewRecorder()

	h.RequireRole(services.RoleAdmin)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}
