package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"clinicdesk.org/internal/auth"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"case insensitive scheme", "bearer abc", "abc", false},
		{"empty", "", "", true},
		{"wrong scheme", "Basic dXNlcjpwdw==", "", true},
		{"scheme only", "Bearer ", "", true},
		{"padded", "  Bearer abc  ", "abc", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractBearerToken(tc.header)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("token = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsPublicPath(t *testing.T) {
	public := []string{"/v1/slots", "/v1/auth/login", "/v1/auth/register", "/healthz", "/readyz", "/metrics", "/v1/info", "/"}
	for _, p := range public {
		if !isPublicPath(p) {
			t.Fatalf("expected %s to be public", p)
		}
	}
	private := []string{"/v1/bookings", "/v1/bookings/all", "/v1/reports/summary", "/v1/stream", "/v1/slotsX"}
	for _, p := range private {
		if isPublicPath(p) {
			t.Fatalf("expected %s to require auth", p)
		}
	}
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	h := RequireRole("admin")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/bookings/all", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestRequireRoleWrongRole(t *testing.T) {
	h := RequireRole("admin")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/bookings/all", nil)
	ctx := auth.ContextWithIdentity(req.Context(), auth.Identity{ID: "u1", Role: "patient"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireRoleMatches(t *testing.T) {
	h := RequireRole("admin")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/bookings/all", nil)
	ctx := auth.ContextWithIdentity(req.Context(), auth.Identity{ID: "u1", Role: "admin"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestWithAuthPassesOptionsThrough(t *testing.T) {
	api := &API{}
	h := api.withAuth(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/bookings", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected preflight passthrough, got %d", rec.Code)
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	api := &API{}
	h := api.withAuth(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/bookings", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWithAuthAttachesIdentity(t *testing.T) {
	t.Setenv("CLINIC_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	token, err := auth.GenerateToken(auth.Identity{
		ID:    "u1",
		Email: "alice@example.com",
		Name:  "Alice",
		Role:  "patient",
	}, auth.DefaultTTL)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	api := &API{}
	var got auth.Identity
	h := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.ID != "u1" || got.Role != "patient" {
		t.Fatalf("unexpected identity: %+v", got)
	}
}
