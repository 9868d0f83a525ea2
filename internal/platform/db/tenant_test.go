package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTenantContext(target string, header string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set(TenantHeader, header)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestExtractTenantID_FromHeader(t *testing.T) {
	c, _ := newTenantContext("/", "clinic_abc")

	tid, err := extractTenantID(c, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tid != "clinic_abc" {
		t.Errorf("expected clinic_abc, got %s", tid)
	}
}

func TestExtractTenantID_FromQuery(t *testing.T) {
	c, _ := newTenantContext("/?tenant_id=clinic_xyz", "")

	tid, _ := extractTenantID(c, "default")
	if tid != "clinic_xyz" {
		t.Errorf("expected clinic_xyz, got %s", tid)
	}
}

func TestExtractTenantID_HeaderPriorityOverQuery(t *testing.T) {
	c, _ := newTenantContext("/?tenant_id=query_tenant", "header_tenant")

	tid, _ := extractTenantID(c, "default")
	if tid != "header_tenant" {
		t.Errorf("expected header_tenant, got %s", tid)
	}
}

func TestExtractTenantID_FromJWT(t *testing.T) {
	c, _ := newTenantContext("/", "")
	c.Set("jwt_tenant_id", "jwt_tenant")

	tid, err := extractTenantID(c, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tid != "jwt_tenant" {
		t.Errorf("expected jwt_tenant, got %s", tid)
	}
}

func TestExtractTenantID_JWTMatchingHeader(t *testing.T) {
	c, _ := newTenantContext("/", "jwt_tenant")
	c.Set("jwt_tenant_id", "jwt_tenant")

	if _, err := extractTenantID(c, "default"); err != nil {
		t.Fatalf("matching header should be accepted: %v", err)
	}
}

func TestExtractTenantID_CrossTenantRefused(t *testing.T) {
	c, _ := newTenantContext("/", "other_tenant")
	c.Set("jwt_tenant_id", "jwt_tenant")

	_, err := extractTenantID(c, "default")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestExtractTenantID_Default(t *testing.T) {
	c, _ := newTenantContext("/", "")

	tid, _ := extractTenantID(c, "default")
	if tid != "default" {
		t.Errorf("expected default, got %s", tid)
	}
}

func TestTenantMiddleware_SetsContext(t *testing.T) {
	c, rec := newTenantContext("/", "clinic_1")

	var seen string
	h := TenantMiddleware("default")(func(c echo.Context) error {
		seen = TenantFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "clinic_1" {
		t.Errorf("expected clinic_1 on request context, got %q", seen)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestTenantMiddleware_RejectsInvalid(t *testing.T) {
	c, _ := newTenantContext("/", "'; DROP TABLE")

	h := TenantMiddleware("default")(func(c echo.Context) error {
		t.Fatal("handler must not run")
		return nil
	})
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestValidTenantID(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"abc", true},
		{"tenant_1", true},
		{"3f1c2a9e-0d1b-4c55-9a55-0b7d2b1d6f10", true},
		{"a.b", false},
		{"a b", false},
		{"a/b", false},
		{"", false},
		{"tenant@1", false},
	}

	for _, tt := range tests {
		if got := ValidTenantID(tt.input); got != tt.valid {
			t.Errorf("ValidTenantID(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestTenantFromContext(t *testing.T) {
	ctx := WithTenant(context.Background(), "test_tenant")
	if tid := TenantFromContext(ctx); tid != "test_tenant" {
		t.Errorf("expected test_tenant, got %s", tid)
	}

	if empty := TenantFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string, got %s", empty)
	}

	wrong := context.WithValue(context.Background(), TenantIDKey, 12345)
	if tid := TenantFromContext(wrong); tid != "" {
		t.Errorf("expected empty string for wrong type, got %q", tid)
	}
}
