package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func serveWithHeaders(t *testing.T, cfg SecurityHeadersConfig, path string, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), rec)
	return rec, SecurityHeaders(cfg)(handler)(c)
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestSecurityHeaders_API(t *testing.T) {
	rec, err := serveWithHeaders(t, SecurityHeadersConfig{HSTS: true, DocsPrefixes: []string{"/api/docs"}}, "/api/v1/appointments", okHandler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for header, want := range map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Referrer-Policy":           "no-referrer",
		"Content-Security-Policy":   apiCSP,
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Cache-Control":             "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("header %s: got %q, want %q", header, got, want)
		}
	}
}

func TestSecurityHeaders_NoHSTSInDevelopment(t *testing.T) {
	rec, _ := serveWithHeaders(t, SecurityHeadersConfig{}, "/health", okHandler)
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent when disabled")
	}
}

func TestSecurityHeaders_DocsMayLoadSwaggerUI(t *testing.T) {
	rec, _ := serveWithHeaders(t, SecurityHeadersConfig{DocsPrefixes: []string{"/api/docs"}}, "/api/docs", okHandler)
	if got := rec.Header().Get("Content-Security-Policy"); got != docsCSP {
		t.Errorf("docs CSP = %q", got)
	}
}

func TestSecurityHeaders_SetOnErrors(t *testing.T) {
	rec, err := serveWithHeaders(t, SecurityHeadersConfig{}, "/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})
	if he, isHTTP := err.(*echo.HTTPError); !isHTTP || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 to propagate, got %v", err)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on error responses")
	}
}
