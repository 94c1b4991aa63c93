package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"notus-gateway/internal/auth"
)

func TestCORS_PreflightBypassesAuthentication(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantOrigin string
	}{
		{"any origin", []string{"*"}, "https://app.example.com", "*"},
		{"listed origin", []string{"https://app.example.com"}, "https://app.example.com", "https://app.example.com"},
		{"unlisted origin", []string{"https://app.example.com"}, "https://evil.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &stubVerifier{err: auth.ErrTokenInvalid}
			var reached bool
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))

			e := echo.New()
			e.Use(CORS(tt.origins))
			e.Use(Authenticate(v, auth.NewAllowList(nil), nil, logger))
			e.Any("/*", func(c echo.Context) error {
				reached = true
				return c.NoContent(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodOptions, "/notes", http.NoBody)
			req.Header.Set(echo.HeaderOrigin, tt.origin)
			req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
			req.Header.Set(echo.HeaderAccessControlRequestHeaders, "Authorization, Content-Type")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
			}
			if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if reached || v.calls != 0 {
				t.Errorf("preflight reached handler=%v verifier calls=%d, want neither", reached, v.calls)
			}
		})
	}
}

func TestCORS_ActualRequestStillAuthenticated(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := echo.New()
	e.Use(CORS([]string{"*"}))
	e.Use(Authenticate(&stubVerifier{err: auth.ErrTokenInvalid}, auth.NewAllowList(nil), nil, logger))
	e.Any("/*", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/notes", http.NoBody)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q on the rejection", got, "*")
	}
}
