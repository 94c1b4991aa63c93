package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"notus-gateway/internal/client"
	"notus-gateway/internal/config"
	"notus-gateway/internal/metrics"
	"notus-gateway/internal/model"
	"notus-gateway/internal/route"
	"notus-gateway/internal/service"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	tests := []struct {
		name           string
		metricsEnabled bool
		method         string
		path           string
		wantStatus     int
	}{
		{"GET /", false, http.MethodGet, "/", http.StatusOK},
		{"GET /health", false, http.MethodGet, "/health", http.StatusOK},
		{"GET /gateway/status", false, http.MethodGet, "/gateway/status", http.StatusOK},
		{"GET /notes", false, http.MethodGet, "/notes?limit=5", http.StatusOK},
		{"PATCH /notes/1", false, http.MethodPatch, "/notes/1", http.StatusOK},
		{"DELETE /notes/1", false, http.MethodDelete, "/notes/1", http.StatusOK},
		{"GET /unknown", false, http.MethodGet, "/unknown", http.StatusNotFound},
		{"metrics disabled", false, http.MethodGet, "/metrics", http.StatusNotFound},
		{"metrics enabled", true, http.MethodGet, "/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Upstream: config.UpstreamConfig{IdleConnections: 10},
				Metrics:  config.MetricsConfig{Enabled: tt.metricsEnabled, Path: "/metrics"},
			}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			table := route.NewFromTargets(
				[]model.RouteTarget{targetFor(t, "notes", "/notes", upstream.URL+"/notes", 5*time.Second)},
			)
			m := metrics.New("/metrics", table.Prefixes()...)
			svc := service.NewProxyService(client.NewUpstreamClient(cfg, logger, m), logger)

			e := echo.New()
			RegisterRoutes(e, cfg, NewProxyHandler(table, svc, logger), NewHealthHandler(table, "test"), m)

			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MetricsExposition(t *testing.T) {
	cfg := &config.Config{Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	table := route.NewFromTargets(nil)
	m := metrics.New("/metrics")
	m.AuthFailures.WithLabelValues("missing").Inc()

	e := echo.New()
	RegisterRoutes(e, cfg, NewProxyHandler(table, nil, logger), NewHealthHandler(table, "test"), m)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `notus_gateway_auth_failures_total{reason="missing"} 1`) {
		t.Error("exposition missing auth failure counter")
	}
}
