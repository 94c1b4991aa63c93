package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"notus-gateway/internal/route"
)

// Version is a string type for dependency injection of the build version.
type Version string

// routeInfo describes one route table entry in status responses.
type routeInfo struct {
	Name     string  `json:"name"`
	Prefix   string  `json:"prefix"`
	Upstream string  `json:"upstream"`
	Timeout  float64 `json:"timeout_seconds"`
}

// HealthHandler serves the gateway's own endpoints.
type HealthHandler struct {
	routes  *route.Table
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(routes *route.Table, v Version) *HealthHandler {
	return &HealthHandler{routes: routes, version: v}
}

// Health returns a simple response for liveness probes.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "api-gateway",
	})
}

// Root describes the gateway and the path prefixes it serves.
func (h *HealthHandler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Notus API Gateway",
		"status":  "running",
		"version": string(h.version),
		"routes":  h.routes.Prefixes(),
	})
}

// Status returns the version and the full route table.
func (h *HealthHandler) Status(c echo.Context) error {
	targets := h.routes.Targets()
	routes := make([]routeInfo, 0, len(targets))
	for _, t := range targets {
		routes = append(routes, routeInfo{
			Name:     t.Name,
			Prefix:   t.Prefix,
			Upstream: t.BaseURL.String(),
			Timeout:  t.Timeout.Seconds(),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": string(h.version),
		"routes":  routes,
	})
}
