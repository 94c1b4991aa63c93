package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"notus-gateway/internal/metrics"
)

// StatusClientClosedRequest labels requests whose client went away before a
// response was written.
const StatusClientClosedRequest = 499

// MetricsMiddleware records request count, latency and in-flight gauge for
// every inbound request, including the ones rejected by later middleware.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()
			start := time.Now()

			err := next(c)

			req := c.Request()
			m.ObserveRequest(req.Method, responseStatus(c, err), req.URL.Path, time.Since(start))
			return err
		}
	}
}

// responseStatus resolves the status the client sees. An *echo.HTTPError is
// written by the central error handler after the chain returns.
func responseStatus(c echo.Context, err error) int {
	if c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if errors.Is(c.Request().Context().Err(), context.Canceled) {
		return StatusClientClosedRequest
	}
	return c.Response().Status
}
