package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"notus-gateway/internal/auth"
	"notus-gateway/internal/metrics"
)

// Authenticate returns an Echo middleware that verifies the bearer token on
// every request whose path is not in allow. Verified claims are attached to
// the request context for the forwarder. Paths with "." or ".." segments are
// rejected with 400 before the allow-list is consulted, so a public prefix
// cannot be used to reach a protected path.
//
// The metrics parameter is optional; pass nil to skip failure counting.
func Authenticate(v auth.Verifier, allow *auth.AllowList, m *metrics.Metrics, logger *slog.Logger) echo.MiddlewareFunc {
	logger = logger.With("component", "auth_middleware")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if hasDotSegment(req.URL.Path) {
				if m != nil {
					m.AuthFailures.WithLabelValues("bad_path").Inc()
				}
				logger.Debug("request rejected", "reason", "bad_path", "path", req.URL.Path)
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid path"})
			}
			if allow.Allows(req.URL.Path) {
				return next(c)
			}

			token, err := auth.ExtractBearer(req.Header.Get(echo.HeaderAuthorization))
			if err == nil {
				var claims *auth.Claims
				claims, err = v.Verify(req.Context(), token)
				if err == nil {
					c.SetRequest(req.WithContext(auth.WithClaims(req.Context(), claims)))
					return next(c)
				}
			}

			status, reason, msg := classifyAuthError(err)
			if m != nil {
				m.AuthFailures.WithLabelValues(reason).Inc()
			}
			if status >= http.StatusInternalServerError {
				logger.Error("token verification failed", "err", err, "path", req.URL.Path)
			} else {
				logger.Debug("request rejected", "reason", reason, "path", req.URL.Path)
			}

			if status == http.StatusUnauthorized {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
			}
			return c.JSON(status, map[string]string{"error": msg})
		}
	}
}

// classifyAuthError maps a verification error to a status code, a bounded
// metrics reason and a client-facing message.
func classifyAuthError(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, "missing", "authorization header missing"
	case errors.Is(err, auth.ErrMalformedHeader):
		return http.StatusUnauthorized, "malformed", "invalid authorization header"
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "expired", "token expired"
	case errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized, "invalid", "invalid token"
	case errors.Is(err, auth.ErrAuthUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "auth service unavailable"
	case errors.Is(err, auth.ErrAuthTimeout):
		return http.StatusGatewayTimeout, "timeout", "auth service timed out"
	default:
		return http.StatusInternalServerError, "error", "internal server error"
	}
}

// hasDotSegment reports whether the decoded path has a "." or ".." segment.
func hasDotSegment(path string) bool {
	for seg := range strings.SplitSeq(path, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
