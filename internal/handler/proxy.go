package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"notus-gateway/internal/auth"
	"notus-gateway/internal/client"
	"notus-gateway/internal/model"
	"notus-gateway/internal/route"
	"notus-gateway/internal/service"
)

// secretParamPattern matches credential query values in URLs embedded in error messages.
var secretParamPattern = regexp.MustCompile(`(?i)((?:access_token|token|password)=)[^&\s"]+`)

// ProxyHandler forwards requests to the upstream service selected by the route table.
type ProxyHandler struct {
	routes  *route.Table
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(routes *route.Table, svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		routes:  routes,
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to the matched upstream and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	m, ok := h.routes.Match(req.URL.Path)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "no route for path",
		})
	}

	claims, _ := auth.FromContext(req.Context())

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          req.URL.Path,
		RawPath:       req.URL.RawPath,
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
		Host:          req.Host,
		Scheme:        c.Scheme(),
		RemoteIP:      service.RemoteIP(req.RemoteAddr),
		RequestID:     c.Response().Header().Get(echo.HeaderXRequestID),
	}

	resp, err := h.service.Forward(pr, m, claims)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent; a failed copy leaves the client with a
	// truncated body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", req.URL.Path,
			"service", m.Target.Name,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)

	switch {
	case errors.Is(err, client.ErrUpstreamUnavailable):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "service unavailable",
		})
	case errors.Is(err, client.ErrUpstreamTimeout):
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

// sanitizeError redacts credentials from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	return secretParamPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
