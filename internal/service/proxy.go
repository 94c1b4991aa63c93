// Package service implements the core request forwarding logic.
package service

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"notus-gateway/internal/auth"
	"notus-gateway/internal/client"
	"notus-gateway/internal/model"
	"notus-gateway/internal/route"
)

// Identity headers set by the gateway. Inbound copies are always discarded.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUsername = "X-Username"
	HeaderEmail    = "X-Email"
)

// hopByHopHeaders are connection-scoped and never relayed in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyService forwards requests to the upstream selected by the route table.
type ProxyService struct {
	client *client.UpstreamClient
	logger *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client: c,
		logger: logger.With("component", "proxy_service"),
	}
}

// Forward sends a ProxyRequest to the matched upstream and returns the response.
// The caller is responsible for closing the response body.
//
// claims may be nil for public paths; identity headers are then stripped but not set.
func (s *ProxyService) Forward(pr *model.ProxyRequest, m route.Match, claims *auth.Claims) (*model.ProxyResponse, error) {
	upstreamURL := s.buildUpstreamURL(m, pr.Path, pr.RawPath, pr.RawQuery)
	header := s.filterRequestHeaders(pr, claims)

	s.logger.Debug("forwarding request",
		"service", m.Target.Name,
		"method", pr.Method,
		"path", pr.Path,
	)

	resp, err := s.client.DoStream(pr.Ctx, m.Target, pr.Method, upstreamURL, header, pr.Body, pr.ContentLength)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", m.Target.Name, err)
	}

	resp.Header = s.filterResponseHeaders(resp.Header)
	return resp, nil
}

// buildUpstreamURL appends the part of the path after the route prefix to the
// upstream base URL. The query string is passed through untouched.
func (s *ProxyService) buildUpstreamURL(m route.Match, path, rawPath, rawQuery string) string {
	base := m.Target.BaseURL
	u := *base
	u.Path = strings.TrimSuffix(base.Path, "/") + m.Remainder
	u.RawPath = ""
	if rawPath != "" && rawPath != path {
		if rest, ok := strings.CutPrefix(rawPath, m.Target.Prefix); ok {
			u.RawPath = strings.TrimSuffix(base.EscapedPath(), "/") + rest
		}
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = rawQuery
	u.Fragment = ""
	return u.String()
}

func (s *ProxyService) filterRequestHeaders(pr *model.ProxyRequest, claims *auth.Claims) http.Header {
	dst := pr.Header.Clone()
	if dst == nil {
		dst = make(http.Header)
	}

	dst.Del("Host")
	removeHopByHop(dst)

	// Identity comes only from verified claims.
	dst.Del(HeaderUserID)
	dst.Del(HeaderUsername)
	dst.Del(HeaderEmail)
	if claims != nil {
		dst.Set(HeaderUserID, strconv.FormatInt(claims.UserID, 10))
		if claims.Username != "" {
			dst.Set(HeaderUsername, claims.Username)
		}
		if claims.Email != "" {
			dst.Set(HeaderEmail, claims.Email)
		}
	}

	if pr.RemoteIP != "" {
		if prior := dst.Values("X-Forwarded-For"); len(prior) > 0 {
			dst.Set("X-Forwarded-For", strings.Join(prior, ", ")+", "+pr.RemoteIP)
		} else {
			dst.Set("X-Forwarded-For", pr.RemoteIP)
		}
	}
	if pr.Host != "" {
		dst.Set("X-Forwarded-Host", pr.Host)
	}
	if pr.Scheme != "" {
		dst.Set("X-Forwarded-Proto", pr.Scheme)
	}
	if pr.RequestID != "" {
		dst.Set("X-Request-Id", pr.RequestID)
	}
	return dst
}

func (s *ProxyService) filterResponseHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		return make(http.Header)
	}
	removeHopByHop(dst)
	return dst
}

// removeHopByHop deletes the standard hop-by-hop headers and any header
// listed in Connection.
func removeHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// RemoteIP strips the port from a host:port address.
func RemoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
