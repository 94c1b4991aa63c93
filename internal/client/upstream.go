// Package client provides the pooled HTTP client used to reach backend services.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"notus-gateway/internal/config"
	"notus-gateway/internal/metrics"
	"notus-gateway/internal/model"
)

// Transport failure classes. Errors returned by Do wrap exactly one of these
// together with the underlying cause.
var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamTimeout     = errors.New("upstream timed out")
	ErrUpstreamFailed      = errors.New("upstream request failed")
)

// UpstreamClient sends requests to backend services.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling.
// Deadlines are applied per call from the route timeout, not on the http.Client.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// Bodies are relayed as opaque bytes; transparent gunzip would change them.
		DisableCompression: true,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			// Redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the named service and returns the raw response.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(service string, req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"service", service,
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		classified, kind := classify(err)
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(service, method).Observe(duration)
			c.metrics.UpstreamErrors.WithLabelValues(service, kind).Inc()
		}
		return nil, classified
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(service, method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(service, method, status).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream executes a request against target and returns the response body as a stream.
// The caller is responsible for closing the returned ReadCloser.
//
// The call is bounded by target.Timeout, which also covers reading the body.
// The provided context controls the lifetime of the upstream request: when it
// is canceled (e.g. client disconnects), the upstream request is also canceled.
func (c *UpstreamClient) DoStream(ctx context.Context, target model.RouteTarget, method, url string, header http.Header, body io.Reader, contentLength int64) (*model.ProxyResponse, error) {
	cancel := context.CancelFunc(func() {})
	if target.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, target.Timeout)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: build upstream request: %w", ErrUpstreamFailed, err)
	}
	req.Header = header
	if contentLength > 0 {
		req.ContentLength = contentLength
	}

	resp, err := c.Do(target.Name, req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the per-call deadline once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// classify maps a transport error onto one of the failure classes and
// returns a short label for metrics.
func classify(err error) (error, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err), "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err), "timeout"
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err), "unavailable"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err), "unavailable"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err), "unavailable"
	}

	return fmt.Errorf("%w: %w", ErrUpstreamFailed, err), "error"
}
