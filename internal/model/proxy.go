// Package model defines shared types for the gateway.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RouteTarget is a path prefix bound to an upstream service. Built once at
// startup and never mutated.
type RouteTarget struct {
	Name    string
	Prefix  string
	BaseURL *url.URL
	Timeout time.Duration
}

// ProxyRequest represents a client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Path          string
	RawPath       string // escaped form of Path
	RawQuery      string // forwarded verbatim
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
	Host          string
	Scheme        string
	RemoteIP      string
	RequestID     string
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
