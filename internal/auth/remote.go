package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"notus-gateway/internal/client"
	"notus-gateway/internal/model"
)

// maxVerifyBody bounds the identity payload read from the auth service.
const maxVerifyBody = 64 << 10

// RemoteVerifier delegates verification to the auth service's verify endpoint.
type RemoteVerifier struct {
	client    *client.UpstreamClient
	verifyURL string
	target    model.RouteTarget
	logger    *slog.Logger
}

// NewRemoteVerifier creates a verifier that calls verifyURL with the bearer
// token, bounded by timeout.
func NewRemoteVerifier(c *client.UpstreamClient, verifyURL string, timeout time.Duration, logger *slog.Logger) (*RemoteVerifier, error) {
	u, err := url.Parse(verifyURL)
	if err != nil {
		return nil, fmt.Errorf("auth: parse verify url: %w", err)
	}
	return &RemoteVerifier{
		client:    c,
		verifyURL: verifyURL,
		target:    model.RouteTarget{Name: "auth_verify", BaseURL: u, Timeout: timeout},
		logger:    logger.With("component", "remote_verifier"),
	}, nil
}

// Verify asks the auth service whether token is valid.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Accept", "application/json")

	resp, err := v.client.DoStream(ctx, v.target, http.MethodGet, v.verifyURL, header, http.NoBody, 0)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrUpstreamTimeout):
			return nil, fmt.Errorf("%w: %w", ErrAuthTimeout, err)
		case errors.Is(err, client.ErrUpstreamUnavailable):
			return nil, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: rejected by auth service", ErrTokenInvalid)
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway:
		return nil, fmt.Errorf("%w: auth service returned %d", ErrAuthUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: auth service returned %d", ErrAuthTimeout, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: auth service returned %d", ErrAuthFailed, resp.StatusCode)
	}

	var claims Claims
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVerifyBody)).Decode(&claims); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrAuthTimeout, err)
		}
		return nil, fmt.Errorf("%w: decode verify response: %w", ErrAuthFailed, err)
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: user_id missing from verify response", ErrTokenInvalid)
	}

	v.logger.Debug("token verified remotely", "user_id", claims.UserID)
	return &claims, nil
}
