package auth

import (
	"fmt"
	"log/slog"

	"notus-gateway/internal/client"
	"notus-gateway/internal/config"
)

// NewVerifier returns the single verifier selected by auth.mode.
func NewVerifier(cfg *config.Config, c *client.UpstreamClient, logger *slog.Logger) (Verifier, error) {
	switch cfg.Auth.Mode {
	case "local":
		v, err := NewLocalVerifier(cfg.Auth.Secret, cfg.Auth.Algorithm)
		if err != nil {
			return nil, err
		}
		logger.Info("token verification: local", "algorithm", cfg.Auth.Algorithm)
		return v, nil
	case "remote":
		v, err := NewRemoteVerifier(c, cfg.Auth.VerifyURL, cfg.Auth.VerifyTimeout(), logger)
		if err != nil {
			return nil, err
		}
		logger.Info("token verification: remote", "verify_url", cfg.Auth.VerifyURL)
		return v, nil
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", cfg.Auth.Mode)
	}
}
