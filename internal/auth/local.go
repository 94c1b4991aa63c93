package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// LocalVerifier decodes HMAC-signed tokens in process with a single static key.
type LocalVerifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewLocalVerifier creates a verifier that accepts only tokens signed with
// secret using alg (HS256, HS384 or HS512).
func NewLocalVerifier(secret, alg string) (*LocalVerifier, error) {
	method, err := hmacMethod(secret, alg)
	if err != nil {
		return nil, err
	}
	return &LocalVerifier{
		key: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Verify checks the signature and expiry of token and returns its claims.
func (v *LocalVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: user_id claim missing", ErrTokenInvalid)
	}
	return claims, nil
}

// hmacMethod resolves alg to an HMAC signing method.
func hmacMethod(secret, alg string) (*jwt.SigningMethodHMAC, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is empty")
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", alg)
	}
	return method, nil
}
