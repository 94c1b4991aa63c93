package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notus-gateway/internal/client"
	"notus-gateway/internal/config"
)

func newRemote(t *testing.T, verifyURL string, timeout time.Duration) *RemoteVerifier {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Upstream: config.UpstreamConfig{IdleConnections: 4}}
	v, err := NewRemoteVerifier(client.NewUpstreamClient(cfg, logger, nil), verifyURL, timeout, logger)
	if err != nil {
		t.Fatalf("NewRemoteVerifier: %v", err)
	}
	return v
}

func TestRemoteVerifier_Verify_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id":5,"username":"kai","email":"kai@example.com"}`))
	}))
	defer srv.Close()

	v := newRemote(t, srv.URL+"/auth/verify", 2*time.Second)
	claims, err := v.Verify(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != 5 || claims.Username != "kai" || claims.Email != "kai@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestRemoteVerifier_Verify_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid token"}`, ErrTokenInvalid},
		{"forbidden", http.StatusForbidden, ``, ErrTokenInvalid},
		{"unavailable", http.StatusServiceUnavailable, ``, ErrAuthUnavailable},
		{"gateway timeout", http.StatusGatewayTimeout, ``, ErrAuthTimeout},
		{"server error", http.StatusInternalServerError, ``, ErrAuthFailed},
		{"ok without user", http.StatusOK, `{"username":"kai"}`, ErrTokenInvalid},
		{"ok with bad json", http.StatusOK, `{`, ErrAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			v := newRemote(t, srv.URL+"/auth/verify", 2*time.Second)
			_, err := v.Verify(context.Background(), "tok")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRemoteVerifier_Verify_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	v := newRemote(t, "http://"+addr+"/auth/verify", 2*time.Second)
	if _, err := v.Verify(context.Background(), "tok"); !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("Verify() error = %v, want ErrAuthUnavailable", err)
	}
}

func TestRemoteVerifier_Verify_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	v := newRemote(t, srv.URL+"/auth/verify", 100*time.Millisecond)
	if _, err := v.Verify(context.Background(), "tok"); !errors.Is(err, ErrAuthTimeout) {
		t.Errorf("Verify() error = %v, want ErrAuthTimeout", err)
	}
}

func TestNewVerifier_SelectsMode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := client.NewUpstreamClient(&config.Config{}, logger, nil)

	local, err := NewVerifier(&config.Config{Auth: config.AuthConfig{Mode: "local", Secret: testSecret, Algorithm: "HS256"}}, c, logger)
	if err != nil {
		t.Fatalf("NewVerifier(local) error = %v", err)
	}
	if _, ok := local.(*LocalVerifier); !ok {
		t.Errorf("NewVerifier(local) = %T, want *LocalVerifier", local)
	}

	remote, err := NewVerifier(&config.Config{Auth: config.AuthConfig{Mode: "remote", VerifyURL: "http://auth:8001/auth/verify"}}, c, logger)
	if err != nil {
		t.Fatalf("NewVerifier(remote) error = %v", err)
	}
	if _, ok := remote.(*RemoteVerifier); !ok {
		t.Errorf("NewVerifier(remote) = %T, want *RemoteVerifier", remote)
	}

	if _, err := NewVerifier(&config.Config{Auth: config.AuthConfig{Mode: "bogus"}}, c, logger); err == nil {
		t.Error("NewVerifier(bogus) expected error, got nil")
	}
}
