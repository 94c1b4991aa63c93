package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestValidator_Registration(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		in      Registration
		wantMsg string
	}{
		{"valid", Registration{Username: "ada", Email: "ada@example.com", Password: "secret1"}, ""},
		{"email optional", Registration{Username: "ada", Password: "secret1"}, ""},
		{"missing username", Registration{Password: "secret1"}, "username is required"},
		{"short username", Registration{Username: "al", Password: "secret1"}, "username must be at least 3 characters"},
		{"long username", Registration{Username: strings.Repeat("x", 51), Password: "secret1"}, "username must be at most 50 characters"},
		{"short password", Registration{Username: "ada", Password: "12345"}, "password must be at least 6 characters"},
		{"bad email", Registration{Username: "ada", Email: "ada@", Password: "secret1"}, "email must be a valid email address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.in)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Validate() error = %v, want ErrInvalidInput", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}
