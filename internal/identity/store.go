// Package identity implements the user registry that issues gateway tokens.
package identity

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already registered")
)

// User is a registered account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Store persists users. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, username, email, passwordHash string) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	ByID(ctx context.Context, id int64) (*User, error)
	Close() error
}
