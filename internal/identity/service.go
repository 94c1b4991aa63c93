package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"notus-gateway/internal/auth"
)

// Service errors.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Registration is the input to Register. Email is optional. bcrypt also
// caps the password at 72 bytes, which multi-byte passwords can hit first.
type Registration struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Normalize trims surrounding whitespace from the username and email.
func (r *Registration) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        *User
}

// Service registers users and issues access tokens.
type Service struct {
	store  Store
	issuer *auth.Issuer
	logger   *slog.Logger
	validate *Validator
	cost     int

	// dummyHash is compared against when the username is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

// NewService creates a Service.
func NewService(store Store, issuer *auth.Issuer, logger *slog.Logger) (*Service, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("notus-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("identity: prepare dummy hash: %w", err)
	}
	return &Service{
		store:     store,
		issuer:    issuer,
		logger:    logger.With("component", "identity_service"),
		validate:  NewValidator(),
		cost:      bcrypt.DefaultCost,
		dummyHash: dummy,
	}, nil
}

// Register creates an account. Email is optional.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	in := Registration{Username: username, Email: email, Password: password}
	in.Normalize()
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, fmt.Errorf("%w: password must be at most 72 bytes", ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}

	u, err := s.store.Create(ctx, in.Username, in.Email, string(hash))
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login checks the password and returns a signed access token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.store.ByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.issuer.Issue(u.ID, u.Username, u.Email)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: token, ExpiresAt: exp, User: u}, nil
}

// Me returns the account for a verified user id.
func (s *Service) Me(ctx context.Context, id int64) (*User, error) {
	return s.store.ByID(ctx, id)
}
