package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"notus-gateway/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

// Handler serves the identity HTTP API.
type Handler struct {
	service  *Service
	verifier auth.Verifier
	logger   *slog.Logger
}

// NewHandler creates a Handler. verifier validates tokens for /verify and /me.
func NewHandler(svc *Service, verifier auth.Verifier, logger *slog.Logger) *Handler {
	return &Handler{
		service:  svc,
		verifier: verifier,
		logger:   logger.With("component", "identity_handler"),
	}
}

// RegisterRoutes wires the identity endpoints. The same API is served under
// /auth and /users.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)

	for _, prefix := range []string{"/auth", "/users"} {
		g := e.Group(prefix)
		g.POST("/register", h.Register)
		g.POST("/login", h.Login)
		g.GET("/verify", h.Verify)
		g.GET("/me", h.Me)
	}
}

// Register creates an account. The Echo instance must have a Validator.
func (h *Handler) Register(c echo.Context) error {
	var req Registration
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	req.Normalize()
	if err := c.Validate(&req); err != nil {
		return h.mapError(c, err)
	}

	u, err := h.service.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"message": "user created",
		"user":    toUserResponse(u),
	})
}

// Login exchanges credentials for an access token.
func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess, err := h.service.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"access_token": sess.AccessToken,
		"token_type":   "bearer",
		"expires_in":   int64(time.Until(sess.ExpiresAt).Seconds()),
		"user":         toUserResponse(sess.User),
	})
}

// Verify validates the bearer token and returns its identity claims.
func (h *Handler) Verify(c echo.Context) error {
	claims, err := h.authenticate(c)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user_id":  claims.UserID,
		"username": claims.Username,
		"email":    claims.Email,
	})
}

// Me returns the account behind the bearer token.
func (h *Handler) Me(c echo.Context) error {
	claims, err := h.authenticate(c)
	if err != nil {
		return h.mapError(c, err)
	}
	u, err := h.service.Me(c.Request().Context(), claims.UserID)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// Health returns a simple response for liveness probes.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "auth-service",
	})
}

// Root identifies the service.
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Notus auth service is running",
		"service": "auth-service",
	})
}

func (h *Handler) authenticate(c echo.Context) (*auth.Claims, error) {
	token, err := auth.ExtractBearer(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return nil, err
	}
	return h.verifier.Verify(c.Request().Context(), token)
}

func (h *Handler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrUsernameTaken):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "username already registered"})
	case errors.Is(err, ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid username or password"})
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrMalformedHeader):
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
	case errors.Is(err, auth.ErrTokenExpired):
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "token expired"})
	case errors.Is(err, auth.ErrTokenInvalid):
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	case errors.Is(err, ErrUserNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	default:
		h.logger.Error("identity request failed", "err", err, "path", c.Request().URL.Path)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
