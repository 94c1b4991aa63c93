package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"notus-gateway/internal/auth"
	"notus-gateway/internal/config"
	"notus-gateway/internal/identity"
	"notus-gateway/internal/logging"
	"notus-gateway/internal/middleware"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("notus-auth"),
		kong.Description("Identity service issuing Notus access tokens."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			loadConfig,
			newLogger,
			newStore,
			newIssuer,
			newVerifier,
			identity.NewService,
			identity.NewHandler,
			newEcho,
		),
		fx.Invoke(identity.RegisterRoutes, startServer),
	).Run()
}

// loadConfig reads the shared configuration. --port sets the identity port here.
func loadConfig(cli *config.CLI) (*config.Config, error) {
	cfg, err := config.Load(cli)
	if err != nil {
		return nil, err
	}
	if cli.Port != 0 {
		cfg.Identity.Port = cli.Port
	}
	if cfg.Auth.Secret == "" {
		return nil, errors.New("config: auth.secret is required to issue tokens")
	}
	return cfg, nil
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*slog.Logger, error) {
	logger, cleanup, err := logging.New(&cfg.Log, os.Stdout)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(cleanup))
	return logger, nil
}

func newStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (identity.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := identity.OpenSQLite(ctx, cfg.Identity.DatabasePath)
	if err != nil {
		return nil, err
	}
	logger.Info("identity store opened", "path", cfg.Identity.DatabasePath)

	lc.Append(fx.StopHook(func() error {
		logger.Info("closing identity store")
		return store.Close()
	}))
	return store, nil
}

func newIssuer(cfg *config.Config) (*auth.Issuer, error) {
	return auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.Algorithm, cfg.Identity.TokenTTL(), cfg.Identity.Issuer)
}

func newVerifier(cfg *config.Config) (auth.Verifier, error) {
	v, err := auth.NewLocalVerifier(cfg.Auth.Secret, cfg.Auth.Algorithm)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func newEcho(cfg *config.Config, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = identity.NewValidator()

	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	return e
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.IdentityAddr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting identity service", "addr", addr, "version", version)
			go func() {
				if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
