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
	"notus-gateway/internal/client"
	"notus-gateway/internal/config"
	"notus-gateway/internal/handler"
	"notus-gateway/internal/logging"
	"notus-gateway/internal/metrics"
	"notus-gateway/internal/middleware"
	"notus-gateway/internal/route"
	"notus-gateway/internal/service"
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
		kong.Name("notus-gateway"),
		kong.Description("Authenticating API gateway for the Notus services."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			route.New,
			newMetrics,
			client.NewUpstreamClient,
			auth.NewVerifier,
			newAllowList,
			service.NewProxyService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
			newEcho,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer),
	).Run()
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*slog.Logger, error) {
	logger, cleanup, err := logging.New(&cfg.Log, os.Stdout)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(cleanup))
	return logger, nil
}

func newMetrics(cfg *config.Config, table *route.Table) *metrics.Metrics {
	return metrics.New(cfg.Metrics.Path, table.Prefixes()...)
}

func newAllowList(cfg *config.Config) *auth.AllowList {
	return auth.NewAllowList(cfg.Auth.PublicPaths)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, v auth.Verifier, allow *auth.AllowList) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// WriteTimeout is disabled (0) so long chat responses are not cut off;
	// upstream calls are bounded by the route timeout instead.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())
	// Preflights carry no Authorization header, so CORS answers them before Authenticate.
	e.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins))

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimit(cfg.Server.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	e.Use(middleware.MetricsMiddleware(m))
	e.Use(middleware.Authenticate(v, allow, m, logger))

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, table *route.Table, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			for _, t := range table.Targets() {
				logger.Info("route", "prefix", t.Prefix, "upstream", t.BaseURL.String(), "timeout", t.Timeout)
			}
			logger.Info("starting gateway", "addr", addr, "version", version, "auth_mode", cfg.Auth.Mode)
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
