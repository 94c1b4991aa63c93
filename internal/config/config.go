// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/notus/config.toml",
	"configs/config.toml",
}

// placeholderSecret is the shared default from the example deployment files.
const placeholderSecret = "super-secret-shared-key-for-all-services"

// Reserved gateway paths that no route or metrics endpoint may shadow.
var reservedPaths = []string{"/health", "/gateway/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config         string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host           string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port           int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel       string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Secret         string `kong:"help='Shared token signing secret (overrides config).',env='SECRET_KEY'"`
	Algorithm      string `kong:"help='Token signing algorithm: HS256|HS384|HS512 (overrides config).',env='ALGORITHM'"`
	AuthMode       string `kong:"help='Token verification mode: local|remote (overrides config).',env='AUTH_MODE'"`
	AuthServiceURL string `kong:"help='Auth service base URL (overrides config).',env='AUTH_SERVICE_URL'"`
	NoteServiceURL string `kong:"help='Note service base URL (overrides config).',env='NOTE_SERVICE_URL'"`
	ChatServiceURL string `kong:"help='Chat service base URL (overrides config).',env='CHAT_SERVICE_URL'"`
	DatabasePath   string `kong:"help='Identity database path (overrides config).',env='DATABASE_PATH'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Services ServicesConfig `toml:"services"`
	Upstream UpstreamConfig `toml:"upstream"`
	Routes   []RouteConfig  `toml:"routes"`
	Identity IdentityConfig `toml:"identity"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
	CORS         CORSConfig      `toml:"cors"`
}

// CORSConfig lists the browser origins allowed to call the gateway.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	Secret               string   `toml:"secret"`
	Algorithm            string   `toml:"algorithm"`
	Mode                 string   `toml:"mode"` // "local" decodes tokens in-process, "remote" asks the auth service
	VerifyURL            string   `toml:"verify_url"`
	VerifyTimeoutSeconds int      `toml:"verify_timeout_seconds"`
	PublicPaths          []string `toml:"public_paths"`
}

// ServicesConfig holds the base URLs of the backend services.
type ServicesConfig struct {
	AuthURL string `toml:"auth_url"`
	NoteURL string `toml:"note_url"`
	ChatURL string `toml:"chat_url"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	TimeoutSeconds     int `toml:"timeout_seconds"`
	ChatTimeoutSeconds int `toml:"chat_timeout_seconds"`
	IdleConnections    int `toml:"idle_connections"`
}

// RouteConfig maps an external path prefix to an upstream base URL.
type RouteConfig struct {
	Name           string `toml:"name"`
	Prefix         string `toml:"prefix"`
	Upstream       string `toml:"upstream"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// IdentityConfig holds settings for the identity service.
type IdentityConfig struct {
	Port            int    `toml:"port"`
	DatabasePath    string `toml:"database_path"`
	TokenTTLMinutes int    `toml:"token_ttl_minutes"`
	Issuer          string `toml:"issuer"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/notus/config.toml then configs/config.toml. If neither exists the
// configuration is built from defaults and environment overrides alone.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.Secret != "" {
		c.Auth.Secret = cli.Secret
	}
	if cli.Algorithm != "" {
		c.Auth.Algorithm = cli.Algorithm
	}
	if cli.AuthMode != "" {
		c.Auth.Mode = cli.AuthMode
	}
	if cli.AuthServiceURL != "" {
		c.Services.AuthURL = cli.AuthServiceURL
	}
	if cli.NoteServiceURL != "" {
		c.Services.NoteURL = cli.NoteServiceURL
	}
	if cli.ChatServiceURL != "" {
		c.Services.ChatURL = cli.ChatServiceURL
	}
	if cli.DatabasePath != "" {
		c.Identity.DatabasePath = cli.DatabasePath
	}
}

func (c *Config) validate() error {
	// Auth.
	if c.Auth.Secret == placeholderSecret {
		return fmt.Errorf("auth.secret contains the published placeholder value; set a real secret")
	}
	switch strings.ToLower(c.Auth.Mode) {
	case "local", "":
		if c.Auth.Secret == "" {
			return fmt.Errorf("auth.secret is required when auth.mode is local")
		}
	case "remote":
	default:
		return fmt.Errorf("auth.mode must be one of: local, remote; got %q", c.Auth.Mode)
	}
	switch strings.ToUpper(c.Auth.Algorithm) {
	case "HS256", "HS384", "HS512", "":
	default:
		return fmt.Errorf("auth.algorithm must be one of: HS256, HS384, HS512; got %q", c.Auth.Algorithm)
	}
	if c.Auth.VerifyTimeoutSeconds < 0 {
		return fmt.Errorf("auth.verify_timeout_seconds must be non-negative; got %d", c.Auth.VerifyTimeoutSeconds)
	}
	if c.Auth.VerifyURL != "" {
		if err := validateServiceURL("auth.verify_url", c.Auth.VerifyURL); err != nil {
			return err
		}
	}
	for _, p := range c.Auth.PublicPaths {
		if p == "" || p[0] != '/' {
			return fmt.Errorf("auth.public_paths entries must start with '/'; got %q", p)
		}
	}

	// Service URLs (optional; defaults apply when empty).
	for name, raw := range map[string]string{
		"services.auth_url": c.Services.AuthURL,
		"services.note_url": c.Services.NoteURL,
		"services.chat_url": c.Services.ChatURL,
	} {
		if raw == "" {
			continue
		}
		if err := validateServiceURL(name, raw); err != nil {
			return err
		}
	}

	// Routes.
	seen := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		if r.Prefix == "" || r.Prefix[0] != '/' || r.Prefix == "/" {
			return fmt.Errorf("routes[%d].prefix must start with '/' and not be the root; got %q", i, r.Prefix)
		}
		if strings.HasSuffix(r.Prefix, "/") {
			return fmt.Errorf("routes[%d].prefix must not end with '/'; got %q", i, r.Prefix)
		}
		if seen[r.Prefix] {
			return fmt.Errorf("routes[%d].prefix %q is duplicated", i, r.Prefix)
		}
		seen[r.Prefix] = true
		for _, reserved := range reservedPaths {
			if r.Prefix == reserved || strings.HasPrefix(r.Prefix, reserved+"/") {
				return fmt.Errorf("routes[%d].prefix %q conflicts with reserved route %q", i, r.Prefix, reserved)
			}
		}
		if err := validateServiceURL(fmt.Sprintf("routes[%d].upstream", i), r.Upstream); err != nil {
			return err
		}
		if r.TimeoutSeconds < 0 {
			return fmt.Errorf("routes[%d].timeout_seconds must be non-negative; got %d", i, r.TimeoutSeconds)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.ChatTimeoutSeconds < 0 {
		return fmt.Errorf("upstream.chat_timeout_seconds must be non-negative; got %d", c.Upstream.ChatTimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	for _, o := range c.Server.CORS.AllowedOrigins {
		if o == "" {
			return fmt.Errorf("server.cors.allowed_origins entries must not be empty")
		}
	}
	if c.Identity.Port < 0 || c.Identity.Port > 65535 {
		return fmt.Errorf("identity.port must be 0–65535; got %d", c.Identity.Port)
	}
	if c.Identity.TokenTTLMinutes < 0 {
		return fmt.Errorf("identity.token_ttl_minutes must be non-negative; got %d", c.Identity.TokenTTLMinutes)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings must be non-negative")
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		conflicts := append([]string{}, reservedPaths...)
		for _, r := range c.Routes {
			conflicts = append(conflicts, r.Prefix)
		}
		for _, reserved := range conflicts {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// validateServiceURL checks that raw is an absolute http(s) URL with a host.
func validateServiceURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https; got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host; got %q", field, raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if len(c.Server.CORS.AllowedOrigins) == 0 {
		c.Server.CORS.AllowedOrigins = []string{"*"}
	}

	c.Auth.Mode = strings.ToLower(c.Auth.Mode)
	if c.Auth.Mode == "" {
		c.Auth.Mode = "local"
	}
	c.Auth.Algorithm = strings.ToUpper(c.Auth.Algorithm)
	if c.Auth.Algorithm == "" {
		c.Auth.Algorithm = "HS256"
	}
	if c.Auth.VerifyTimeoutSeconds == 0 {
		c.Auth.VerifyTimeoutSeconds = 5
	}

	if c.Services.AuthURL == "" {
		c.Services.AuthURL = "http://auth-service:8001"
	}
	if c.Services.NoteURL == "" {
		c.Services.NoteURL = "http://note-service:8002"
	}
	if c.Services.ChatURL == "" {
		c.Services.ChatURL = "http://chat-service:8003"
	}
	if c.Auth.VerifyURL == "" {
		c.Auth.VerifyURL = strings.TrimSuffix(c.Services.AuthURL, "/") + "/auth/verify"
	}

	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 10
	}
	if c.Upstream.ChatTimeoutSeconds == 0 {
		c.Upstream.ChatTimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}

	if len(c.Routes) == 0 {
		c.Routes = c.defaultRoutes()
	}
	for i := range c.Routes {
		if c.Routes[i].Name == "" {
			c.Routes[i].Name = strings.ReplaceAll(strings.Trim(c.Routes[i].Prefix, "/"), "/", "_")
		}
		if c.Routes[i].TimeoutSeconds == 0 {
			c.Routes[i].TimeoutSeconds = c.Upstream.TimeoutSeconds
		}
	}

	if c.Identity.Port == 0 {
		c.Identity.Port = 8001
	}
	if c.Identity.DatabasePath == "" {
		c.Identity.DatabasePath = "notus-auth.db"
	}
	if c.Identity.TokenTTLMinutes == 0 {
		c.Identity.TokenTTLMinutes = 30
	}
	if c.Identity.Issuer == "" {
		c.Identity.Issuer = "notus-auth"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Auth.PublicPaths == nil {
		c.Auth.PublicPaths = []string{
			"/", "/health", "/gateway/status",
			"/auth/login", "/auth/register",
			"/users/login", "/users/register",
			"/docs", "/redoc", "/openapi.json",
		}
	}
	if c.Metrics.Enabled {
		c.Auth.PublicPaths = append(c.Auth.PublicPaths, c.Metrics.Path)
	}
}

// defaultRoutes mirrors the service layout: the identity service owns
// /auth and /users, notes and chat each own their prefix. Upstream paths
// keep the prefix so a request for /notes/7 reaches <note>/notes/7.
func (c *Config) defaultRoutes() []RouteConfig {
	join := func(base, prefix string) string {
		return strings.TrimSuffix(base, "/") + prefix
	}
	return []RouteConfig{
		{Name: "auth", Prefix: "/auth", Upstream: join(c.Services.AuthURL, "/auth")},
		{Name: "users", Prefix: "/users", Upstream: join(c.Services.AuthURL, "/users")},
		{Name: "notes", Prefix: "/notes", Upstream: join(c.Services.NoteURL, "/notes")},
		{Name: "chat", Prefix: "/chat", Upstream: join(c.Services.ChatURL, "/chat"), TimeoutSeconds: c.Upstream.ChatTimeoutSeconds},
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// VerifyTimeout returns the remote verification deadline.
func (c *AuthConfig) VerifyTimeout() time.Duration {
	return time.Duration(c.VerifyTimeoutSeconds) * time.Second
}

// Timeout returns the per-request upstream deadline for the route.
func (r *RouteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// IdentityAddr returns the identity service listen address on the server host.
func (c *Config) IdentityAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Identity.Port)
}

// TokenTTL returns the lifetime of issued access tokens.
func (c *IdentityConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// WarnPermissions logs a warning if the config file is readable by group or others.
// The file carries the signing secret.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
