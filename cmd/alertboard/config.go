// Package main provides the alertboard server.
package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Feed backends.
const (
	BackendHub       = "hub"
	BackendFirestore = "firestore"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Web      WebConfig      `mapstructure:"web"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Verbose  bool           `mapstructure:"-"` // set via CLI flag
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	Address        string    `mapstructure:"address"`
	MetricsAddress string    `mapstructure:"metrics_address"` // empty disables the metrics listener
	TrustedProxies []string  `mapstructure:"trusted_proxies"`
	TLS            TLSConfig `mapstructure:"tls"`
	// AllowInsecure permits plain HTTP. Without it TLS must be enabled.
	AllowInsecure bool `mapstructure:"allow_insecure"`
}

// TLSConfig contains HTTPS settings.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// FeedConfig selects where alerts live.
type FeedConfig struct {
	Backend   string          `mapstructure:"backend"`
	Firestore FirestoreConfig `mapstructure:"firestore"`
}

// FirestoreConfig contains hosted backend settings.
type FirestoreConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"` // empty uses application default credentials
}

// AuthConfig contains token and login protection settings.
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `mapstructure:"refresh_token_ttl"`
	RateLimitPerIP   int           `mapstructure:"rate_limit_per_ip"`
	RateLimitPerUser int           `mapstructure:"rate_limit_per_user"`
	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
}

// WebConfig contains browser UI settings.
type WebConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	CSRFKey        string        `mapstructure:"csrf_key"`
	SecureCookies  bool          `mapstructure:"secure_cookies"`
	TrustedOrigins []string      `mapstructure:"trusted_origins"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	RememberTTL    time.Duration `mapstructure:"remember_ttl"`
	ReadyTimeout   time.Duration `mapstructure:"ready_timeout"`
	Timezone       string        `mapstructure:"timezone"`
}

// StreamConfig applies to SSE and WebSocket subscribers.
type StreamConfig struct {
	MaxDuration       time.Duration `mapstructure:"max_duration"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
}

// LoggingConfig contains logger settings. level is reloaded when the config
// file changes.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.allow_insecure", false)
	v.SetDefault("database.path", "./data/alertboard.db")
	v.SetDefault("feed.backend", BackendHub)
	v.SetDefault("feed.firestore.project_id", "")
	v.SetDefault("feed.firestore.credentials_file", "")
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl", "168h")
	v.SetDefault("auth.rate_limit_per_ip", 10)
	v.SetDefault("auth.rate_limit_per_user", 120)
	v.SetDefault("auth.lockout_threshold", 5)
	v.SetDefault("auth.lockout_duration", "15m")
	v.SetDefault("web.enabled", true)
	v.SetDefault("web.secure_cookies", false)
	v.SetDefault("web.trusted_origins", []string{})
	v.SetDefault("web.session_ttl", "24h")
	v.SetDefault("web.remember_ttl", "720h")
	v.SetDefault("web.ready_timeout", "3s")
	v.SetDefault("web.timezone", "Local")
	v.SetDefault("stream.max_duration", "30m")
	v.SetDefault("stream.heartbeat_interval", "15s")
	v.SetDefault("stream.ping_interval", "25s")
	v.SetDefault("stream.query_timeout", "10s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// LoadConfig reads path (or alertboard.yaml from the working directory or
// /etc/alertboard when path is empty) and the ALERTBOARD_* environment. The
// returned viper instance stays bound to the file for reloads.
func LoadConfig(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("alertboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/alertboard")
	}

	setDefaults(v)

	v.SetEnvPrefix("ALERTBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Secrets have short names of their own.
	_ = v.BindEnv("auth.jwt_secret", "ALERTBOARD_JWT_SECRET", "ALERTBOARD_AUTH_JWT_SECRET")
	_ = v.BindEnv("web.csrf_key", "ALERTBOARD_CSRF_KEY", "ALERTBOARD_WEB_CSRF_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, v, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
	} else if !c.Server.AllowInsecure {
		return fmt.Errorf("server.tls.enabled must be true unless server.allow_insecure is set")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Feed.Backend {
	case BackendHub:
	case BackendFirestore:
		if c.Feed.Firestore.ProjectID == "" {
			return fmt.Errorf("feed.firestore.project_id is required for the firestore backend")
		}
	default:
		return fmt.Errorf("feed.backend must be %q or %q, got %q", BackendHub, BackendFirestore, c.Feed.Backend)
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret (ALERTBOARD_JWT_SECRET) must be at least 32 bytes")
	}
	if c.Web.Enabled && len(c.Web.CSRFKey) != 32 {
		return fmt.Errorf("web.csrf_key (ALERTBOARD_CSRF_KEY) must be exactly 32 bytes")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("web.timezone: %w", err)
	}

	for name, d := range map[string]time.Duration{
		"auth.access_token_ttl":     c.Auth.AccessTokenTTL,
		"auth.refresh_token_ttl":    c.Auth.RefreshTokenTTL,
		"auth.lockout_duration":     c.Auth.LockoutDuration,
		"web.session_ttl":           c.Web.SessionTTL,
		"web.ready_timeout":         c.Web.ReadyTimeout,
		"stream.max_duration":       c.Stream.MaxDuration,
		"stream.heartbeat_interval": c.Stream.HeartbeatInterval,
		"stream.ping_interval":      c.Stream.PingInterval,
		"stream.query_timeout":      c.Stream.QueryTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// Location returns the time zone alert timestamps are shown in.
func (c *Config) Location() (*time.Location, error) {
	if c.Web.Timezone == "" || c.Web.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Web.Timezone)
}
