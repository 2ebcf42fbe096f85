// Package config loads server configuration from an optional YAML file with
// environment-variable overrides. The loaded value is immutable after startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Events    EventsConfig    `yaml:"events"`
	Auth      AuthConfig      `yaml:"auth"`
	Presence  PresenceConfig  `yaml:"presence"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Policy    PolicyConfig    `yaml:"policy"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	LogLevel  string          `yaml:"log_level"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
}

type DatabaseConfig struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// EventsConfig selects the event-bus backend. "redis" publishes on the
// ephemeral store's pub/sub; "nats" uses a NATS server.
type EventsConfig struct {
	Backend string `yaml:"backend"`
	NatsURL string `yaml:"nats_url"`
}

type AuthConfig struct {
	// InternalSecret enables signed-proxy mode when non-empty.
	InternalSecret string `yaml:"internal_secret"`
	// SessionSecret is the fallback proxy secret.
	SessionSecret string `yaml:"session_secret"`
}

type PresenceConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type OutboxConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffCap   time.Duration `yaml:"backoff_cap"`
}

type PolicyConfig struct {
	// AssetDir overrides the embedded default bundle and enables hot reload.
	AssetDir string `yaml:"asset_dir"`
}

type DashboardConfig struct {
	// JWTSecret signs short-lived dashboard identity tokens.
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8765,
			RequestTimeout: 30 * time.Second,
			DrainTimeout:   15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 16,
			MaxIdleConns: 8,
			ConnLifetime: 30 * time.Minute,
		},
		Redis:  RedisConfig{URL: "redis://localhost:6379/0"},
		Events: EventsConfig{Backend: "redis", NatsURL: "nats://localhost:4222"},
		Presence: PresenceConfig{
			TTL: 1800 * time.Second,
		},
		Outbox: OutboxConfig{
			BatchSize:    25,
			MaxAttempts:  5,
			PollInterval: 2 * time.Second,
			BackoffBase:  2 * time.Second,
			BackoffCap:   5 * time.Minute,
		},
		Dashboard: DashboardConfig{TokenTTL: 12 * time.Hour},
		LogLevel:  "info",
	}
}

// Load reads the YAML file at path (when path is non-empty and the file
// exists) over the defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Server.Port)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PRESENCE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Presence.TTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("INTERNAL_AUTH_SECRET"); v != "" {
		cfg.Auth.InternalSecret = v
	}
	if v := os.Getenv("SESSION_SECRET_KEY"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("EVENT_BUS"); v != "" {
		cfg.Events.Backend = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Events.NatsURL = v
	}
	if v := os.Getenv("DASHBOARD_JWT_SECRET"); v != "" {
		cfg.Dashboard.JWTSecret = v
	}
	if v := os.Getenv("POLICY_ASSET_DIR"); v != "" {
		cfg.Policy.AssetDir = v
	}
}

// ProxySecret returns the active signed-proxy secret, preferring the internal
// secret over the session fallback. Empty means proxy mode is disabled.
func (c *Config) ProxySecret() string {
	if c.Auth.InternalSecret != "" {
		return c.Auth.InternalSecret
	}
	return c.Auth.SessionSecret
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
