package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file omits a value.
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// DefaultDSN is the default SQLite database path.
	DefaultDSN = "prophecy.db"
	// DefaultSessionTTL is the default session lifetime.
	DefaultSessionTTL = 7 * 24 * time.Hour
)

// AppConfig holds process-level inputs resolved before the file is read.
type AppConfig struct {
	ConfigPath string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	Production bool   `yaml:"production"`
}

// DatabaseConfig holds the database DSN.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SessionConfig holds session token settings.
type SessionConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// WebAuthnConfig holds relying party settings.
type WebAuthnConfig struct {
	RPID    string   `yaml:"rp_id"`
	RPName  string   `yaml:"rp_name"`
	Origins []string `yaml:"origins"`
}

// RedisConfig holds optional Redis settings for shared challenge storage
// and event broadcasting. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	WebAuthn WebAuthnConfig `yaml:"webauthn"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

// ResolveConfigPath returns the effective config file path, preferring the
// provided path, then the CONFIG_PATH environment variable, then config.yaml
// in the working directory.
func ResolveConfigPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed != "" {
		return filepath.Clean(trimmed)
	}
	if env := strings.TrimSpace(os.Getenv("CONFIG_PATH")); env != "" {
		return filepath.Clean(env)
	}
	return "config.yaml"
}

// Load reads and validates the config file. A missing file yields defaults so
// the server can boot with SQLite and an ephemeral session secret disabled.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	raw, errRead := os.ReadFile(path)
	if errRead != nil {
		if !os.IsNotExist(errRead) {
			return nil, fmt.Errorf("config: read %s: %w", path, errRead)
		}
	} else if errUnmarshal := yaml.Unmarshal(raw, cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if strings.TrimSpace(cfg.Session.Secret) == "" {
		return nil, fmt.Errorf("config: session.secret is required (set SESSION_SECRET or session.secret in %s)", path)
	}
	return cfg, nil
}

// applyDefaults fills zero values with defaults.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		cfg.Database.DSN = DefaultDSN
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = DefaultSessionTTL
	}
	if strings.TrimSpace(cfg.WebAuthn.RPID) == "" {
		cfg.WebAuthn.RPID = "localhost"
	}
	if strings.TrimSpace(cfg.WebAuthn.RPName) == "" {
		cfg.WebAuthn.RPName = "Prophecy Club"
	}
	if len(cfg.WebAuthn.Origins) == 0 {
		cfg.WebAuthn.Origins = []string{"http://localhost:8080"}
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
}

// applyEnvOverrides lets deployment environments override file values.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_SECRET")); v != "" {
		cfg.Session.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
}
