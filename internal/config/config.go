// Package config loads the server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/router-for-me/PersistedObjects/internal/util"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is read when no path is given.
const DefaultConfigPath = "config.yaml"

// AppConfig is the full server configuration.
type AppConfig struct {
	ConfigPath string `yaml:"-"`

	Server     ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Database   DatabaseConfig   `yaml:"database" envPrefix:"DATABASE_"`
	Encryption EncryptionConfig `yaml:"encryption" envPrefix:"PERSISTED_OBJECT_ENCRYPTION_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOG_"`
	Auth       AuthConfig       `yaml:"auth" envPrefix:"AUTH_"`
	Events     EventsConfig     `yaml:"events" envPrefix:"EVENTS_"`
	Models     ModelsConfig     `yaml:"models" envPrefix:"MODELS_"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	APIPrefix string `yaml:"api_prefix" env:"API_PREFIX"`
	Mode      string `yaml:"mode" env:"MODE"`           // gin mode: debug, release or test.
	WebUIDir  string `yaml:"webui_dir" env:"WEBUI_DIR"` // Built admin frontend; empty disables it.
}

// DatabaseConfig names the database. postgres:// DSNs select Postgres, anything else SQLite.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DSN"`
}

// EncryptionConfig holds the key material for encrypted JSON blobs.
type EncryptionConfig struct {
	Key  string `yaml:"key" env:"KEY"`
	Salt string `yaml:"salt" env:"SALT"`
}

// Configured reports whether both key and salt are set.
func (c EncryptionConfig) Configured() bool {
	return strings.TrimSpace(c.Key) != "" && strings.TrimSpace(c.Salt) != ""
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Format     string `yaml:"format" env:"FORMAT"` // text or json.
	File       string `yaml:"file" env:"FILE"`     // Empty logs to stdout.
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

// AuthConfig configures bearer token principals.
type AuthConfig struct {
	JWTSecret  string   `yaml:"jwt_secret" env:"JWT_SECRET"`
	WriteRoles []string `yaml:"write_roles" env:"WRITE_ROLES" envSeparator:","`
}

// Enabled reports whether bearer tokens are checked.
func (c AuthConfig) Enabled() bool { return strings.TrimSpace(c.JWTSecret) != "" }

// EventsConfig configures the change event publisher. An empty URL disables it.
type EventsConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	Channel  string `yaml:"channel" env:"CHANNEL"`
}

// ModelsConfig selects the served models.
type ModelsConfig struct {
	Dir     string `yaml:"dir" env:"DIR"`         // Directory of YAML model files.
	Builtin bool   `yaml:"builtin" env:"BUILTIN"` // Serve the built-in catalog models.
	Seed    bool   `yaml:"seed" env:"SEED"`       // Insert sample rows into empty built-in tables.
}

// Default returns the configuration used when nothing is set.
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Addr:      ":8080",
			APIPrefix: "/api",
			Mode:      "release",
		},
		Database: DatabaseConfig{DSN: defaultDSN()},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Events: EventsConfig{Channel: "persisted-objects"},
		Models: ModelsConfig{Builtin: true},
	}
}

func defaultDSN() string {
	dir := util.WritablePath()
	if dir == "" {
		dir = "data"
	}
	return filepath.Join(dir, "persisted_objects.db")
}

// ResolveConfigPath returns path, or DefaultConfigPath when it is empty.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return trimmed
	}
	return DefaultConfigPath
}

// Load builds the configuration from defaults, the YAML file at path (optional),
// a .env file next to it (optional) and the process environment, in that order.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	cfg.ConfigPath = ResolveConfigPath(path)

	data, err := os.ReadFile(cfg.ConfigPath)
	switch {
	case err == nil:
		if errYAML := yaml.Unmarshal(data, &cfg); errYAML != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", cfg.ConfigPath, errYAML)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("config: read %s: %w", cfg.ConfigPath, err)
	}

	envFile := filepath.Join(filepath.Dir(cfg.ConfigPath), ".env")
	if errEnv := godotenv.Load(envFile); errEnv != nil && !errors.Is(errEnv, os.ErrNotExist) {
		return cfg, fmt.Errorf("config: load %s: %w", envFile, errEnv)
	}
	if errParse := env.Parse(&cfg); errParse != nil {
		return cfg, fmt.Errorf("config: environment: %w", errParse)
	}

	cfg.Server.APIPrefix = "/" + strings.Trim(strings.TrimSpace(cfg.Server.APIPrefix), "/")
	if cfg.Server.APIPrefix == "/" {
		cfg.Server.APIPrefix = ""
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return cfg, fmt.Errorf("config: database.dsn is required")
	}
	return cfg, nil
}
