package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cardvault/voucher-service/internal/util"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file name used when no path is given.
const DefaultConfigFile = "config.yaml"

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // Listen address, e.g. ":8317".
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // PostgreSQL DSN or SQLite path.
}

// RedisConfig holds optional Redis settings for serial reservations.
// Leave Addr empty to run without Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig holds admin token signing settings.
type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpireHours int    `yaml:"expire-hours"`

	// Expiry is derived from ExpireHours when the config is loaded.
	Expiry time.Duration `yaml:"-"`
}

// IssuanceConfig holds knobs for batch issuance and secret generation.
type IssuanceConfig struct {
	PINLength          int `yaml:"pin-length"`
	SerialNumberWidth  int `yaml:"serial-number-width"`
	MaxBundlesPerBatch int `yaml:"max-bundles-per-batch"`
	MaxCardsPerBundle  int `yaml:"max-cards-per-bundle"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // Empty logs to stderr only.
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Issuance IssuanceConfig `yaml:"issuance"`
	Log      LogConfig      `yaml:"log"`
}

// ResolveConfigPath returns the effective config file path. Relative paths
// are resolved against WRITABLE_PATH when that is set.
func ResolveConfigPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultConfigFile
	}
	if filepath.IsAbs(path) {
		return path
	}
	if base := util.WritablePath(); base != "" {
		return filepath.Join(base, path)
	}
	return path
}

// Load reads and parses the YAML config file at path and applies defaults.
func Load(path string) (*Config, error) {
	raw, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	var cfg Config
	if errParse := yaml.Unmarshal(raw, &cfg); errParse != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errParse)
	}
	cfg.applyDefaults()
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, fmt.Errorf("config: %s: database.dsn is required", path)
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, fmt.Errorf("config: %s: jwt.secret is required", path)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":8317"
	}
	if c.JWT.ExpireHours <= 0 {
		c.JWT.ExpireHours = 24
	}
	c.JWT.Expiry = time.Duration(c.JWT.ExpireHours) * time.Hour
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 30
	}
}

// LoadDatabaseDSN loads only the database DSN from the config file.
func LoadDatabaseDSN(path string) (string, error) {
	cfg, err := Load(path)
	if err != nil {
		return "", err
	}
	return cfg.Database.DSN, nil
}
