// Package config loads petadopt configuration from YAML.
//
// String values may reference environment variables as ${VAR}; unset
// variables expand to the empty string. Missing keys keep their defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/petadopt/internal/ir"
)

// DefaultNetworkID matches the local development chain.
const DefaultNetworkID uint64 = 31337

// Config is the full petadopt configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Registry RegistryConfig `yaml:"registry"`
	Network  NetworkConfig  `yaml:"network"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig locates the journal.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RegistryConfig is used by `petadopt init` to create the registry.
type RegistryConfig struct {
	Owner       string `yaml:"owner"`
	InitialPets uint64 `yaml:"initial_pets"`
}

// NetworkConfig describes the expected network and the network the local
// wallet starts on.
type NetworkConfig struct {
	ID           uint64 `yaml:"id"`
	Current      uint64 `yaml:"current"` // 0 means "same as id"
	RejectSwitch bool   `yaml:"reject_switch"`
}

// CatalogConfig locates the pet catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig tunes the client session.
type SessionConfig struct {
	AwaitTimeoutRaw string        `yaml:"await_timeout"`
	AwaitTimeout    time.Duration `yaml:"-"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "petadopt.db"},
		Network:  NetworkConfig{ID: DefaultNetworkID},
		Session: SessionConfig{
			AwaitTimeoutRaw: "30s",
			AwaitTimeout:    30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads, expands, parses and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for in-memory content.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Registry.Owner != "" {
		if _, err := c.OwnerAddress(); err != nil {
			return err
		}
	}
	if c.Network.ID == 0 {
		return fmt.Errorf("network.id must be positive")
	}
	if c.Session.AwaitTimeout <= 0 {
		return fmt.Errorf("session.await_timeout must be positive")
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

func parseDurations(cfg *Config) error {
	if cfg.Session.AwaitTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Session.AwaitTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing await_timeout %q: %w", cfg.Session.AwaitTimeoutRaw, err)
		}
		cfg.Session.AwaitTimeout = d
	}
	return nil
}

// OwnerAddress parses registry.owner.
func (c *Config) OwnerAddress() (ir.Address, error) {
	addr, err := ir.ParseAddress(c.Registry.Owner)
	if err != nil {
		return ir.NoAddress, fmt.Errorf("registry.owner: %w", err)
	}
	if addr.IsZero() {
		return ir.NoAddress, fmt.Errorf("registry.owner must not be the zero address")
	}
	return addr, nil
}

// WalletNetwork returns the network the local wallet starts on.
func (c *Config) WalletNetwork() uint64 {
	if c.Network.Current == 0 {
		return c.Network.ID
	}
	return c.Network.Current
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Logging.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", s)
	}
}
