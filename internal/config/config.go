// internal/config/config.go

// Package config loads the server configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"lendnexus/internal/store/breaker"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Lending     LendingConfig     `yaml:"lending"`
	Membership  MembershipConfig  `yaml:"membership"`
	Reservation ReservationConfig `yaml:"reservation"`
	Log         LogConfig         `yaml:"log"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects and tunes the record store
type StoreConfig struct {
	Driver      string        `yaml:"driver"` // "memory" or "postgres"
	DatabaseURL string        `yaml:"database_url"`
	Migrate     bool          `yaml:"migrate"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

// BreakerConfig contains circuit breaker settings for the store
type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
}

// LendingConfig contains the rules used to classify rentals
type LendingConfig struct {
	Timezone    string `yaml:"timezone"`
	DueSoonDays int    `yaml:"due_soon_days"`
}

// MembershipConfig contains customer registration settings
type MembershipConfig struct {
	RegistrationsPerMinute int `yaml:"registrations_per_minute"`
}

// ReservationConfig contains pickup code settings
type ReservationConfig struct {
	CodeAttemptsPerMinute int `yaml:"code_attempts_per_minute"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// TelemetryConfig contains tracing settings. Tracing is off without an
// endpoint.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	b := breaker.DefaultSettings()
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, ShutdownTimeout: 15 * time.Second},
		Store: StoreConfig{
			Driver: DriverMemory,
			Breaker: BreakerConfig{
				MaxRequests:  b.MaxRequests,
				Interval:     b.Interval,
				Timeout:      b.Timeout,
				MinRequests:  b.MinRequests,
				FailureRatio: b.FailureRatio,
			},
		},
		Lending:     LendingConfig{Timezone: "UTC", DueSoonDays: 3},
		Membership:  MembershipConfig{RegistrationsPerMinute: 30},
		Reservation: ReservationConfig{CodeAttemptsPerMinute: 5},
		Log:         LogConfig{Level: "info", Format: "text"},
		Telemetry:   TelemetryConfig{ServiceName: "lendnexus"},
	}
}

// Load reads configuration from a YAML file on top of the defaults. An
// empty path skips the file.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.overrideWithEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() error {
	if val := os.Getenv("DATABASE_URL"); val != "" {
		c.Store.DatabaseURL = val
	}
	if val := os.Getenv("STORE_DRIVER"); val != "" {
		c.Store.Driver = val
	}
	if val := os.Getenv("PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", val, err)
		}
		c.Server.Port = port
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("LENDING_TIMEZONE"); val != "" {
		c.Lending.Timezone = val
	}
	if val := os.Getenv("DUE_SOON_DAYS"); val != "" {
		days, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid DUE_SOON_DAYS %q: %w", val, err)
		}
		c.Lending.DueSoonDays = days
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if r := c.Store.Breaker.FailureRatio; r <= 0 || r > 1 {
		return fmt.Errorf("breaker failure_ratio must be in (0, 1], got %v", r)
	}

	if _, err := c.Lending.Location(); err != nil {
		return err
	}
	if c.Lending.DueSoonDays < 0 {
		return fmt.Errorf("due_soon_days must not be negative, got %d", c.Lending.DueSoonDays)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "lendnexus"
	}
	return nil
}

// Location resolves the timezone that decides what "today" is.
func (l LendingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid lending timezone %q: %w", l.Timezone, err)
	}
	return loc, nil
}

// Settings converts the breaker section.
func (b BreakerConfig) Settings() breaker.Settings {
	return breaker.Settings{
		MaxRequests:  b.MaxRequests,
		Interval:     b.Interval,
		Timeout:      b.Timeout,
		MinRequests:  b.MinRequests,
		FailureRatio: b.FailureRatio,
	}
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
