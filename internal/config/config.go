// Package config provides configuration management for Hindsight.
// It loads settings from environment variables with the HINDSIGHT_ prefix,
// optionally layered over a YAML file pointed at by HINDSIGHT_CONFIG, and
// provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Hindsight service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 7171)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)

	// RateLimitPerSecond caps request throughput per client (default: 20).
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`

	// RateLimitBurst is the burst allowance on top of the rate (default: 40).
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	// StorageEngine selects the backend: sqlite or postgres (default: sqlite).
	StorageEngine string `yaml:"storage_engine"`

	// DataPath is the directory holding the SQLite database (default: ./data).
	DataPath string `yaml:"data_path"`

	// PostgresDSN is the connection string used when StorageEngine is
	// postgres.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	// SecurityMode is development or production (default: development).
	// Production mode requires an API token.
	SecurityMode string `yaml:"security_mode"`

	// APIToken authenticates API requests when set.
	APIToken string `yaml:"api_token"`
}

// LoadConfig loads configuration in three layers: built-in defaults, then an
// optional YAML file named by HINDSIGHT_CONFIG, then HINDSIGHT_-prefixed
// environment variables. Later layers win.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("HINDSIGHT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Server.RateLimitPerSecond <= 0 {
		return fmt.Errorf("config: rate limit must be positive, got %g", c.Server.RateLimitPerSecond)
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("config: rate limit burst must be >= 1, got %d", c.Server.RateLimitBurst)
	}
	switch c.Storage.StorageEngine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}
	if c.Storage.StorageEngine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres storage engine requires HINDSIGHT_POSTGRES_DSN")
	}
	switch c.Security.SecurityMode {
	case "development", "production":
	default:
		return fmt.Errorf("config: unknown security mode %q", c.Security.SecurityMode)
	}
	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: production security mode requires HINDSIGHT_API_TOKEN")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               7171,
			Host:               "127.0.0.1",
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
		},
		Storage: StorageConfig{
			StorageEngine: "sqlite",
			DataPath:      "./data",
		},
		Security: SecurityConfig{
			SecurityMode: "development",
		},
	}
}

// applyEnv overrides cfg fields from HINDSIGHT_ environment variables.
func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("HINDSIGHT_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("HINDSIGHT_HOST", cfg.Server.Host)
	cfg.Server.RateLimitPerSecond = getEnvFloat("HINDSIGHT_RATE_LIMIT", cfg.Server.RateLimitPerSecond)
	cfg.Server.RateLimitBurst = getEnvInt("HINDSIGHT_RATE_LIMIT_BURST", cfg.Server.RateLimitBurst)

	cfg.Storage.StorageEngine = getEnv("HINDSIGHT_STORAGE_ENGINE", cfg.Storage.StorageEngine)
	cfg.Storage.DataPath = getEnv("HINDSIGHT_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("HINDSIGHT_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Security.SecurityMode = getEnv("HINDSIGHT_SECURITY_MODE", cfg.Security.SecurityMode)
	cfg.Security.APIToken = getEnv("HINDSIGHT_API_TOKEN", cfg.Security.APIToken)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
