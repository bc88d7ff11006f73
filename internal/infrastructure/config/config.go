// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Matching      MatchingConfig      `yaml:"matching"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// MatchingConfig holds matching pipeline settings.
type MatchingConfig struct {
	// ReferencePrefix is stripped from both sides before fuzzy reference
	// comparison.
	ReferencePrefix string `yaml:"reference_prefix"`
	// StopWords disqualify a name part from exact name matching.
	StopWords []string `yaml:"stop_words"`
	// PayerStopTerms make a payer-name key unusable for the memory fallback.
	PayerStopTerms []string `yaml:"payer_stop_terms"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECONCILE_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := defaults()
	cfg.Storage.DatabasePath = getEnv("RECONCILE_DB_PATH", cfg.Storage.DatabasePath)
	cfg.Matching.ReferencePrefix = getEnv("RECONCILE_REFERENCE_PREFIX", cfg.Matching.ReferencePrefix)
	cfg.Server.Port = getEnvInt("RECONCILE_PORT", cfg.Server.Port)
	cfg.Observability.Logging.Level = getEnv("LOG_LEVEL", cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = getEnv("LOG_FORMAT", cfg.Observability.Logging.Format)
	return cfg
}

// LoadOrEnv tries to load from the given path, falls back to environment
// variables when the file is absent.
func LoadOrEnv(path string) *Config {
	if path == "" {
		path = "config.yaml"
	}
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			DatabasePath: "reconcile.db",
		},
		Matching: MatchingConfig{
			ReferencePrefix: "FEE-",
			StopWords: []string{
				"and", "for", "the",
				"und", "von", "der", "die", "das", "fuer",
			},
			PayerStopTerms: []string{
				"bank", "sparkasse", "volksbank", "kasse",
				"zahlung", "payment", "ueberweisung", "giro",
				"gmbh", "verein", "institut", "stadt",
			},
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}
