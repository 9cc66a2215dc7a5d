package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"isoquant/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	LogLevel string
	Pipeline PipelineConfig `validate:"required"`
	Storage  StorageConfig
	Database DatabaseConfig
	Server   ServerConfig `validate:"required"`
}

// PipelineConfig holds execution settings shared by every variant
type PipelineConfig struct {
	Workers     int           `validate:"min=1"`
	UnitTimeout time.Duration `validate:"min=0"`
	QThreshold  float64       `validate:"gt=0,lt=1"`
}

// StorageConfig holds the embedded run store location
type StorageConfig struct {
	BadgerDir string
}

// DatabaseConfig holds database connection settings. An empty URL disables
// the shared run repository.
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string `validate:"required"`
}

var validate = validator.New()

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
		Pipeline: *loadPipelineConfig(),
		Storage: StorageConfig{
			BadgerDir: getEnvOrDefault("BADGER_DIR", ""),
		},
		Database: DatabaseConfig{
			URL:     getEnvOrDefault("DATABASE_URL", ""),
			SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("API_PORT", "8080"),
		},
	}

	if err := validate.Struct(config); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, errors.Wrap(err, "configuration validation failed"))
	}
	return config, nil
}

func loadPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Workers:     getEnvIntOrDefault("WORKERS", 4),
		UnitTimeout: getEnvDurationOrDefault("UNIT_TIMEOUT", 30*time.Second),
		QThreshold:  getEnvFloatOrDefault("Q_THRESHOLD", 0.05),
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
