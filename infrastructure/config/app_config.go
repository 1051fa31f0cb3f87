// Package config loads application configuration from the environment and
// scan parameters from a YAML options file. Environment variables carry the
// deployment-level settings (auth, database, logging); the YAML file carries
// the per-batch scan preferences.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"sptrace/database"
	"sptrace/domain/scan"
	"sptrace/logging"
	"sptrace/spauth"
)

// ServerConfig holds the status endpoint configuration.
type ServerConfig struct {
	Enabled bool   `env:"STATUS_ENABLED" default:"false"`
	Addr    string `env:"STATUS_ADDR" default:":8080"`
}

// AppConfig is the full application configuration.
type AppConfig struct {
	Logging  logging.Config
	Database database.Config
	Server   ServerConfig
	Auth     spauth.Config
}

// Load reads the application configuration from the environment.
func Load() (*AppConfig, error) {
	auth, err := spauth.FromEnv()
	if err != nil {
		return nil, err
	}

	cfg := &AppConfig{
		Logging: logging.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Database: database.Config{
			Path:              getEnv("DB_PATH", "./sptrace.db"),
			MaxOpenConns:      getEnvInt("DB_MAX_OPEN_CONNS", 4),
			MaxIdleConns:      getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:   getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			BusyTimeoutMs:     getEnvInt("DB_BUSY_TIMEOUT_MS", 5000),
			EnableForeignKeys: getEnvBool("DB_ENABLE_FOREIGN_KEYS", true),
			EnableWAL:         getEnvBool("DB_ENABLE_WAL", true),
		},
		Server: ServerConfig{
			Enabled: getEnvBool("STATUS_ENABLED", false),
			Addr:    getEnv("STATUS_ADDR", ":8080"),
		},
		Auth: auth,
	}

	return cfg, nil
}

// LoadScanParameters reads scan parameters from a YAML options file and
// validates them against the API constraints. An empty path yields the
// defaults.
func LoadScanParameters(path string) (*scan.Parameters, error) {
	params := scan.DefaultParameters()
	if path == "" {
		return params, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scan options: %w", err)
	}
	if err := yaml.Unmarshal(data, params); err != nil {
		return nil, fmt.Errorf("parse scan options: %w", err)
	}

	if err := params.ValidateAndSetDefaults(scan.DefaultApiConstraints()); err != nil {
		return nil, fmt.Errorf("invalid scan options: %w", err)
	}
	return params, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
