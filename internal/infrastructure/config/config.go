package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Log      LogConfig
	Engine   EngineConfig
	Metrics  MetricsConfig
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver   string `validate:"required,oneof=postgres sqlite"`
	Host     string `validate:"required_if=Driver postgres"`
	Port     int    `validate:"required_if=Driver postgres,omitempty,min=1,max=65535"`
	User     string `validate:"required_if=Driver postgres"`
	Password string `validate:"required_if=Driver postgres"`
	Database string `validate:"required_if=Driver postgres"`
	SSLMode  string `validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	Path     string `validate:"required_if=Driver sqlite"` // SQLite database file
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level       string `validate:"required,oneof=debug info warn error"`
	Encoding    string `validate:"required,oneof=json console"`
	Development bool
}

// EngineConfig represents relationship engine configuration
type EngineConfig struct {
	SchemaFile       string // YAML class document loaded at startup
	ProgramCacheSize int    `validate:"min=0"` // Compiled condition programs kept in memory
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool
	Port    int `validate:"omitempty,min=1,max=65535"` // Port for Prometheus metrics HTTP server
}

var validate = validator.New()

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root directory
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Find project root
	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	// Set config file name based on environment
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot) // Project root

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("DB_DRIVER", DriverPostgres)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "kankei")
	viper.SetDefault("DB_NAME", "kankei_dev")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_PATH", "kankei.db")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_ENCODING", "json")
	viper.SetDefault("LOG_DEVELOPMENT", false)

	viper.SetDefault("SCHEMA_FILE", "")
	viper.SetDefault("CONDITION_CACHE_SIZE", 256)

	viper.SetDefault("METRICS_ENABLED", false)
	viper.SetDefault("METRICS_PORT", 9090)

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			Driver:   strings.ToLower(viper.GetString("DB_DRIVER")),
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
			Path:     viper.GetString("DB_PATH"),
		},
		Log: LogConfig{
			Level:       strings.ToLower(viper.GetString("LOG_LEVEL")),
			Encoding:    strings.ToLower(viper.GetString("LOG_ENCODING")),
			Development: viper.GetBool("LOG_DEVELOPMENT"),
		},
		Engine: EngineConfig{
			SchemaFile:       viper.GetString("SCHEMA_FILE"),
			ProgramCacheSize: viper.GetInt("CONDITION_CACHE_SIZE"),
		},
		Metrics: MetricsConfig{
			Enabled: viper.GetBool("METRICS_ENABLED"),
			Port:    viper.GetInt("METRICS_PORT"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration against its validation tags
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		messages := make([]string, 0, len(errs))
		for _, e := range errs {
			messages = append(messages, formatFieldError(e))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
	}
	return nil
}

// formatFieldError names the environment variable behind a failed field
func formatFieldError(e validator.FieldError) string {
	key := envKey(e.StructNamespace())
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", key)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, e.Param())
	case "min", "max":
		return fmt.Sprintf("%s is out of range", key)
	default:
		return fmt.Sprintf("%s is invalid", key)
	}
}

var envKeys = map[string]string{
	"Config.Database.Driver":         "DB_DRIVER",
	"Config.Database.Host":           "DB_HOST",
	"Config.Database.Port":           "DB_PORT",
	"Config.Database.User":           "DB_USER",
	"Config.Database.Password":       "DB_PASSWORD",
	"Config.Database.Database":       "DB_NAME",
	"Config.Database.SSLMode":        "DB_SSLMODE",
	"Config.Database.Path":           "DB_PATH",
	"Config.Log.Level":               "LOG_LEVEL",
	"Config.Log.Encoding":            "LOG_ENCODING",
	"Config.Engine.ProgramCacheSize": "CONDITION_CACHE_SIZE",
	"Config.Metrics.Port":            "METRICS_PORT",
}

func envKey(namespace string) string {
	if key, ok := envKeys[namespace]; ok {
		return key
	}
	return namespace
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
