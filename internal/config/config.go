// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/revuhq/revu/internal/core"
	"github.com/revuhq/revu/internal/logger"
)

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// AIConfig holds the completion-capability settings. The API key is required:
// the pipeline refuses to construct without it.
type AIConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	StageTimeout time.Duration
}

// AuthConfig holds token issuance settings.
type AuthConfig struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ReviewConfig holds submission limits and the async worker pool size.
type ReviewConfig struct {
	MaxUploadBytes int64
	TaskWorkers    int
}

// Config holds the application's configuration values.
type Config struct {
	ServerPort string
	Logging    logger.Config
	Database   *DBConfig
	AI         AIConfig
	Auth       AuthConfig
	Review     ReviewConfig
	Languages  core.Languages
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates required fields. It uses the Viper
// library to handle configuration loading and precedence.
func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("LOG_OUTPUT", "stdout")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "revu")
	viper.SetDefault("DB_NAME", "revu")
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	viper.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")
	viper.SetDefault("AI_MODEL", "gpt-4o-mini")
	viper.SetDefault("AI_STAGE_TIMEOUT", "60s")
	viper.SetDefault("JWT_ACCESS_TTL", "15m")
	viper.SetDefault("JWT_REFRESH_TTL", "168h")
	viper.SetDefault("MAX_UPLOAD_BYTES", 16<<20)
	viper.SetDefault("TASK_WORKERS", 4)

	if err := viper.ReadInConfig(); err != nil {
		// A missing .env is fine; a broken one is not.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read .env file: %w", err)
		}
	}

	if viper.GetString("AI_API_KEY") == "" {
		return nil, fmt.Errorf("AI_API_KEY must be set")
	}
	if viper.GetString("JWT_SECRET") == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}

	languages := core.DefaultLanguages()
	if path := viper.GetString("LANGUAGE_MAPPING_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read language mapping file: %w", err)
		}
		languages, err = core.ParseLanguages(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse language mapping file: %w", err)
		}
	}

	return &Config{
		ServerPort: viper.GetString("SERVER_PORT"),
		Logging: logger.Config{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
			Output: viper.GetString("LOG_OUTPUT"),
		},
		Database: &DBConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			Username:        viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Database:        viper.GetString("DB_NAME"),
			ConnMaxLifetime: viper.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: viper.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		AI: AIConfig{
			APIKey:       viper.GetString("AI_API_KEY"),
			Model:        viper.GetString("AI_MODEL"),
			BaseURL:      viper.GetString("AI_BASE_URL"),
			StageTimeout: viper.GetDuration("AI_STAGE_TIMEOUT"),
		},
		Auth: AuthConfig{
			JWTSecret:  viper.GetString("JWT_SECRET"),
			AccessTTL:  viper.GetDuration("JWT_ACCESS_TTL"),
			RefreshTTL: viper.GetDuration("JWT_REFRESH_TTL"),
		},
		Review: ReviewConfig{
			MaxUploadBytes: viper.GetInt64("MAX_UPLOAD_BYTES"),
			TaskWorkers:    viper.GetInt("TASK_WORKERS"),
		},
		Languages: languages,
	}, nil
}
