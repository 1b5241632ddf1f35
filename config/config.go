// Package config loads application configuration from the environment.
// A .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port         string
	DBPath       string
	LogLevel     string
	CronSecret   string // shared secret for the external cron endpoint
	CronSchedule string // cron spec for the in-process trigger
	CronEnabled  bool
}

// Load reads configuration from environment variables, with .env as a
// fallback source for local development.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set env vars directly.
	_ = godotenv.Load()

	cronEnabled, err := strconv.ParseBool(getEnv("CRON_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid CRON_ENABLED: %w", err)
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		DBPath:       getEnv("DB_PATH", "recurrence.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		CronSecret:   getEnv("CRON_SECRET", ""),
		CronSchedule: getEnv("CRON_SCHEDULE", "*/15 * * * *"),
		CronEnabled:  cronEnabled,
	}

	if cfg.DBPath == "" {
		return nil, fmt.Errorf("DB_PATH is required")
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
