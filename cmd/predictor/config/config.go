// Package config implements the predictor service configuration.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all predictor configuration.
type Config struct {
	Listen string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBMinConns int
	DBMaxConns int

	ModelManagerBaseURL string
	OpenMeteoBaseURL    string
	ForecastTimezone    string

	LogFormat string
	LogLevel  string
}

// ParseFlags parses command-line flags and environment variables into a
// Config. A .env file in the working directory is loaded first, without
// overriding variables already set in the environment. Exits with status 1
// if required settings (database credentials, model-manager URL) are
// missing.
func ParseFlags() *Config {
	godotenv.Load()

	cfg := &Config{}

	// Server
	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8080"), "HTTP listen address")

	// Database
	flag.StringVar(&cfg.DBHost, "db-host", getEnv("DB_HOST", "localhost"), "PostgreSQL host")
	flag.IntVar(&cfg.DBPort, "db-port", getEnvInt("DB_PORT", 5432), "PostgreSQL port")
	flag.StringVar(&cfg.DBUser, "db-user", getEnv("DB_USER", ""), "PostgreSQL user (required)")
	flag.StringVar(&cfg.DBPassword, "db-password", getEnv("DB_PASSWORD", ""), "PostgreSQL password (required)")
	flag.StringVar(&cfg.DBName, "db-name", getEnv("DB_NAME", ""), "PostgreSQL database name (required)")
	flag.IntVar(&cfg.DBMinConns, "db-min-connections", getEnvInt("DB_MIN_CONNECTIONS", 5), "Minimum pool connections")
	flag.IntVar(&cfg.DBMaxConns, "db-max-connections", getEnvInt("DB_MAX_CONNECTIONS", 20), "Maximum pool connections")

	// Upstream services
	flag.StringVar(&cfg.ModelManagerBaseURL, "model-manager-url", getEnv("MODEL_MANAGER_BASE_URL", ""), "Model manager base URL (required)")
	flag.StringVar(&cfg.OpenMeteoBaseURL, "open-meteo-url", getEnv("OPEN_METEO_BASE_URL", ""), "Open-Meteo base URL (empty selects the public API)")

	// Forecasting
	flag.StringVar(&cfg.ForecastTimezone, "forecast-timezone", getEnv("FORECAST_TIMEZONE", "Europe/Zagreb"), "Timezone for forecast windows and cron triggers")

	// Logging
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.Parse()

	if cfg.DBUser == "" {
		fmt.Fprintln(os.Stderr, "Error: DB_USER is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		fmt.Fprintln(os.Stderr, "Error: DB_PASSWORD is required")
		os.Exit(1)
	}
	if cfg.DBName == "" {
		fmt.Fprintln(os.Stderr, "Error: DB_NAME is required")
		os.Exit(1)
	}
	if cfg.ModelManagerBaseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: MODEL_MANAGER_BASE_URL is required")
		os.Exit(1)
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
