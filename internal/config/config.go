package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath    string
	LegacyCSVPath   string
	Port            int
	LogLevel        string
	DevMode         bool
	RefreshCron     string // cron spec for the scheduled price refresh
	MarketHoursGate bool   // skip scheduled refreshes outside the US session
	QuoteBaseURL    string
	SearchBaseURL   string
	DolarAPIURL     string
	RateChartURL    string
	QuoteTimeoutMs  int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvAsInt("PORT", 8080),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		DatabasePath:    getEnv("DATABASE_PATH", "./data/cartera.db"),
		LegacyCSVPath:   getEnv("LEGACY_CSV_PATH", "./cartera.csv"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RefreshCron:     getEnv("REFRESH_CRON", "0 */15 * * * *"), // every 15 minutes
		MarketHoursGate: getEnvAsBool("MARKET_HOURS_GATE", true),
		QuoteBaseURL:    getEnv("QUOTE_BASE_URL", "https://query1.finance.yahoo.com"),
		SearchBaseURL:   getEnv("SEARCH_BASE_URL", "https://query2.finance.yahoo.com"),
		DolarAPIURL:     getEnv("DOLARAPI_URL", "https://dolarapi.com"),
		RateChartURL:    getEnv("RATE_CHART_URL", "https://query2.finance.yahoo.com"),
		QuoteTimeoutMs:  getEnvAsInt("QUOTE_TIMEOUT_MS", 5000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be a valid TCP port, got %d", c.Port)
	}
	if c.QuoteTimeoutMs <= 0 {
		return fmt.Errorf("QUOTE_TIMEOUT_MS must be positive, got %d", c.QuoteTimeoutMs)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
