package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the catalog sync service
type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	DatabaseURL string

	// ERP source API
	SourceBaseURL   string
	SourceAPIToken  string
	SourceTimeout   time.Duration
	SourcePageSize  int
	SourceRateLimit int // requests per second

	// Sync settings
	SyncTimeout           time.Duration
	DefaultShippingCost   float64
	DeactivationBatchSize int
	RecalcChunkSize       int
	ProgressBatchSize     int
}

// Load loads configuration from environment variables
func Load() *Config {
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := getEnv("DB_PASSWORD", "postgres")
		dbName := getEnv("DB_NAME", "catalog_sync")
		dbSSLMode := getEnv("DB_SSLMODE", "disable")

		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode)
	}

	config := &Config{
		Port:        getEnv("PORT", "8097"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DatabaseURL: databaseURL,

		// ERP source API
		SourceBaseURL:   getEnv("SOURCE_API_URL", ""),
		SourceAPIToken:  getEnv("SOURCE_API_TOKEN", ""),
		SourceTimeout:   getEnvAsDuration("SOURCE_TIMEOUT", 30*time.Second),
		SourcePageSize:  getEnvAsInt("SOURCE_PAGE_SIZE", 500),
		SourceRateLimit: getEnvAsInt("SOURCE_RATE_LIMIT", 5),

		// Sync settings
		SyncTimeout:           getEnvAsDuration("SYNC_TIMEOUT", 2*time.Hour),
		DefaultShippingCost:   getEnvAsFloat("DEFAULT_SHIPPING_COST", 0),
		DeactivationBatchSize: getEnvAsInt("DEACTIVATION_BATCH_SIZE", 50),
		RecalcChunkSize:       getEnvAsInt("RECALC_CHUNK_SIZE", 500),
		ProgressBatchSize:     getEnvAsInt("PROGRESS_BATCH_SIZE", 100),
	}

	// Validate required fields
	if config.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	if config.SourceBaseURL == "" {
		log.Println("Warning: SOURCE_API_URL not set, sync runs will fail to fetch")
	}

	return config
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
