package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the quantity sync service
type Config struct {
	// Server
	Port               string
	Environment        string
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration

	// Database (optional, run history falls back to memory)
	DatabaseURL string

	// Redis (optional, run lock falls back to in-process)
	RedisURL string

	// NATS (optional, events disabled when empty)
	NATSURL string

	// GCP
	GCPProjectID string

	// Files
	StoresConfigPath string
	ResourcesDir     string
	LogsDir          string

	// Sync Settings
	SyncBatchSize         int
	SyncLookupConcurrency int
	SyncSubmitConcurrency int
	SyncBatchTimeout      time.Duration
	SyncLockTTL           time.Duration
	SyncLockWait          time.Duration
	SyncMaxRetries        int
	SyncRetryDelay        time.Duration
	AdjustmentReason      string
	ReferenceURIPrefix    string

	// Shopify
	ShopifyAPIVersion string
	ShopifyRateLimit  int // requests per second
	ShopifyTimeout    time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: databaseURL(),
		RedisURL:    getEnv("REDIS_URL", ""),
		NATSURL:     getEnv("NATS_URL", ""),

		GCPProjectID: getEnv("GCP_PROJECT_ID", ""),

		StoresConfigPath: getEnv("STORES_CONFIG", "config_stores.toml"),
		ResourcesDir:     getEnv("RESOURCES_DIR", "resources"),
		LogsDir:          getEnv("LOGS_DIR", "logs"),

		SyncBatchSize:         getEnvAsInt("SYNC_BATCH_SIZE", 250),
		SyncLookupConcurrency: getEnvAsInt("SYNC_LOOKUP_CONCURRENCY", 4),
		SyncSubmitConcurrency: getEnvAsInt("SYNC_SUBMIT_CONCURRENCY", 1),
		SyncBatchTimeout:      getEnvAsDuration("SYNC_BATCH_TIMEOUT", 60*time.Second),
		SyncLockTTL:           getEnvAsDuration("SYNC_LOCK_TTL", 30*time.Minute),
		SyncLockWait:          getEnvAsDuration("SYNC_LOCK_WAIT", 0),
		SyncMaxRetries:        getEnvAsInt("SYNC_MAX_RETRIES", 3),
		SyncRetryDelay:        getEnvAsDuration("SYNC_RETRY_DELAY", time.Second),
		AdjustmentReason:      getEnv("SYNC_ADJUSTMENT_REASON", "other"),
		ReferenceURIPrefix:    getEnv("SYNC_REFERENCE_URI_PREFIX", "logistics://quantity-sync/"),

		ShopifyAPIVersion: getEnv("SHOPIFY_API_VERSION", "2025-10"),
		ShopifyRateLimit:  getEnvAsInt("SHOPIFY_RATE_LIMIT", 2),
		ShopifyTimeout:    getEnvAsDuration("SHOPIFY_TIMEOUT", 30*time.Second),
	}
	cfg.normalize()
	return cfg
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// normalize replaces values that would stall the pipeline with defaults
func (c *Config) normalize() {
	if c.SyncBatchSize <= 0 {
		c.SyncBatchSize = 250
	}
	if c.SyncLookupConcurrency <= 0 {
		c.SyncLookupConcurrency = 1
	}
	if c.SyncSubmitConcurrency <= 0 {
		c.SyncSubmitConcurrency = 1
	}
	if c.ShopifyRateLimit <= 0 {
		c.ShopifyRateLimit = 2
	}
	if c.SyncMaxRetries < 0 {
		c.SyncMaxRetries = 0
	}
}

// databaseURL builds the connection string from DATABASE_URL or DB_* parts.
// It returns "" when no database is configured.
func databaseURL() string {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		return url
	}
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", ""),
		dbHost,
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "quantity_sync"),
		getEnv("DB_SSLMODE", "disable"))
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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
