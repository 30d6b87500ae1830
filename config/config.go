package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Admin API
	AdminKeyHash string

	// Queue configuration
	PositionUpdateInterval time.Duration
	ReorderInterval        time.Duration
	AdvanceBatchSize       int

	// Admission gate
	IPWindow    time.Duration
	IPThreshold int

	// Cleanup configuration
	CleanupInterval time.Duration
	StaleAfter      time.Duration
	FinishedTTL     time.Duration

	// Anti-bot rate limiting
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Admin
		AdminKeyHash: getEnv("ADMIN_KEY_HASH", ""),

		// Queue
		PositionUpdateInterval: getEnvAsDuration("POSITION_UPDATE_INTERVAL", "30s"),
		ReorderInterval:        getEnvAsDuration("REORDER_INTERVAL", "1m"),
		AdvanceBatchSize:       getEnvAsInt("ADVANCE_BATCH_SIZE", 1),

		// Admission gate
		IPWindow:    getEnvAsDuration("IP_WINDOW", "15m"),
		IPThreshold: getEnvAsInt("IP_THRESHOLD", 3),

		// Cleanup
		CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", "10m"),
		StaleAfter:      getEnvAsDuration("STALE_AFTER", "30m"),
		FinishedTTL:     getEnvAsDuration("FINISHED_TTL", "2h"),

		// Anti-bot
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
