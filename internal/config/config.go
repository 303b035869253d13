package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	HTTPPort        string
	AppMode         string
	FiberPrefork    bool
	CORSAllowOrigin string
	PublicBaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KVPrefix      string

	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	WorkerBufferSize int
	WorkerBatchSize  int
	WorkerFlushEvery time.Duration

	EventFutureTolerance time.Duration

	WebhookTimeout      time.Duration
	SessionIdleTimeout  time.Duration
	SessionSweepEvery   time.Duration
	SubmissionRetention time.Duration
}

// Load reads configuration from environment variables with sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", ":8080"),
		AppMode:         strings.ToLower(getEnv("APP_MODE", "dev")),
		FiberPrefork:    parseBoolEnv("FIBER_PREFORK", false),
		CORSAllowOrigin: getEnv("CORS_ALLOW_ORIGINS", "*"),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       parseIntEnv("REDIS_DB", 0),
		KVPrefix:      os.Getenv("KV_PREFIX"),

		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "default"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),

		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    getEnv("MINIO_BUCKET", "forms"),
		MinIOUseSSL:    parseBoolEnv("MINIO_USE_SSL", false),

		WorkerBufferSize: parseIntEnv("WORKER_BUFFER_SIZE", 10000),
		WorkerBatchSize:  parseIntEnv("WORKER_BATCH_SIZE", 500),
		WorkerFlushEvery: parseDurationEnv("WORKER_FLUSH_EVERY", time.Second),

		EventFutureTolerance: parseDurationEnv("EVENT_FUTURE_TOLERANCE", 5*time.Minute),

		WebhookTimeout:      parseDurationEnv("WEBHOOK_TIMEOUT", 5*time.Second),
		SessionIdleTimeout:  parseDurationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweepEvery:   parseDurationEnv("SESSION_SWEEP_EVERY", time.Minute),
		SubmissionRetention: parseDurationEnv("SUBMISSION_RETENTION", 365*24*time.Hour),
	}

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}
	if cfg.WorkerBatchSize <= 0 || cfg.WorkerBufferSize <= 0 {
		return nil, fmt.Errorf("worker buffer and batch sizes must be positive")
	}
	if cfg.WorkerFlushEvery <= 0 {
		return nil, fmt.Errorf("WORKER_FLUSH_EVERY must be positive")
	}
	return cfg, nil
}

// ObjectStoreEnabled reports whether a MinIO endpoint was configured.
func (c *Config) ObjectStoreEnabled() bool {
	return c.MinIOEndpoint != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseBoolEnv(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseIntEnv(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
