package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Outbox      OutboxConfig
	Idempotency IdempotencyConfig
	Totals      TotalsConfig
}

// OutboxConfig controls the relay poller.
type OutboxConfig struct {
	Stream         string
	PollInterval   time.Duration
	BatchSize      int
	MaxRetries     int
	PublishTimeout time.Duration
	Retention      time.Duration
	LeaderLockTTL  time.Duration
}

// IdempotencyConfig controls the webhook deduplication window.
type IdempotencyConfig struct {
	TTL      time.Duration
	CacheTTL time.Duration
}

// TotalsConfig controls the totals cache tier.
type TotalsConfig struct {
	CacheTTL        time.Duration
	RefreshInterval time.Duration
	ConsumerGroup   string
	ConsumerName    string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "fundway"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "fundway"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Outbox: OutboxConfig{
			Stream:         getenv("OUTBOX_STREAM", "fundway:events"),
			PollInterval:   getenvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
			BatchSize:      getenvInt("OUTBOX_BATCH_SIZE", 100),
			MaxRetries:     getenvInt("OUTBOX_MAX_RETRIES", 10),
			PublishTimeout: getenvDuration("OUTBOX_PUBLISH_TIMEOUT", 3*time.Second),
			Retention:      getenvDuration("OUTBOX_RETENTION", 7*24*time.Hour),
			LeaderLockTTL:  getenvDuration("OUTBOX_LEADER_LOCK_TTL", 30*time.Second),
		},
		Idempotency: IdempotencyConfig{
			TTL:      getenvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
			CacheTTL: getenvDuration("IDEMPOTENCY_CACHE_TTL", time.Hour),
		},
		Totals: TotalsConfig{
			CacheTTL:        getenvDuration("TOTALS_CACHE_TTL", 30*time.Second),
			RefreshInterval: getenvDuration("TOTALS_REFRESH_INTERVAL", time.Minute),
			ConsumerGroup:   getenv("TOTALS_CONSUMER_GROUP", "totals"),
			ConsumerName:    getenv("TOTALS_CONSUMER_NAME", defaultConsumerName()),
		},
	}
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "totals-consumer"
	}
	return host
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
