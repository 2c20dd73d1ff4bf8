// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverFile     = "file"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
	StoreDriverMinIO    = "minio"
)

// Persist modes accepted by PERSIST_MODE.
const (
	PersistModeLocal = "local"
	PersistModeAsynq = "asynq"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetRateLimitRPS() float64
	GetRateLimitBurst() int
}

// JWTConfig provides optional token settings used to resolve caller identity.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides Redis connection settings.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq-backed persistence queue.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// ObjectStoreConfig provides settings for MinIO S3-compatible storage.
type ObjectStoreConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketSnapshots() string
	IsMinIOEnabled() bool
}

// StoreConfig selects and configures the job snapshot store.
type StoreConfig interface {
	DatabaseConfig
	RedisConfig
	ObjectStoreConfig
	GetStoreDriver() string
	GetStorePath() string
}

// PersistConfig controls how snapshots are written after mutations.
type PersistConfig interface {
	GetPersistMode() string
	GetPersistRetryAttempts() int
	GetPersistRetryBackoff() time.Duration
	GetPersistFlushInterval() time.Duration
}

// RealtimeConfig controls websocket connection behaviour.
type RealtimeConfig interface {
	GetWSSendBuffer() int
	GetWSPingInterval() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	CORSAllowAll         bool
	CORSOrigins          []string
	RateLimitRPS         float64
	RateLimitBurst       int
	JWTAccessSecret      string
	StoreDriver          string
	StorePath            string
	DatabaseURL          string
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	PersistMode          string
	PersistRetryAttempts int
	PersistRetryBackoff  time.Duration
	PersistFlushInterval time.Duration
	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	MinioBucketSnapshots string
	WSSendBuffer         int
	WSPingInterval       time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string        { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool      { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string   { return c.CORSOrigins }
func (c *Config) GetRateLimitRPS() float64   { return c.RateLimitRPS }
func (c *Config) GetRateLimitBurst() int     { return c.RateLimitBurst }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// StoreConfig implementation
func (c *Config) GetStoreDriver() string    { return c.StoreDriver }
func (c *Config) GetStorePath() string      { return c.StorePath }
func (c *Config) GetDatabaseURL() string    { return c.DatabaseURL }
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// ObjectStoreConfig implementation
func (c *Config) GetMinIOEndpoint() string        { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string       { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string       { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool            { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketSnapshots() string { return c.MinioBucketSnapshots }
func (c *Config) IsMinIOEnabled() bool            { return c.MinIOEndpoint != "" }

// PersistConfig implementation
func (c *Config) GetPersistMode() string                 { return c.PersistMode }
func (c *Config) GetPersistRetryAttempts() int           { return c.PersistRetryAttempts }
func (c *Config) GetPersistRetryBackoff() time.Duration  { return c.PersistRetryBackoff }
func (c *Config) GetPersistFlushInterval() time.Duration { return c.PersistFlushInterval }

// RealtimeConfig implementation
func (c *Config) GetWSSendBuffer() int             { return c.WSSendBuffer }
func (c *Config) GetWSPingInterval() time.Duration { return c.WSPingInterval }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		RateLimitRPS:         mustFloat(getEnv("RATE_LIMIT_RPS", "20")),
		RateLimitBurst:       mustInt(getEnv("RATE_LIMIT_BURST", "40")),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		StoreDriver:          strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", StoreDriverFile))),
		StorePath:            getEnv("STORE_PATH", "data/jobs.json"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "shopfloor"),
		AsynqConcurrency:     mustInt(getEnv("ASYNQ_CONCURRENCY", "1")),
		PersistMode:          strings.ToLower(strings.TrimSpace(getEnv("PERSIST_MODE", PersistModeLocal))),
		PersistRetryAttempts: mustInt(getEnv("PERSIST_RETRY_ATTEMPTS", "5")),
		PersistRetryBackoff:  mustDuration(getEnv("PERSIST_RETRY_BACKOFF", "200ms")),
		PersistFlushInterval: mustDuration(getEnv("PERSIST_FLUSH_INTERVAL", "30s")),
		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:          strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketSnapshots: getEnv("MINIO_BUCKET_SNAPSHOTS", "shopfloor-snapshots"),
		WSSendBuffer:         mustInt(getEnv("WS_SEND_BUFFER", "64")),
		WSPingInterval:       mustDuration(getEnv("WS_PING_INTERVAL", "25s")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverFile, StoreDriverSQLite:
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("STORE_PATH is required when STORE_DRIVER is %s", c.StoreDriver)
		}
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	case StoreDriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_DRIVER is redis")
		}
	case StoreDriverMinIO:
		if !c.IsMinIOEnabled() {
			return fmt.Errorf("MINIO_ENDPOINT is required when STORE_DRIVER is minio")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.PersistMode {
	case PersistModeLocal:
	case PersistModeAsynq:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when PERSIST_MODE is asynq")
		}
	default:
		return fmt.Errorf("unsupported PERSIST_MODE %q", c.PersistMode)
	}

	if c.PersistRetryAttempts < 1 {
		return fmt.Errorf("PERSIST_RETRY_ATTEMPTS must be at least 1")
	}
	if c.WSSendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
