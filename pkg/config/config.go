package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	Env           string
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Triage        TriageConfig
	Batch         BatchConfig
	Queue         QueueConfig
	Notifications NotificationConfig
	OTEL          OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// TriageConfig holds the external triage service and simulator settings
type TriageConfig struct {
	EndpointURL string
	Simulation  bool
	// SimulatorCapacity is how many requests the simulator approves per batch.
	SimulatorCapacity int
	SimulatorJitter   int
	Timeout           time.Duration
}

// BatchConfig holds the recurring batch schedule
type BatchConfig struct {
	SchedulerEnabled bool
	Schedule         string
	Timezone         string
	LockTTL          time.Duration
}

// QueueConfig holds the operator queue runtime settings
type QueueConfig struct {
	CacheBackend string
	CacheDir     string
	CacheTTL     time.Duration
}

// NotificationConfig selects the outbound messaging transport
type NotificationConfig struct {
	Transport   string
	GatewayURL  string
	SQSQueueURL string
	Timeout     time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
			// Wildcard suits development only; set ALLOWED_ORIGINS in production
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "outpatient_scheduling"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Triage: TriageConfig{
			EndpointURL:       getEnv("TRIAGE_ENDPOINT_URL", ""),
			Simulation:        getEnvAsBool("TRIAGE_SIMULATION", false),
			SimulatorCapacity: getEnvAsInt("TRIAGE_SIM_CAPACITY", 170),
			SimulatorJitter:   getEnvAsInt("TRIAGE_SIM_JITTER", 2),
			Timeout:           getEnvAsDuration("TRIAGE_TIMEOUT", 30*time.Second),
		},
		Batch: BatchConfig{
			SchedulerEnabled: getEnvAsBool("BATCH_SCHEDULER_ENABLED", true),
			Schedule:         getEnv("BATCH_SCHEDULE", "0 6 * * 1"),
			Timezone:         getEnv("BATCH_TIMEZONE", "UTC"),
			LockTTL:          getEnvAsDuration("BATCH_LOCK_TTL", 15*time.Minute),
		},
		Queue: QueueConfig{
			CacheBackend: strings.ToLower(getEnv("QUEUE_CACHE_BACKEND", "file")),
			CacheDir:     getEnv("QUEUE_CACHE_DIR", "./var/queue-cache"),
			CacheTTL:     getEnvAsDuration("QUEUE_CACHE_TTL", 48*time.Hour),
		},
		Notifications: NotificationConfig{
			Transport:   strings.ToLower(getEnv("NOTIFY_TRANSPORT", "log")),
			GatewayURL:  getEnv("NOTIFY_GATEWAY_URL", ""),
			SQSQueueURL: getEnv("NOTIFY_SQS_QUEUE_URL", ""),
			Timeout:     getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "outpatient-scheduling"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at run time
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.Batch.Schedule); err != nil {
		return fmt.Errorf("invalid BATCH_SCHEDULE %q: %w", c.Batch.Schedule, err)
	}
	if _, err := time.LoadLocation(c.Batch.Timezone); err != nil {
		return fmt.Errorf("invalid BATCH_TIMEZONE %q: %w", c.Batch.Timezone, err)
	}
	if c.Triage.SimulatorCapacity < 0 {
		return fmt.Errorf("TRIAGE_SIM_CAPACITY must not be negative")
	}
	if c.Triage.SimulatorJitter < 0 || c.Triage.SimulatorJitter > 9 {
		return fmt.Errorf("TRIAGE_SIM_JITTER must be between 0 and 9")
	}
	if c.Triage.Timeout <= 0 {
		return fmt.Errorf("TRIAGE_TIMEOUT must be positive")
	}
	switch c.Queue.CacheBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("unknown QUEUE_CACHE_BACKEND %q", c.Queue.CacheBackend)
	}
	switch c.Notifications.Transport {
	case "log", "http", "sqs":
	default:
		return fmt.Errorf("unknown NOTIFY_TRANSPORT %q", c.Notifications.Transport)
	}
	return nil
}

// UseTriageSimulator reports whether the local simulator replaces the live service
func (c *TriageConfig) UseTriageSimulator() bool {
	return c.Simulation || strings.TrimSpace(c.EndpointURL) == ""
}

// Location returns the timezone the batch schedule and queue days are evaluated in
func (c *BatchConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvAsDuration accepts Go durations ("45s") or plain seconds ("45")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
