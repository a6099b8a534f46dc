package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Ingestion     IngestionConfig
	OCR           OCRConfig
	Storage       StorageConfig
	Cache         CacheConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	AllowedOrigins     []string
	RateLimitPerSecond int
	RateLimitBurst     int
	ShutdownTimeout    time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
}

// IngestionConfig tunes the background job scheduler and the workers it drives.
type IngestionConfig struct {
	Workers         int
	QueueSize       int
	PollInterval    time.Duration
	MaxAttempts     int
	BackoffBase     time.Duration
	HandlerTimeout  time.Duration // 0 disables the per-job deadline
	StaleAfter      time.Duration
	DefaultCurrency string
}

type OCRConfig struct {
	TesseractPath string
	Language      string
	PSM           int
}

type StorageConfig struct {
	LocalPath string
}

type CacheConfig struct {
	DefaultTTL    time.Duration
	SweepSchedule string
}

// Load reads configuration from environment variables, after merging any .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 3001),
			AllowedOrigins:     []string{getEnv("FRONTEND_URL", "http://localhost:3000")},
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 10),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 20),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "finance-ingest"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Ingestion: IngestionConfig{
			Workers:         getEnvAsInt("INGEST_WORKERS", 4),
			QueueSize:       getEnvAsInt("INGEST_QUEUE_SIZE", 64),
			PollInterval:    getEnvAsDuration("INGEST_POLL_INTERVAL", time.Second),
			MaxAttempts:     getEnvAsInt("INGEST_MAX_ATTEMPTS", 3),
			BackoffBase:     getEnvAsDuration("INGEST_BACKOFF_BASE", 2*time.Second),
			HandlerTimeout:  getEnvAsDuration("INGEST_HANDLER_TIMEOUT", 0),
			StaleAfter:      getEnvAsDuration("INGEST_STALE_AFTER", 15*time.Minute),
			DefaultCurrency: getEnv("DEFAULT_CURRENCY", "INR"),
		},
		OCR: OCRConfig{
			TesseractPath: getEnv("TESSERACT_PATH", "tesseract"),
			Language:      getEnv("TESSERACT_LANG", "eng"),
			PSM:           getEnvAsInt("TESSERACT_PSM", 0),
		},
		Storage: StorageConfig{
			LocalPath: getEnv("UPLOAD_DIR", "./uploads"),
		},
		Cache: CacheConfig{
			DefaultTTL:    getEnvAsDuration("CACHE_TTL", 5*time.Minute),
			SweepSchedule: getEnv("CACHE_SWEEP_SCHEDULE", "*/10 * * * *"),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.Ingestion.Workers < 1 {
		return nil, fmt.Errorf("INGEST_WORKERS must be at least 1, got %d", cfg.Ingestion.Workers)
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
