package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Service   ServiceConfig
	Server    ServerConfig
	Database  DatabaseConfig
	OCR       ServiceEndpoint
	Search    ServiceEndpoint
	Reasoning ReasoningConfig
	Storage   StorageConfig
	NATS      NATSConfig
	Redis     RedisConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ServiceEndpoint is a generic HTTP collaborator endpoint.
type ServiceEndpoint struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ReasoningConfig holds the reasoning (LLM) service settings.
type ReasoningConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// StorageConfig holds blob storage settings.
type StorageConfig struct {
	Bucket          string
	CredentialsJSON string
}

// NATSConfig holds the event bus settings. URL may be empty, in which case
// lifecycle events are not published.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// RedisConfig holds the dedup lock settings. Addr may be empty, in which case
// the store's unique constraint is the only serialization point.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "be-ap-capture"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("HTTP_PORT", 8086),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxConns:        int32(getEnvInt("DB_MAX_CONNS", 20)),
			MinConns:        int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
		},
		OCR: ServiceEndpoint{
			BaseURL: getEnv("OCR_URL", "http://localhost:9091"),
			APIKey:  os.Getenv("OCR_API_KEY"),
			Timeout: getEnvDuration("OCR_TIMEOUT", 60*time.Second),
		},
		Search: ServiceEndpoint{
			BaseURL: getEnv("SEARCH_URL", "http://localhost:9092"),
			APIKey:  os.Getenv("SEARCH_API_KEY"),
			Timeout: getEnvDuration("SEARCH_TIMEOUT", 10*time.Second),
		},
		Reasoning: ReasoningConfig{
			BaseURL:     getEnv("REASONING_URL", "https://api.openai.com/v1"),
			APIKey:      os.Getenv("REASONING_API_KEY"),
			Model:       getEnv("REASONING_MODEL", "gpt-4o-mini"),
			Temperature: getEnvFloat("REASONING_TEMPERATURE", 0.1),
			Timeout:     getEnvDuration("REASONING_TIMEOUT", 45*time.Second),
		},
		Storage: StorageConfig{
			Bucket:          os.Getenv("GCS_BUCKET"),
			CredentialsJSON: os.Getenv("GCS_CREDENTIALS_JSON"),
		},
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "capture.invoice"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
