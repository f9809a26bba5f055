package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Vision   VisionConfig
	Database DatabaseConfig
	Ingest   IngestConfig
	Server   ServerConfig
}

// VisionConfig holds the remote read service credentials and polling knobs.
type VisionConfig struct {
	APIKey          string
	Endpoint        string
	APIPath         string
	SubmitTimeout   time.Duration
	PollTimeout     time.Duration
	PollInterval    time.Duration
	MaxPolls        int
	PollBackoff     float64
	MaxPollInterval time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// IngestConfig controls directory scanning and the watch daemon.
type IngestConfig struct {
	Dirs       []string
	Debounce   time.Duration
	Workers    int
	JobTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Vision: VisionConfig{
			APIKey:          getEnv("AZURE_VISION_KEY", ""),
			Endpoint:        getEnv("AZURE_VISION_ENDPOINT", ""),
			APIPath:         getEnv("AZURE_VISION_API_PATH", "/vision/v3.2/read/analyze"),
			SubmitTimeout:   getEnvAsDuration("VISION_SUBMIT_TIMEOUT", 30*time.Second),
			PollTimeout:     getEnvAsDuration("VISION_POLL_TIMEOUT", 10*time.Second),
			PollInterval:    getEnvAsDuration("VISION_POLL_INTERVAL", time.Second),
			MaxPolls:        getEnvAsInt("VISION_MAX_POLLS", 60),
			PollBackoff:     getEnvAsFloat64("VISION_POLL_BACKOFF", 1.0),
			MaxPollInterval: getEnvAsDuration("VISION_MAX_POLL_INTERVAL", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Ingest: IngestConfig{
			Dirs:       getEnvAsList("SCAN_DIRS"),
			Debounce:   getEnvAsDuration("SCAN_DEBOUNCE", 500*time.Millisecond),
			Workers:    getEnvAsInt("SCAN_WORKERS", 4),
			JobTimeout: getEnvAsDuration("SCAN_JOB_TIMEOUT", 2*time.Minute),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the vision credentials and polling settings.
func (c *Config) Validate() error {
	if c.Vision.APIKey == "" {
		return ConfigError("AZURE_VISION_KEY is required")
	}
	if c.Vision.Endpoint == "" {
		return ConfigError("AZURE_VISION_ENDPOINT is required")
	}
	if c.Vision.MaxPolls < 1 {
		return ConfigError("VISION_MAX_POLLS must be at least 1")
	}
	if c.Vision.PollBackoff < 1 {
		return ConfigError("VISION_POLL_BACKOFF must be >= 1.0")
	}
	return nil
}

// ValidateIngest checks the settings needed by the watch daemon.
func (c *Config) ValidateIngest() error {
	if len(c.Ingest.Dirs) == 0 {
		return ConfigError("SCAN_DIRS is required")
	}
	if c.Ingest.Workers < 1 {
		return ConfigError("SCAN_WORKERS must be at least 1")
	}
	if c.Server.GRPCAddr == "" {
		return ConfigError("GRPC_ADDR is required")
	}
	return nil
}
