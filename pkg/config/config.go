package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Dify       DifyConfig
	CompreFace CompreFaceConfig
	Relay      RelayConfig
	Redis      RedisConfig
	OTEL       OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins []string
}

// DifyConfig holds the conversational AI backend configuration
type DifyConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CompreFaceConfig holds the recognition backend configuration
type CompreFaceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RelayConfig holds the detection relay policy
type RelayConfig struct {
	DebounceWindow        time.Duration
	DebounceSweepInterval time.Duration
	DetectionLogCapacity  int
	FrameMaxBytes         int64
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

const defaultAllowedOrigins = "http://localhost:8888,http://localhost:8000,http://localhost:3000,http://localhost"

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("HOST", "0.0.0.0"),
			Port:           getEnvAsInt("PORT", 8787),
			Env:            getEnv("ENV", "production"),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", defaultAllowedOrigins),
		},
		Dify: DifyConfig{
			BaseURL: strings.TrimRight(getEnv("DIFY_API_URL", "https://api.dify.ai/v1"), "/"),
			APIKey:  getEnv("DIFY_API_KEY", ""),
			Timeout: getEnvAsDuration("DIFY_TIMEOUT", 0),
		},
		CompreFace: CompreFaceConfig{
			BaseURL: strings.TrimRight(getEnv("COMPREFACE_URL", "http://localhost:8000"), "/"),
			APIKey:  getEnv("COMPREFACE_API_KEY", ""),
			Timeout: getEnvAsDuration("COMPREFACE_TIMEOUT", 0),
		},
		Relay: RelayConfig{
			DebounceWindow:        time.Duration(getEnvAsInt("DEBOUNCE_WINDOW_MS", 3000)) * time.Millisecond,
			DebounceSweepInterval: getEnvAsDuration("DEBOUNCE_SWEEP_INTERVAL", time.Minute),
			DetectionLogCapacity:  getEnvAsInt("DETECTION_LOG_CAPACITY", 0),
			FrameMaxBytes:         int64(getEnvAsInt("FRAME_MAX_BYTES", 10<<20)),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "attendance-relay"),
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

// Validate rejects settings the relay cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Server.Port)
	}
	if c.Relay.DebounceWindow < 0 {
		return fmt.Errorf("DEBOUNCE_WINDOW_MS must not be negative")
	}
	if c.Relay.DetectionLogCapacity < 0 {
		return fmt.Errorf("DETECTION_LOG_CAPACITY must not be negative")
	}
	if c.Relay.FrameMaxBytes <= 0 {
		return fmt.Errorf("FRAME_MAX_BYTES must be positive")
	}
	return nil
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
