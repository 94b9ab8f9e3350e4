// Package config loads Flowcraft server configuration from environment
// variables, grounded on the teacher's cmd/server/config/config.go (plain
// getEnv/getEnvInt helpers, a struct per concern, sane local defaults).
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment-driven setting cmd/flowcraft needs.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Redis    RedisConfig
	Tracing  TracingConfig
	Auth     AuthConfig
}

// ServerConfig configures the HTTP control plane.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig configures the Postgres event store/checkpoint repository.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NATSConfig configures the distributed event bus.
type NATSConfig struct {
	URL string
}

// RedisConfig configures the distributed AsyncContextView.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TracingConfig configures the OpenTelemetry OTLP/HTTP exporter.
type TracingConfig struct {
	Enabled           bool
	CollectorEndpoint string
}

// AuthConfig configures JWT bearer authentication on the control plane.
type AuthConfig struct {
	Enabled bool
	Secret  string
}

// Load reads Config from the environment, defaulting every field to a value
// suitable for local development.
func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("HOST", "0.0.0.0"),
			Port: getEnvInt("PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "flowcraft"),
			Password: getEnv("DB_PASSWORD", "flowcraft"),
			Database: getEnv("DB_NAME", "flowcraft"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Tracing: TracingConfig{
			Enabled:           getEnvBool("TRACING_ENABLED", false),
			CollectorEndpoint: getEnv("OTEL_COLLECTOR_ENDPOINT", "localhost:4318"),
		},
		Auth: AuthConfig{
			Enabled: getEnvBool("AUTH_ENABLED", false),
			Secret:  getEnv("JWT_SECRET", "default-secret-change-in-production"),
		},
	}, nil
}

// ServerAddr returns the listen address for the HTTP server.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
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

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
