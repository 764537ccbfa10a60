// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
}

// StoreConfig selects and configures the document-store backend.
type StoreConfig struct {
	Backend     string // "memory", "mongo" or "postgres"
	MongoURI    string
	MongoDB     string
	PostgresURI string
}

// CacheConfig configures the Redis-backed profile cache.
type CacheConfig struct {
	RedisAddr string
	TTL       time.Duration
}

// EngineConfig holds the discussion-engine tunables.
type EngineConfig struct {
	MaxCommentDepth int
	RootAdminUID    string // hardcoded root identity, always admin
	JWTSecret       string
	SweepInterval   time.Duration
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Store          *StoreConfig
	Cache          *CacheConfig
	Engine         *EngineConfig
	AllowedOrigins []string
	LogLevel       string
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
	}
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Silent failure if no .env exists, which is fine
	_ = godotenv.Load()

	serverConfig := DefaultConfig()

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			serverConfig.Port = port
		}
	}
	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}
	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}

	storeConfig := &StoreConfig{
		Backend:  getEnvOrDefault("STORE_BACKEND", "memory"),
		MongoURI: os.Getenv("MONGO_URI"),
		MongoDB:  getEnvOrDefault("MONGO_DB", "bayou"),
	}
	switch storeConfig.Backend {
	case "memory":
	case "mongo":
		if storeConfig.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI is required when STORE_BACKEND is mongo")
		}
	case "postgres":
		storeConfig.PostgresURI = os.Getenv("DATABASE_URL")
		if storeConfig.PostgresURI == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND: %s", storeConfig.Backend)
	}

	cacheConfig := &CacheConfig{
		RedisAddr: getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		TTL:       getDurationOrDefault("PROFILE_CACHE_TTL", 5*time.Minute),
	}

	engineConfig := &EngineConfig{
		MaxCommentDepth: getIntOrDefault("MAX_COMMENT_DEPTH", 12),
		RootAdminUID:    os.Getenv("ROOT_ADMIN_UID"),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", "bayou_dev_secret_do_not_use_in_production"),
		SweepInterval:   getDurationOrDefault("RECONCILE_SWEEP_INTERVAL", time.Minute),
	}

	config := &Config{
		Server:         serverConfig,
		Store:          storeConfig,
		Cache:          cacheConfig,
		Engine:         engineConfig,
		AllowedOrigins: []string{"*"},
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = splitAndTrim(origins)
	}

	return config, nil
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitAndTrim(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
