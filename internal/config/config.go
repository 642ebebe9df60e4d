// Package config loads process-level settings, following the donor's
// internal/config package: godotenv for local .env loading, plain
// environment variables for everything that does not need hot reload.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings read once at process start.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint  string
	MetricsEnable bool

	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime time.Duration

	RedisAddr string
	RedisDB   int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, applying a local .env file
// if present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_NAME", "pspcore"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		MetricsEnable:     getenvBool("METRICS_ENABLED", false),
		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "pspcore"),
		DBUser:            getenv("DB_USER", "pspcore"),
		DBPassword:        getenv("DB_PASSWORD", ""),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     getenvInt("DB_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DB_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: time.Duration(getenvInt("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           getenvInt("REDIS_DB", 0),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "json"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}
