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
	LogLevel    string
	LogFormat   string

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

	GatewayBaseURL       string
	GatewaySecret        string
	GatewayTimeout       time.Duration
	GatewayCallbackToken string

	// Manual ledger entries older than this without verification are
	// reported as overdue by the sweep.
	VerificationOverdueAfter time.Duration

	SchedulerRunInterval        time.Duration
	SchedulerBatchSize          int
	SchedulerStaleCallbackAfter time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "donorbase"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "json"),

		DBType:        getenv("DATABASE_TYPE", "postgres"),
		DBHost:        getenv("DATABASE_HOST", "localhost"),
		DBPort:        getenv("DATABASE_PORT", "5432"),
		DBName:        getenv("DATABASE_NAME", "donorbase"),
		DBUser:        getenv("DATABASE_USER", "postgres"),
		DBPassword:    getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:     getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn: getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn: getenvInt("DATABASE_MAX_OPEN_CONN", 25),

		GatewayBaseURL: getenv("GATEWAY_BASE_URL", "https://api.gateway.example.com"),
		GatewaySecret:  strings.TrimSpace(getenv("GATEWAY_SECRET", "")),
		GatewayTimeout: getenvDuration("GATEWAY_TIMEOUT", 15*time.Second),

		VerificationOverdueAfter: getenvDuration("VERIFICATION_OVERDUE_AFTER", 7*24*time.Hour),

		SchedulerRunInterval:        getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
		SchedulerBatchSize:          getenvInt("SCHEDULER_BATCH_SIZE", 50),
		SchedulerStaleCallbackAfter: getenvDuration("SCHEDULER_STALE_CALLBACK_AFTER", 15*time.Minute),
	}

	return cfg
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
