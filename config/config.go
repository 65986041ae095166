package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port       string
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	FinnhubAPIKey  string
	FinnhubBaseURL string

	RefreshInterval        time.Duration
	FetchTimeout           time.Duration
	CacheTTL               time.Duration
	MaxConsecutiveFailures int

	DefaultSymbols []string
	Environment    string
}

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:       getEnv("PORT", "8080"),
		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "watchlist_db"),
		SQLitePath: getEnv("SQLITE_PATH", "watchlist.db"),

		FinnhubAPIKey:  getEnv("FINNHUB_API_KEY", ""),
		FinnhubBaseURL: getEnv("FINNHUB_BASE_URL", ""),

		RefreshInterval:        getEnvDuration("REFRESH_INTERVAL", time.Minute),
		FetchTimeout:           getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		CacheTTL:               getEnvDuration("CACHE_TTL", 5*time.Minute),
		MaxConsecutiveFailures: getEnvInt("MAX_CONSECUTIVE_FAILURES", 3),

		DefaultSymbols: splitSymbols(getEnv("DEFAULT_SYMBOLS", "")),
		Environment:    getEnv("ENVIRONMENT", "development"),
	}

	if config.DBDriver != "postgres" && config.DBDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (want postgres or sqlite)", config.DBDriver)
	}

	return config, nil
}

// InitDB initializes the database connection for the configured driver
func InitDB(cfg *Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	var db *gorm.DB
	var err error
	switch cfg.DBDriver {
	case "sqlite":
		log.Printf("Connecting to sqlite database: %s", cfg.SQLitePath)
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormConfig)
	default:
		// Log connection info (masked for security)
		log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
			maskHost(cfg.DBHost),
			cfg.DBPort,
			cfg.DBUser,
			cfg.DBName,
		)

		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=require TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	}
	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// splitSymbols parses a comma-separated symbol list, dropping blanks
func splitSymbols(raw string) []string {
	if raw == "" {
		return nil
	}
	var symbols []string
	for _, part := range strings.Split(raw, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	return symbols
}
