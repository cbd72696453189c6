package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	JWT     JWTConfig
	Escrow  EscrowConfig
	Subsidy SubsidyConfig
	Log     LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

// StoreConfig selects and configures the persistence backend
type StoreConfig struct {
	// Backend is either "memory" or "postgres".
	Backend     string
	DatabaseURL string
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	SigningKey string
}

// EscrowConfig holds the fee schedule and lifecycle windows
type EscrowConfig struct {
	PlatformFeePercent   int64
	RentFeePercent       int64
	DisputePeriod        time.Duration
	GracePeriod          time.Duration
	OverdueCheckCooldown time.Duration
	ListingFee           int64
	ReceiptIssuer        string
	PlatformAccount      string
}

// SubsidyConfig holds the execution subsidy pool settings
type SubsidyConfig struct {
	Allowance int64
	Seed      int64
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// Load loads the application configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("SERVER_ADDR", ":8080"),
			Env:             getEnv("APP_ENV", "development"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Backend:     getEnv("STORE_BACKEND", "memory"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		JWT: JWTConfig{
			SigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Escrow: EscrowConfig{
			PlatformFeePercent:   getEnvAsInt64("PLATFORM_FEE_PERCENT", 2),
			RentFeePercent:       getEnvAsInt64("RENT_FEE_PERCENT", 1),
			DisputePeriod:        getEnvAsDuration("DISPUTE_PERIOD", 7*24*time.Hour),
			GracePeriod:          getEnvAsDuration("OVERDUE_GRACE_PERIOD", 3*24*time.Hour),
			OverdueCheckCooldown: getEnvAsDuration("OVERDUE_CHECK_COOLDOWN", 24*time.Hour),
			ListingFee:           getEnvAsInt64("LISTING_FEE", 25),
			ReceiptIssuer:        getEnv("RECEIPT_ISSUER", "escrow-service"),
			PlatformAccount:      getEnv("PLATFORM_ACCOUNT", "platform"),
		},
		Subsidy: SubsidyConfig{
			Allowance: getEnvAsInt64("SUBSIDY_ALLOWANCE", 2),
			Seed:      getEnvAsInt64("SUBSIDY_SEED", 0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL required for postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Escrow.PlatformFeePercent < 0 || c.Escrow.RentFeePercent < 0 {
		return fmt.Errorf("config: fee percentages must not be negative")
	}
	return nil
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
