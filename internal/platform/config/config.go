package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL  string
	IsProduction bool

	// Default approval threshold applied to tenants created without one.
	ApprovalThresholdDefault string

	// Version-conflict retry policy of the transaction coordinator.
	ConflictMaxRetries    int
	ConflictBackoffBase   time.Duration
	ConflictBackoffJitter float64

	// Capacity of the async audit retry queue.
	AuditQueueSize int
}

// LoadConfig loads configuration from environment variables and a .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("APPROVAL_THRESHOLD_DEFAULT", "10000")
	viper.SetDefault("CONFLICT_MAX_RETRIES", 5)
	viper.SetDefault("CONFLICT_BACKOFF_BASE_MS", 10)
	viper.SetDefault("CONFLICT_BACKOFF_JITTER", 0.5)
	viper.SetDefault("AUDIT_QUEUE_SIZE", 1024)

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.ApprovalThresholdDefault = viper.GetString("APPROVAL_THRESHOLD_DEFAULT")

	cfg.ConflictMaxRetries = viper.GetInt("CONFLICT_MAX_RETRIES")
	if cfg.ConflictMaxRetries <= 0 {
		cfg.ConflictMaxRetries = 5
	}
	cfg.ConflictBackoffBase = time.Duration(viper.GetInt("CONFLICT_BACKOFF_BASE_MS")) * time.Millisecond
	if cfg.ConflictBackoffBase <= 0 {
		cfg.ConflictBackoffBase = 10 * time.Millisecond
	}
	cfg.ConflictBackoffJitter = viper.GetFloat64("CONFLICT_BACKOFF_JITTER")
	if cfg.ConflictBackoffJitter < 0 || cfg.ConflictBackoffJitter > 1 {
		cfg.ConflictBackoffJitter = 0.5
	}

	cfg.AuditQueueSize = viper.GetInt("AUDIT_QUEUE_SIZE")
	if cfg.AuditQueueSize <= 0 {
		cfg.AuditQueueSize = 1024
	}

	return cfg, nil
}
