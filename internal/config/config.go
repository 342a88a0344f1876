// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	DevMode  bool
	LogLevel string

	// Credential encryption. Keys are hex-encoded 32-byte AES keys indexed
	// by a single-byte key id; ActiveKeyID selects the key used for new
	// ciphertexts while older keys remain available for decryption.
	CredentialKeys map[byte]string
	ActiveKeyID    byte

	// Sync policy
	MinSyncInterval   time.Duration // Minimum interval between unforced syncs
	DefaultSyncWindow time.Duration // Transaction sync window when no range given
	ProviderTimeout   time.Duration // Per-call timeout for provider HTTP fetches

	// Connection cache
	CacheProviderTTL time.Duration

	// File import progress reporting
	ProgressRecordInterval  int // Emit progress every N records
	ProgressPercentInterval int // Or every N percent, whichever fires first

	// Provider endpoints
	TradernetBaseURL string
	SchwabBaseURL    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("AGGREGATOR_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8002),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CredentialKeys: map[byte]string{},
		ActiveKeyID:    byte(getEnvAsInt("CREDENTIAL_ACTIVE_KEY_ID", 1)),

		MinSyncInterval:   getEnvAsDuration("MIN_SYNC_INTERVAL", 5*time.Minute),
		DefaultSyncWindow: getEnvAsDuration("DEFAULT_SYNC_WINDOW", 30*24*time.Hour),
		ProviderTimeout:   getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),

		CacheProviderTTL: time.Duration(getEnvAsInt("CACHE_PROVIDER_TTL_SECONDS", 300)) * time.Second,

		ProgressRecordInterval:  getEnvAsInt("PROGRESS_RECORD_INTERVAL", 100),
		ProgressPercentInterval: getEnvAsInt("PROGRESS_PERCENT_INTERVAL", 5),

		TradernetBaseURL: getEnv("TRADERNET_BASE_URL", "https://tradernet.com/api"),
		SchwabBaseURL:    getEnv("SCHWAB_BASE_URL", "https://api.schwabapi.com/trader/v1"),
	}

	// Credential keys: CREDENTIAL_KEY_1 .. CREDENTIAL_KEY_255, hex-encoded
	for id := 1; id <= 255; id++ {
		if key := os.Getenv(fmt.Sprintf("CREDENTIAL_KEY_%d", id)); key != "" {
			cfg.CredentialKeys[byte(id)] = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.ProgressRecordInterval <= 0 {
		return fmt.Errorf("PROGRESS_RECORD_INTERVAL must be positive")
	}
	if c.ProgressPercentInterval <= 0 {
		return fmt.Errorf("PROGRESS_PERCENT_INTERVAL must be positive")
	}
	if c.MinSyncInterval < 0 {
		return fmt.Errorf("MIN_SYNC_INTERVAL must not be negative")
	}
	// Credential keys are optional in dev mode (a throwaway key is generated
	// at startup); required otherwise.
	if !c.DevMode && len(c.CredentialKeys) == 0 {
		return fmt.Errorf("at least one CREDENTIAL_KEY_<id> is required outside dev mode")
	}
	if len(c.CredentialKeys) > 0 {
		if _, ok := c.CredentialKeys[c.ActiveKeyID]; !ok {
			return fmt.Errorf("CREDENTIAL_ACTIVE_KEY_ID %d has no matching CREDENTIAL_KEY_%d", c.ActiveKeyID, c.ActiveKeyID)
		}
	}
	return nil
}

// Helper functions
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
