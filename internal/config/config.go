package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Discord configuration
	Token   string
	AppID   string
	GuildID string

	// Storage
	StorageType string // "memory", "sqlite" or "postgres"
	DataDir     string
	PostgresURL string

	// External game API
	GameAPIURL      string
	GameAPIKey      string
	RechargeTimeout time.Duration

	// Redemption
	ExchangeRatio int64 // game currency units per point

	// Check-in rewards
	Rewards RewardConfig

	// Elasticsearch archive (optional)
	ElasticURL      string
	ElasticIndex    string
	ArchiveInterval time.Duration
	AmbiguousAge    time.Duration // how old an ambiguous transaction must be before it is reported

	// Environment
	Environment string // "development" or "production"
}

// RewardConfig holds the check-in reward rules
type RewardConfig struct {
	// Cap applied to the streak-length reward outside milestone days
	RewardCap int64 `yaml:"reward_cap"`
	// Milestones maps a streak length to a fixed reward that overrides the
	// capped streak reward (e.g. day 7, 14, 30)
	Milestones map[int]int64 `yaml:"milestones"`
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Only return error if file exists but couldn't be loaded
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	// Get working directory for resource paths
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg := &Config{
		Token:           os.Getenv("DISCORD_TOKEN"),
		AppID:           os.Getenv("APP_ID"),
		GuildID:         os.Getenv("GUILD_ID"),
		StorageType:     getEnvWithDefault("STORAGE_TYPE", "sqlite"),
		DataDir:         getEnvWithDefault("DATA_DIR", filepath.Join(wd, "data")),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		GameAPIURL:      os.Getenv("GAME_API_URL"),
		GameAPIKey:      os.Getenv("GAME_API_KEY"),
		RechargeTimeout: getDurationWithDefault("RECHARGE_TIMEOUT", 30*time.Second),
		ExchangeRatio:   getInt64WithDefault("EXCHANGE_RATIO", 10),
		ElasticURL:      os.Getenv("ELASTICSEARCH_URL"),
		ElasticIndex:    getEnvWithDefault("ELASTICSEARCH_INDEX", "gamebind_redemptions"),
		ArchiveInterval: getDurationWithDefault("ARCHIVE_INTERVAL", time.Hour),
		AmbiguousAge:    getDurationWithDefault("AMBIGUOUS_AGE", 10*time.Minute),
		Environment:     getEnvWithDefault("ENVIRONMENT", "development"),
	}

	// Load the check-in reward table, falling back to defaults
	rewards, err := loadRewards(getEnvWithDefault("REWARDS_FILE", filepath.Join(wd, "rewards.yml")))
	if err != nil {
		return nil, err
	}
	cfg.Rewards = rewards

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// DefaultRewards returns the built-in check-in reward table
func DefaultRewards() RewardConfig {
	return RewardConfig{
		RewardCap: 7,
		Milestones: map[int]int64{
			7:  20,
			14: 50,
			30: 120,
		},
	}
}

// loadRewards reads the reward table from a YAML file, returning defaults
// when the file does not exist
func loadRewards(path string) (RewardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRewards(), nil
		}
		return RewardConfig{}, fmt.Errorf("error reading rewards file: %w", err)
	}

	rewards := DefaultRewards()
	if err := yaml.Unmarshal(data, &rewards); err != nil {
		return RewardConfig{}, fmt.Errorf("error parsing rewards file %s: %w", path, err)
	}

	if rewards.RewardCap <= 0 {
		return RewardConfig{}, fmt.Errorf("rewards file %s: reward_cap must be positive", path)
	}
	for streak, reward := range rewards.Milestones {
		if streak <= 0 || reward <= 0 {
			return RewardConfig{}, fmt.Errorf("rewards file %s: milestone %d=%d must be positive", path, streak, reward)
		}
	}

	return rewards, nil
}

// validate checks if all required configuration is present
func (c *Config) validate() error {
	if c.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if c.AppID == "" {
		return fmt.Errorf("APP_ID is required")
	}
	if c.GameAPIURL == "" {
		return fmt.Errorf("GAME_API_URL is required")
	}
	if c.ExchangeRatio <= 0 {
		return fmt.Errorf("EXCHANGE_RATIO must be positive")
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return fmt.Errorf("POSTGRES_URL is required when STORAGE_TYPE=postgres")
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt64WithDefault returns an int64 environment variable or default
func getInt64WithDefault(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

// getDurationWithDefault returns a duration environment variable or default
func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
