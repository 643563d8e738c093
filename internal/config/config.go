// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aristath/tierfolio/internal/archive"
	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/planning"
	"github.com/aristath/tierfolio/internal/modules/rebalancing"
	"github.com/aristath/tierfolio/internal/modules/sequencing"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the reports database (defaults to "./data", always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	PolicyFile   string // optional YAML tier policy overrides
	SnapshotFile string // snapshot read by the scheduled analysis job

	// AnalysisSchedule is a 6-field cron spec (with seconds). Empty disables scheduled runs.
	AnalysisSchedule string
	RetentionDays    int
	Currency         domain.Currency

	PartialFillPolicy      string
	CashReserveFloor       float64
	MinTradeValue          float64 // 0 derives the minimum from transaction costs
	TransactionCostFixed   float64
	TransactionCostPercent float64

	Archive *ArchiveConfig
}

// ArchiveConfig holds S3-compatible object storage settings (config package version)
type ArchiveConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// ToArchiveConfig converts config.ArchiveConfig to archive.Config
func (c *ArchiveConfig) ToArchiveConfig() archive.Config {
	return archive.Config{
		Bucket:          c.Bucket,
		Endpoint:        c.Endpoint,
		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		Prefix:          c.Prefix,
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TIERFOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:                absDataDir,
		Port:                   getEnvAsInt("GO_PORT", 8001),
		DevMode:                getEnvAsBool("DEV_MODE", false),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		PolicyFile:             getEnv("POLICY_FILE", ""),
		SnapshotFile:           getEnv("SNAPSHOT_FILE", ""),
		AnalysisSchedule:       getEnv("ANALYSIS_SCHEDULE", ""),
		RetentionDays:          getEnvAsInt("RUN_RETENTION_DAYS", 90),
		Currency:               domain.Currency(getEnv("BASE_CURRENCY", string(domain.CurrencyEUR))),
		PartialFillPolicy:      getEnv("PARTIAL_FILL_POLICY", string(sequencing.PolicyAutomatic)),
		CashReserveFloor:       getEnvAsFloat("CASH_RESERVE_FLOOR", 0),
		MinTradeValue:          getEnvAsFloat("MIN_TRADE_VALUE", 0),
		TransactionCostFixed:   getEnvAsFloat("TRANSACTION_COST_FIXED", 2.0),
		TransactionCostPercent: getEnvAsFloat("TRANSACTION_COST_PERCENT", 0.002),
		Archive:                loadArchiveConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadArchiveConfig() *ArchiveConfig {
	return &ArchiveConfig{
		Bucket:          getEnv("ARCHIVE_BUCKET", ""),
		Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
		Region:          getEnv("ARCHIVE_REGION", "auto"),
		AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
		Prefix:          getEnv("ARCHIVE_PREFIX", "tierfolio"),
	}
}

// Validate checks enum and numeric ranges
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be between 1 and 65535, got %d", c.Port)
	}

	if _, err := sequencing.ParsePartialFillPolicy(c.PartialFillPolicy); err != nil {
		return fmt.Errorf("PARTIAL_FILL_POLICY: %w", err)
	}

	for name, v := range map[string]float64{
		"CASH_RESERVE_FLOOR":       c.CashReserveFloor,
		"MIN_TRADE_VALUE":          c.MinTradeValue,
		"TRANSACTION_COST_FIXED":   c.TransactionCostFixed,
		"TRANSACTION_COST_PERCENT": c.TransactionCostPercent,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, v)
		}
	}
	if c.TransactionCostPercent >= 1 {
		return fmt.Errorf("TRANSACTION_COST_PERCENT is a fraction and must be below 1, got %v", c.TransactionCostPercent)
	}

	if c.RetentionDays < 0 {
		return fmt.Errorf("RUN_RETENTION_DAYS must not be negative, got %d", c.RetentionDays)
	}

	if c.AnalysisSchedule != "" {
		if c.SnapshotFile == "" {
			return fmt.Errorf("ANALYSIS_SCHEDULE requires SNAPSHOT_FILE")
		}
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.AnalysisSchedule); err != nil {
			return fmt.Errorf("invalid ANALYSIS_SCHEDULE %q: %w", c.AnalysisSchedule, err)
		}
	}

	if c.Archive != nil && c.Archive.Bucket != "" {
		if c.Archive.AccessKeyID == "" || c.Archive.SecretAccessKey == "" {
			return fmt.Errorf("ARCHIVE_BUCKET requires ARCHIVE_ACCESS_KEY_ID and ARCHIVE_SECRET_ACCESS_KEY")
		}
	}

	return nil
}

// Retention returns how long stored runs are kept. Zero keeps them forever.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// TransactionCost returns the configured commission schedule
func (c *Config) TransactionCost() domain.TransactionCost {
	return domain.TransactionCost{
		Fixed:   c.TransactionCostFixed,
		Percent: c.TransactionCostPercent,
	}
}

// ToPlanningConfig builds the engine settings from the environment values.
// Invalid policy names were rejected by Validate, so the parse error is ignored.
func (c *Config) ToPlanningConfig() planning.Config {
	cfg := planning.DefaultConfig()

	minTrade := c.MinTradeValue
	if minTrade == 0 {
		minTrade = rebalancing.MinTradeAmountFor(c.TransactionCost())
	}
	cfg.Rebalancing.MinTradeValue = minTrade

	policy, err := sequencing.ParsePartialFillPolicy(c.PartialFillPolicy)
	if err != nil {
		policy = sequencing.PolicyAutomatic
	}
	cfg.Sequencing.Policy = policy
	cfg.Sequencing.ReserveFloor = c.CashReserveFloor
	cfg.Compliance.CashFloor = c.CashReserveFloor
	cfg.Sequencing.Cost = c.TransactionCost()
	if c.Currency != "" {
		cfg.Sequencing.Currency = c.Currency
	}

	return cfg
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
