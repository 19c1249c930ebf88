// Package config loads application configuration from defaults, an
// optional YAML file, and DRIVERDOCK_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	DBPath    string `mapstructure:"db-path"`
	FSMDBPath string `mapstructure:"fsm-db-path"`

	// Directories
	WorkDir   string `mapstructure:"work-dir"`
	BackupDir string `mapstructure:"backup-dir"`

	// Driver sources
	CatalogPath string `mapstructure:"catalog-path"`
	S3Bucket    string `mapstructure:"s3-bucket"`
	S3Region    string `mapstructure:"s3-region"`
	S3Prefix    string `mapstructure:"s3-prefix"`

	// Download queue
	MaxConcurrentDownloads int           `mapstructure:"max-concurrent-downloads"`
	SpeedLimit             int64         `mapstructure:"speed-limit"` // bytes/s, 0 = unlimited
	ChunkSize              int           `mapstructure:"chunk-size"`
	MaxFileSize            int64         `mapstructure:"max-file-size"`
	MaxTotalSize           int64         `mapstructure:"max-total-size"`
	DownloadTimeout        time.Duration `mapstructure:"download-timeout"`
	TransferRetries        uint64        `mapstructure:"transfer-retries"`
	ProgressBuffer         int           `mapstructure:"progress-buffer"`

	// Pipeline
	RetryCount         int           `mapstructure:"retry-count"`
	MinScore           int           `mapstructure:"min-score"`
	CacheTTL           time.Duration `mapstructure:"cache-ttl"`
	RollbackProtection bool          `mapstructure:"rollback-protection"`

	// Device filtering
	IncludeClasses []string `mapstructure:"scan-include-classes"`
	ExcludeClasses []string `mapstructure:"scan-exclude-classes"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("db-path", ".driverdock/driverdock.db")
	viper.SetDefault("fsm-db-path", ".driverdock/fsm.db")
	viper.SetDefault("work-dir", ".driverdock/downloads")
	viper.SetDefault("backup-dir", ".driverdock/backups")
	viper.SetDefault("catalog-path", "")
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-prefix", "catalog/")
	viper.SetDefault("max-concurrent-downloads", 3)
	viper.SetDefault("speed-limit", 0)
	viper.SetDefault("chunk-size", 64*1024)
	viper.SetDefault("max-file-size", 2*1024*1024*1024)
	viper.SetDefault("max-total-size", 20*1024*1024*1024)
	viper.SetDefault("download-timeout", 10*time.Minute)
	viper.SetDefault("transfer-retries", 3)
	viper.SetDefault("progress-buffer", 64)
	viper.SetDefault("retry-count", 3)
	viper.SetDefault("min-score", 100)
	viper.SetDefault("cache-ttl", 720*time.Hour)
	viper.SetDefault("rollback-protection", true)
	viper.SetDefault("scan-include-classes", []string{})
	viper.SetDefault("scan-exclude-classes", []string{})

	// Environment variables (will be DRIVERDOCK_DB_PATH, etc.)
	viper.SetEnvPrefix("DRIVERDOCK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.driverdock")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir cannot be empty")
	}
	if c.BackupDir == "" {
		return fmt.Errorf("backup-dir cannot be empty")
	}
	if c.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("max-concurrent-downloads must be positive")
	}
	if c.SpeedLimit < 0 {
		return fmt.Errorf("speed-limit must be non-negative")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk-size must be positive")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max-file-size must be positive")
	}
	if c.MaxTotalSize <= 0 {
		return fmt.Errorf("max-total-size must be positive")
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("retry-count must be non-negative")
	}
	if c.MinScore < 0 {
		return fmt.Errorf("min-score must be non-negative")
	}
	return nil
}
