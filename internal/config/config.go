// Package config loads worker configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration settings for the de-identification
// worker, loaded from environment variables and/or a .env file via
// mapstructure tags.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"` // "development", "staging", "production"
	LogLevel    string `mapstructure:"LOG_LEVEL"`    // debug, info, warn, error
	LogFormat   string `mapstructure:"LOG_FORMAT"`   // "json" or "console"

	DBDriver          string        `mapstructure:"DB_DRIVER"`
	DBHost            string        `mapstructure:"DB_HOST"`
	DBPort            int           `mapstructure:"DB_PORT"`
	DBUser            string        `mapstructure:"DB_USER"`
	DBPassword        string        `mapstructure:"DB_PASSWORD"`
	DBName            string        `mapstructure:"DB_NAME"`
	DBSslMode         string        `mapstructure:"DB_SSL_MODE"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DBConnMaxIdleTime time.Duration `mapstructure:"DB_CONN_MAX_IDLE_TIME"`

	RedisURL    string `mapstructure:"REDIS_URL"`
	QueueName   string `mapstructure:"QUEUE_NAME"`
	Concurrency int    `mapstructure:"WORKER_CONCURRENCY"`

	GeminiAPIKey     string        `mapstructure:"GEMINI_API_KEY"`
	GeminiAPITimeout time.Duration `mapstructure:"GEMINI_API_TIMEOUT"`
	GcloudProject    string        `mapstructure:"GCLOUD_PROJECT"`

	StorageType       string `mapstructure:"STORAGE_TYPE"` // "cloud" or "local"
	PHIBucket         string `mapstructure:"PHI_BUCKET"`
	CleanBucket       string `mapstructure:"CLEAN_BUCKET"`
	LocalStorageRoot  string `mapstructure:"LOCAL_STORAGE_ROOT"`
	AWSRegion         string `mapstructure:"AWS_REGION"`
	FileEncryptionKey string `mapstructure:"FILE_ENCRYPTION_KEY"`
	MaxFileSizeMB     int64  `mapstructure:"MAX_FILE_SIZE_MB"`

	MaskPadPx            int           `mapstructure:"MASK_PAD_PX"`
	FuzzyMatchThreshold  int           `mapstructure:"FUZZY_THRESHOLD"`
	MatchConfidenceFloor float64       `mapstructure:"MATCH_CONFIDENCE_THRESHOLD"`
	BatchSize            int           `mapstructure:"BATCH_SIZE"`
	StreamingThreshold   int           `mapstructure:"STREAMING_THRESHOLD"`
	TaskTimeLimit        time.Duration `mapstructure:"TASK_TIME_LIMIT"`
	SoftTimeLimit        time.Duration `mapstructure:"SOFT_TIME_LIMIT"`
	MaxRetries           int           `mapstructure:"MAX_RETRIES"`
	RetryBaseDelay       time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	RetryMaxBackoff      time.Duration `mapstructure:"RETRY_MAX_BACKOFF"`

	StrictCustomLevel   bool `mapstructure:"STRICT_CUSTOM_LEVEL"`
	FailOpenOnBatchErr  bool `mapstructure:"FAIL_OPEN_ON_BATCH_ERROR"`
	MaskDebugMode       bool `mapstructure:"MASK_DEBUG_MODE"`
	DataRetention       time.Duration `mapstructure:"DATA_RETENTION"`
}

const developmentEnvironment = "development"

// LoadConfig reads configuration from a .env file at path (if present) and
// from environment variables, validates required fields, and fills in
// documented defaults for everything else.
func LoadConfig(ctx context.Context, path string) (cfg Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No .env file found, relying on environment variables.")
		} else {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err = viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DBDriver == "" {
		return Config{}, fmt.Errorf("environment variable DB_DRIVER is required")
	}
	if cfg.DBHost == "" {
		return Config{}, fmt.Errorf("environment variable DB_HOST is required")
	}
	if cfg.DBPort == 0 {
		return Config{}, fmt.Errorf("environment variable DB_PORT is required")
	}
	if cfg.DBUser == "" {
		return Config{}, fmt.Errorf("environment variable DB_USER is required")
	}
	if cfg.DBName == "" {
		return Config{}, fmt.Errorf("environment variable DB_NAME is required")
	}
	if cfg.DBSslMode == "" {
		return Config{}, fmt.Errorf("environment variable DB_SSL_MODE is required")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("environment variable REDIS_URL is required")
	}

	if cfg.FileEncryptionKey == "" && cfg.Environment != developmentEnvironment {
		return Config{}, fmt.Errorf("environment variable FILE_ENCRYPTION_KEY is required in non-development environments")
	}

	if cfg.StorageType == "" {
		cfg.StorageType = "local"
		log.Println("STORAGE_TYPE not set, defaulting to 'local'")
	}
	if cfg.StorageType == "cloud" {
		if cfg.PHIBucket == "" {
			return Config{}, fmt.Errorf("environment variable PHI_BUCKET is required when STORAGE_TYPE is 'cloud'")
		}
		if cfg.CleanBucket == "" {
			return Config{}, fmt.Errorf("environment variable CLEAN_BUCKET is required when STORAGE_TYPE is 'cloud'")
		}
		if cfg.AWSRegion == "" {
			return Config{}, fmt.Errorf("environment variable AWS_REGION is required when STORAGE_TYPE is 'cloud'")
		}
	}
	if cfg.StorageType == "local" && cfg.LocalStorageRoot == "" {
		cfg.LocalStorageRoot = "./data"
		log.Println("LOCAL_STORAGE_ROOT not set, defaulting to './data'")
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "deidentify"
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}
	if cfg.GeminiAPITimeout == 0 {
		cfg.GeminiAPITimeout = 30 * time.Second
	}
	if cfg.MaxFileSizeMB == 0 {
		cfg.MaxFileSizeMB = 100
	}
	if cfg.MaskPadPx == 0 {
		cfg.MaskPadPx = 5
	}
	if cfg.FuzzyMatchThreshold == 0 {
		cfg.FuzzyMatchThreshold = 2
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.StreamingThreshold == 0 {
		cfg.StreamingThreshold = 50
	}
	if cfg.TaskTimeLimit == 0 {
		cfg.TaskTimeLimit = 20 * time.Minute
	}
	if cfg.SoftTimeLimit == 0 {
		cfg.SoftTimeLimit = 18 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 5 * time.Second
	}
	if cfg.RetryMaxBackoff == 0 {
		cfg.RetryMaxBackoff = 10 * time.Minute
	}
	if cfg.DataRetention == 0 {
		cfg.DataRetention = 7 * 24 * time.Hour
	}
	if cfg.SoftTimeLimit > cfg.TaskTimeLimit {
		return Config{}, fmt.Errorf("SOFT_TIME_LIMIT (%s) must not exceed TASK_TIME_LIMIT (%s)", cfg.SoftTimeLimit, cfg.TaskTimeLimit)
	}

	select {
	case <-ctx.Done():
		return Config{}, ctx.Err()
	default:
	}

	return cfg, nil
}
