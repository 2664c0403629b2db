package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/middleware"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Host        string
	Port        int
	Environment string
	LogLevel    string

	// Database settings
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	// Storage settings
	StorageProvider      string
	StorageLocalPath     string
	StorageLocalURL      string
	StorageS3Bucket      string
	StorageS3Region      string
	StorageS3BaseURL     string
	StorageS3PresignTTL  time.Duration
	StorageDriveFolderID string
	StorageDriveCreds    string
	StorageRetryAttempts int
	StorageRetryBase     time.Duration

	// Email settings
	EmailProvider        string
	EmailPostmarkToken   string
	EmailPostmarkAccount string
	EmailSendGridKey     string
	EmailFromAddress     string
	EmailFromName        string
	EmailSupportAddress  string

	// Order lookup settings
	OrdersBaseURL      string
	OrdersTokenURL     string
	OrdersClientID     string
	OrdersClientSecret string
	OrdersTimeout      time.Duration
	OrdersCacheTTL     time.Duration

	// Queue settings
	QueueWorkerCount     int
	QueuePollInterval    time.Duration
	QueueJobTimeout      time.Duration
	QueueShutdownTimeout time.Duration
	QueueMaxAttempts     int

	// Rate limit settings
	RateLimitRPS         float64
	RateLimitBurst       int
	UploadRatePerMinute  float64
	UploadRateBurst      int
	RateLimitIdleTimeout time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		// Server settings
		Host:        envString(getenv, "SERVER_HOST", "localhost"),
		Port:        envInt(getenv, "SERVER_PORT", 8080),
		Environment: envString(getenv, "ENVIRONMENT", "dev"),
		LogLevel:    envString(getenv, "LOG_LEVEL", "info"),

		// Database settings
		DBUser:     envString(getenv, "DB_USER", "postgres"),
		DBPassword: envString(getenv, "DB_PASSWORD", ""),
		DBHost:     envString(getenv, "DB_HOSTNAME", "localhost"),
		DBPort:     envString(getenv, "DB_PORT", "5432"),
		DBName:     envString(getenv, "DB_NAME", "handover"),

		// Storage settings
		StorageProvider:      envString(getenv, "STORAGE_PROVIDER", "local"),
		StorageLocalPath:     envString(getenv, "STORAGE_LOCAL_PATH", "./uploads"),
		StorageLocalURL:      envString(getenv, "STORAGE_LOCAL_URL", "http://localhost:8080/uploads"),
		StorageS3Bucket:      envString(getenv, "STORAGE_S3_BUCKET", ""),
		StorageS3Region:      envString(getenv, "STORAGE_S3_REGION", "us-east-1"),
		StorageS3BaseURL:     envString(getenv, "STORAGE_S3_BASE_URL", ""),
		StorageS3PresignTTL:  envDuration(getenv, "STORAGE_S3_PRESIGN_TTL", 7*24*time.Hour),
		StorageDriveFolderID: envString(getenv, "STORAGE_DRIVE_FOLDER_ID", ""),
		StorageDriveCreds:    envString(getenv, "STORAGE_DRIVE_CREDENTIALS", ""),
		StorageRetryAttempts: envInt(getenv, "STORAGE_RETRY_ATTEMPTS", 3),
		StorageRetryBase:     envDuration(getenv, "STORAGE_RETRY_BASE", time.Second),

		// Email settings
		EmailProvider:        envString(getenv, "EMAIL_PROVIDER", "log"),
		EmailPostmarkToken:   envString(getenv, "POSTMARK_SERVER_TOKEN", ""),
		EmailPostmarkAccount: envString(getenv, "POSTMARK_ACCOUNT_TOKEN", ""),
		EmailSendGridKey:     envString(getenv, "SENDGRID_API_KEY", ""),
		EmailFromAddress:     envString(getenv, "EMAIL_FROM_ADDRESS", "noreply@example.com"),
		EmailFromName:        envString(getenv, "EMAIL_FROM_NAME", "Vehicle Handover"),
		EmailSupportAddress:  envString(getenv, "EMAIL_SUPPORT_ADDRESS", ""),

		// Order lookup settings
		OrdersBaseURL:      envString(getenv, "ORDERS_API_URL", ""),
		OrdersTokenURL:     envString(getenv, "ORDERS_TOKEN_URL", ""),
		OrdersClientID:     envString(getenv, "ORDERS_CLIENT_ID", ""),
		OrdersClientSecret: envString(getenv, "ORDERS_CLIENT_SECRET", ""),
		OrdersTimeout:      envDuration(getenv, "ORDERS_TIMEOUT", 30*time.Second),
		OrdersCacheTTL:     envDuration(getenv, "ORDERS_CACHE_TTL", 10*time.Minute),

		// Queue settings
		QueueWorkerCount:     envInt(getenv, "QUEUE_WORKER_COUNT", 2),
		QueuePollInterval:    envDuration(getenv, "QUEUE_POLL_INTERVAL", time.Second),
		QueueJobTimeout:      envDuration(getenv, "QUEUE_JOB_TIMEOUT", 60*time.Second),
		QueueShutdownTimeout: 10 * time.Second,
		QueueMaxAttempts:     envInt(getenv, "QUEUE_MAX_ATTEMPTS", 3),

		// Rate limit settings
		RateLimitRPS:         envFloat(getenv, "RATE_LIMIT_RPS", 50),
		RateLimitBurst:       envInt(getenv, "RATE_LIMIT_BURST", 100),
		UploadRatePerMinute:  envFloat(getenv, "UPLOAD_RATE_PER_MINUTE", 60),
		UploadRateBurst:      envInt(getenv, "UPLOAD_RATE_BURST", 20),
		RateLimitIdleTimeout: time.Hour,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// validate checks provider requirements.
func (c *Config) validate() error {
	switch c.StorageProvider {
	case "local":
	case "s3":
		if c.StorageS3Bucket == "" {
			return fmt.Errorf("STORAGE_S3_BUCKET is required for the s3 provider")
		}
	case "drive":
		if c.StorageDriveFolderID == "" {
			return fmt.Errorf("STORAGE_DRIVE_FOLDER_ID is required for the drive provider")
		}
	default:
		return fmt.Errorf("unknown STORAGE_PROVIDER %q", c.StorageProvider)
	}

	switch c.EmailProvider {
	case "log", "postmark", "sendgrid":
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", c.EmailProvider)
	}

	if c.OrdersBaseURL != "" && (c.OrdersClientID == "" || c.OrdersTokenURL == "") {
		return fmt.Errorf("ORDERS_CLIENT_ID and ORDERS_TOKEN_URL are required with ORDERS_API_URL")
	}
	if c.IsProduction() && c.EmailProvider == "log" {
		return fmt.Errorf("EMAIL_PROVIDER must be set in production environment")
	}
	return nil
}

// StorageConfig returns the file storage settings.
func (c *Config) StorageConfig() handover.StorageConfig {
	return handover.StorageConfig{
		Provider:             c.StorageProvider,
		LocalPath:            c.StorageLocalPath,
		LocalURL:             c.StorageLocalURL,
		S3Bucket:             c.StorageS3Bucket,
		S3Region:             c.StorageS3Region,
		S3BaseURL:            c.StorageS3BaseURL,
		S3PresignTTL:         c.StorageS3PresignTTL,
		DriveFolderID:        c.StorageDriveFolderID,
		DriveCredentialsFile: c.StorageDriveCreds,
		RetryAttempts:        uint64(c.StorageRetryAttempts),
		RetryBase:            c.StorageRetryBase,
	}
}

// EmailConfig returns the mailer settings.
func (c *Config) EmailConfig() handover.EmailConfig {
	return handover.EmailConfig{
		Provider:             c.EmailProvider,
		FromAddress:          c.EmailFromAddress,
		FromName:             c.EmailFromName,
		SupportAddress:       c.EmailSupportAddress,
		PostmarkServerToken:  c.EmailPostmarkToken,
		PostmarkAccountToken: c.EmailPostmarkAccount,
		SendGridAPIKey:       c.EmailSendGridKey,
	}
}

// OrderConfig returns the order API settings.
func (c *Config) OrderConfig() handover.OrderConfig {
	return handover.OrderConfig{
		BaseURL:      c.OrdersBaseURL,
		TokenURL:     c.OrdersTokenURL,
		ClientID:     c.OrdersClientID,
		ClientSecret: c.OrdersClientSecret,
		Timeout:      c.OrdersTimeout,
		CacheTTL:     c.OrdersCacheTTL,
	}
}

// QueueConfig returns the worker pool settings.
func (c *Config) QueueConfig() handover.QueueConfig {
	return handover.QueueConfig{
		WorkerCount:     c.QueueWorkerCount,
		PollInterval:    c.QueuePollInterval,
		JobTimeout:      c.QueueJobTimeout,
		ShutdownTimeout: c.QueueShutdownTimeout,
		MaxAttempts:     c.QueueMaxAttempts,
	}
}

// RateLimitConfig returns the HTTP rate limit settings.
func (c *Config) RateLimitConfig() middleware.RateLimitConfig {
	cfg := middleware.DefaultRateLimitConfig()
	cfg.GlobalRate = c.RateLimitRPS
	cfg.GlobalBurst = c.RateLimitBurst
	cfg.UploadRate = c.UploadRatePerMinute
	cfg.UploadBurst = c.UploadRateBurst
	cfg.IdleTimeout = c.RateLimitIdleTimeout
	return cfg
}

// withDotEnv returns a getenv that falls back to the values in path.
// Variables already set in the environment win. A missing file is ignored.
func withDotEnv(getenv func(string) string, path string) (func(string) string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return getenv, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return values[key]
	}, nil
}

// Helper functions for loading environment variables with defaults.

func envString(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(getenv func(string) string, key string, defaultValue int) int {
	if value := getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func envFloat(getenv func(string) string, key string, defaultValue float64) float64 {
	if value := getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func envDuration(getenv func(string) string, key string, defaultValue time.Duration) time.Duration {
	if value := getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
