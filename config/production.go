// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aproductiontitle/capi-public/utils"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
	Vapi      VapiConfig      `json:"vapi"`
	Webhook   WebhookConfig   `json:"webhook"`
	Execution ExecutionConfig `json:"execution"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
	Cache     CacheConfig     `json:"cache"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	ProxyHeader     string        `json:"proxy_header"`
	TrustedProxies  []string      `json:"trusted_proxies"`
}

type VapiConfig struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

// WebhookConfig governs the callback surface exposed to the voice provider.
// Tokens embedded in callback URLs are HMAC-signed JWTs.
type WebhookConfig struct {
	BaseURL     string        `json:"base_url"`
	TokenSecret string        `json:"token_secret"`
	TokenTTL    time.Duration `json:"token_ttl"`
	TokenIssuer string        `json:"token_issuer"`
	DedupTTL    time.Duration `json:"dedup_ttl"`

	// EventRoute receives call lifecycle events; ErrorRoute receives
	// provider-side call failures. Both must answer the reachability probe
	// before a campaign validates, so both belong in RequiredRoutes.
	EventRoute     string   `json:"event_route"`
	ErrorRoute     string   `json:"error_route"`
	RequiredRoutes []string `json:"required_routes"`
}

type ExecutionConfig struct {
	LockTTL             time.Duration `json:"lock_ttl"`
	LockMaxAttempts     int           `json:"lock_max_attempts"`
	LockRetryBackoff    time.Duration `json:"lock_retry_backoff"`
	ValidationAttempts  int           `json:"validation_attempts"`
	ValidationBackoff   time.Duration `json:"validation_backoff"`
	BreakerMaxFailures  int           `json:"breaker_max_failures"`
	BreakerCooldown     time.Duration `json:"breaker_cooldown"`
	ContactBatchSize    int           `json:"contact_batch_size"`
	BatchConcurrency    int           `json:"batch_concurrency"`
	ProviderCallTimeout time.Duration `json:"provider_call_timeout"`
}

type SchedulerConfig struct {
	Enabled      bool          `json:"enabled"`
	TickInterval time.Duration `json:"tick_interval"`
	BatchLimit   int           `json:"batch_limit"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	RedisURL    string `json:"redis_url"`
	RedisDB     int    `json:"redis_db"`
	RedisPrefix string `json:"redis_prefix"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024), // 4MB
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			TrustedProxies:  getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
		Vapi: VapiConfig{
			BaseURL: getEnvString("VAPI_BASE_URL", "https://api.vapi.ai"),
			Timeout: getEnvDuration("VAPI_TIMEOUT", utils.ProviderCallTimeout),
		},
		Webhook: WebhookConfig{
			BaseURL:     getEnvString("WEBHOOK_BASE_URL", ""),
			TokenSecret: getEnvString("WEBHOOK_TOKEN_SECRET", ""),
			TokenTTL:    getEnvDuration("WEBHOOK_TOKEN_TTL", utils.WebhookTokenTTL),
			TokenIssuer: getEnvString("WEBHOOK_TOKEN_ISSUER", "capi"),
			DedupTTL:    getEnvDuration("WEBHOOK_DEDUP_TTL", utils.WebhookDedupTTL),
			EventRoute:  getEnvString("WEBHOOK_EVENT_ROUTE", "/api/v1/webhooks/vapi"),
			ErrorRoute:  getEnvString("WEBHOOK_ERROR_ROUTE", "/api/v1/webhooks/vapi-error"),
			RequiredRoutes: getEnvStringSlice("WEBHOOK_REQUIRED_ROUTES", []string{
				"/api/v1/webhooks/vapi",
				"/api/v1/webhooks/vapi-error",
			}),
		},
		Execution: ExecutionConfig{
			LockTTL:             getEnvDuration("EXECUTION_LOCK_TTL", utils.ExecutionLockTTL),
			LockMaxAttempts:     getEnvInt("EXECUTION_LOCK_MAX_ATTEMPTS", utils.LockMaxAttempts),
			LockRetryBackoff:    getEnvDuration("EXECUTION_LOCK_RETRY_BACKOFF", utils.LockRetryBackoff),
			ValidationAttempts:  getEnvInt("EXECUTION_VALIDATION_ATTEMPTS", utils.ValidationMaxAttempts),
			ValidationBackoff:   getEnvDuration("EXECUTION_VALIDATION_BACKOFF", utils.ValidationRetryBackoff),
			BreakerMaxFailures:  getEnvInt("EXECUTION_BREAKER_MAX_FAILURES", utils.BreakerMaxFailures),
			BreakerCooldown:     getEnvDuration("EXECUTION_BREAKER_COOLDOWN", utils.BreakerCooldown),
			ContactBatchSize:    getEnvInt("EXECUTION_CONTACT_BATCH_SIZE", utils.ContactBatchSize),
			BatchConcurrency:    getEnvInt("EXECUTION_BATCH_CONCURRENCY", 2),
			ProviderCallTimeout: getEnvDuration("EXECUTION_PROVIDER_CALL_TIMEOUT", utils.ProviderCallTimeout),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getEnvBool("SCHEDULER_ENABLED", true),
			TickInterval: getEnvDuration("SCHEDULER_TICK_INTERVAL", 1*time.Minute),
			BatchLimit:   getEnvInt("SCHEDULER_BATCH_LIMIT", 10),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Output:     getEnvString("LOG_OUTPUT", "both"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/capi/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "capi:"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}

	// Validate webhook configuration
	if cfg.Webhook.TokenSecret == "" {
		errors = append(errors, "WEBHOOK_TOKEN_SECRET is required")
	} else if len(cfg.Webhook.TokenSecret) < 32 {
		errors = append(errors, "WEBHOOK_TOKEN_SECRET must be at least 32 characters long")
	}
	if cfg.Webhook.TokenTTL <= 0 {
		errors = append(errors, "WEBHOOK_TOKEN_TTL must be positive")
	}

	// Validate execution configuration
	if cfg.Execution.LockTTL <= 0 {
		errors = append(errors, "EXECUTION_LOCK_TTL must be positive")
	}
	if cfg.Execution.LockMaxAttempts <= 0 {
		errors = append(errors, "EXECUTION_LOCK_MAX_ATTEMPTS must be positive")
	}
	if cfg.Execution.ValidationAttempts <= 0 {
		errors = append(errors, "EXECUTION_VALIDATION_ATTEMPTS must be positive")
	}
	if cfg.Execution.BreakerMaxFailures <= 0 {
		errors = append(errors, "EXECUTION_BREAKER_MAX_FAILURES must be positive")
	}
	if cfg.Execution.ContactBatchSize <= 0 {
		errors = append(errors, "EXECUTION_CONTACT_BATCH_SIZE must be positive")
	}
	if cfg.Execution.BatchConcurrency <= 0 {
		errors = append(errors, "EXECUTION_BATCH_CONCURRENCY must be positive")
	}

	// Validate scheduler configuration
	if cfg.Scheduler.Enabled && cfg.Scheduler.TickInterval <= 0 {
		errors = append(errors, "SCHEDULER_TICK_INTERVAL must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// GetDatabaseURL returns the database connection string
func (c *ProductionConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

// GetServerAddress returns the server listen address
func (c *ProductionConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
