package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	NumWorkers  int    `yaml:"num_workers"`

	Webhook   WebhookConfig   `yaml:"webhook"`
	Retention RetentionConfig `yaml:"retention"`
}

// WebhookConfig controls outbound delivery.
type WebhookConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBase      time.Duration `yaml:"retry_base"`
	UserAgent      string        `yaml:"user_agent"`
	DurableRetries bool          `yaml:"durable_retries"`
}

// RetentionConfig bounds how long delivery records are kept.
type RetentionConfig struct {
	MaxAge             time.Duration `yaml:"max_age"`
	MaxPerSubscription int           `yaml:"max_per_subscription"`
	Interval           time.Duration `yaml:"interval"`
	// StaleRetryAfter is how long past its due time a pending record may sit
	// before it is failed as lost. Zero disables the check.
	StaleRetryAfter time.Duration `yaml:"stale_retry_after"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:       "8080",
		NumWorkers: 50,
		Webhook: WebhookConfig{
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
			RetryBase:   time.Second,
			UserAgent:   "TaskFlow-Webhook/1.0",
		},
		Retention: RetentionConfig{
			MaxAge:             30 * 24 * time.Hour,
			MaxPerSubscription: 1000,
			Interval:           time.Hour,
			StaleRetryAfter:    10 * time.Minute,
		},
	}
}

// Load reads configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and finally environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.NumWorkers = getEnvInt("NUM_WORKERS", cfg.NumWorkers)

	cfg.Webhook.Timeout = getEnvDuration("WEBHOOK_TIMEOUT", cfg.Webhook.Timeout)
	cfg.Webhook.MaxAttempts = getEnvInt("WEBHOOK_MAX_ATTEMPTS", cfg.Webhook.MaxAttempts)
	cfg.Webhook.RetryBase = getEnvDuration("WEBHOOK_RETRY_BASE", cfg.Webhook.RetryBase)
	cfg.Webhook.UserAgent = getEnv("WEBHOOK_USER_AGENT", cfg.Webhook.UserAgent)
	cfg.Webhook.DurableRetries = getEnvBool("DURABLE_RETRIES", cfg.Webhook.DurableRetries)

	if days := getEnvInt("LOG_RETENTION_DAYS", 0); days > 0 {
		cfg.Retention.MaxAge = time.Duration(days) * 24 * time.Hour
	}
	cfg.Retention.MaxPerSubscription = getEnvInt("LOG_MAX_PER_SUBSCRIPTION", cfg.Retention.MaxPerSubscription)
	cfg.Retention.Interval = getEnvDuration("LOG_RETENTION_INTERVAL", cfg.Retention.Interval)
	cfg.Retention.StaleRetryAfter = getEnvDuration("LOG_STALE_RETRY_AFTER", cfg.Retention.StaleRetryAfter)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the delivery pipeline cannot run with.
func (c *Config) Validate() error {
	if c.NumWorkers <= 0 {
		return fmt.Errorf("NUM_WORKERS must be positive, got %d", c.NumWorkers)
	}
	if c.Webhook.Timeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be positive")
	}
	if c.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be at least 1, got %d", c.Webhook.MaxAttempts)
	}
	if c.Webhook.RetryBase <= 0 {
		return fmt.Errorf("WEBHOOK_RETRY_BASE must be positive")
	}
	if c.Webhook.DurableRetries && c.RedisURL == "" {
		return fmt.Errorf("DURABLE_RETRIES requires REDIS_URL")
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
