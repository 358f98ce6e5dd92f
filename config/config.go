package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Quantmuse QuantmuseConfig     `yaml:"quantmuse"`
	Terminal  TerminalConfig      `yaml:"terminal"`
	RateLimit RateLimitConfig     `yaml:"rate_limit"`
	Login     LoginConfig         `yaml:"login"`
	Columns   map[string][]string `yaml:"columns"`
	Storage   StorageConfig       `yaml:"storage"`
	Logging   LoggingConfig       `yaml:"logging"`
}

type QuantmuseConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type TerminalConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	UserID         string               `yaml:"user_id"`
	Password       string               `yaml:"password"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type RateLimitConfig struct {
	MaxRequestsPerWindow int           `yaml:"max_requests_per_window"`
	Window               time.Duration `yaml:"window"`
	InterCallDelay       time.Duration `yaml:"inter_call_delay"`
	InterBatchDelay      time.Duration `yaml:"inter_batch_delay"`
	BatchSize            int           `yaml:"batch_size"`
}

type LoginConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	BaseRetryDelay time.Duration `yaml:"base_retry_delay"`
}

type StorageConfig struct {
	LocalDir string   `yaml:"local_dir"`
	S3       S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		RateLimit: RateLimitConfig{
			MaxRequestsPerWindow: 30,
			Window:               time.Minute,
			InterCallDelay:       200 * time.Millisecond,
			InterBatchDelay:      2 * time.Second,
			BatchSize:            20,
		},
		Login: LoginConfig{
			MaxRetries:     3,
			BaseRetryDelay: time.Second,
		},
		Terminal: TerminalConfig{
			Timeout: 30 * time.Second,
			ConnectionPool: ConnectionPoolConfig{
				MaxIdleConns:    10,
				MaxConnsPerHost: 10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Credentials always come from the environment when present; the
	// yaml values exist only for local development.
	if v := os.Getenv("THS_USER_ID"); v != "" {
		config.Terminal.UserID = strings.TrimSpace(v)
	}
	if v := os.Getenv("THS_PASSWORD"); v != "" {
		config.Terminal.Password = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Quantmuse.Name == "" {
		return fmt.Errorf("quantmuse.name is required")
	}
	if cfg.Terminal.BaseURL == "" {
		return fmt.Errorf("terminal.base_url is required")
	}
	if cfg.RateLimit.MaxRequestsPerWindow <= 0 {
		return fmt.Errorf("rate_limit.max_requests_per_window must be greater than 0")
	}
	if cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be greater than 0")
	}
	if cfg.RateLimit.BatchSize <= 0 {
		return fmt.Errorf("rate_limit.batch_size must be greater than 0")
	}
	if cfg.Login.MaxRetries <= 0 {
		return fmt.Errorf("login.max_retries must be greater than 0")
	}
	if cfg.Login.BaseRetryDelay <= 0 {
		return fmt.Errorf("login.base_retry_delay must be greater than 0")
	}
	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
	}
	return nil
}
