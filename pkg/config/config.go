// Package config loads crawler configuration from defaults, a YAML file,
// .env files and CRAWLER_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/timeline-crawler/pkg/client"
	"github.com/Sternrassler/timeline-crawler/pkg/logging"
	"github.com/Sternrassler/timeline-crawler/pkg/ratelimit"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "CRAWLER_"

// Config holds all configuration options for the crawler.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`
	API         APIConfig         `yaml:"api" json:"api"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" json:"rate_limit"`
	Redis       RedisConfig       `yaml:"redis" json:"redis"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
}

// CredentialsConfig holds the OAuth1 signing material.
type CredentialsConfig struct {
	ClientKey           string `yaml:"client_key" json:"client_key"`
	ClientSecret        string `yaml:"client_secret" json:"-"`
	ResourceOwnerKey    string `yaml:"resource_owner_key" json:"resource_owner_key"`
	ResourceOwnerSecret string `yaml:"resource_owner_secret" json:"-"`
}

// APIConfig holds request settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	PageSize   int           `yaml:"page_size" json:"page_size"`
}

// RateLimitConfig holds the coordinator thresholds.
type RateLimitConfig struct {
	LowWaterMark      int           `yaml:"low_water_mark" json:"low_water_mark"`
	ResetBuffer       time.Duration `yaml:"reset_buffer" json:"reset_buffer"`
	FailureRetryDelay time.Duration `yaml:"failure_retry_delay" json:"failure_retry_delay"`
}

// RedisConfig enables the rate limit state store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// MetricsConfig enables the /metrics server when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// DefaultConfig returns a Config with the client and coordinator defaults.
func DefaultConfig() *Config {
	rl := ratelimit.DefaultConfig()
	api := client.DefaultConfig(client.Credentials{})

	return &Config{
		API: APIConfig{
			BaseURL:    api.BaseURL,
			Timeout:    api.Timeout,
			MaxRetries: api.MaxRetries,
			PageSize:   api.PageSize,
		},
		RateLimit: RateLimitConfig{
			LowWaterMark:      rl.LowWaterMark,
			ResetBuffer:       rl.ResetBuffer,
			FailureRetryDelay: rl.FailureRetryDelay,
		},
		Logging: LoggingConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// LoadFromEnv overrides fields from CRAWLER_* environment variables.
// Malformed numbers and durations are collected and returned together.
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString(&c.Credentials.ClientKey, "CLIENT_KEY")
	setString(&c.Credentials.ClientSecret, "CLIENT_SECRET")
	setString(&c.Credentials.ResourceOwnerKey, "RESOURCE_OWNER_KEY")
	setString(&c.Credentials.ResourceOwnerSecret, "RESOURCE_OWNER_SECRET")

	setString(&c.API.BaseURL, "BASE_URL")
	errs = append(errs,
		setDuration(&c.API.Timeout, "TIMEOUT"),
		setInt(&c.API.MaxRetries, "MAX_RETRIES"),
		setInt(&c.API.PageSize, "PAGE_SIZE"),
		setInt(&c.RateLimit.LowWaterMark, "LOW_WATER_MARK"),
		setDuration(&c.RateLimit.ResetBuffer, "RESET_BUFFER"),
		setDuration(&c.RateLimit.FailureRetryDelay, "FAILURE_RETRY_DELAY"),
		setInt(&c.Redis.DB, "REDIS_DB"),
	)

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Logging.Level, "LOG_LEVEL")
	if pretty := os.Getenv(EnvPrefix + "LOG_PRETTY"); pretty != "" {
		c.Logging.Pretty = strings.EqualFold(pretty, "true") || pretty == "1"
	}
	setString(&c.Metrics.Addr, "METRICS_ADDR")

	return errors.Join(errs...)
}

func setString(dst *string, name string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: invalid integer %q", EnvPrefix, name, v)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, name string) error {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: invalid duration %q", EnvPrefix, name, v)
	}
	*dst = d
	return nil
}

// LoadFromFile loads configuration from a YAML file. An empty path
// searches the default locations; finding nothing there is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for a config file in standard locations.
func findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".crawler.yaml",
		".crawler.yml",
		filepath.Join(home, ".config", "timeline-crawler", "config.yaml"),
		filepath.Join(home, ".config", "timeline-crawler", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks the whole configuration, reporting every problem.
func (c *Config) Validate() error {
	var errs []error

	if c.Credentials.ClientKey == "" {
		errs = append(errs, errors.New("client key is required"))
	}
	if c.Credentials.ClientSecret == "" {
		errs = append(errs, errors.New("client secret is required"))
	}
	if c.Credentials.ResourceOwnerKey == "" {
		errs = append(errs, errors.New("resource owner key is required"))
	}
	if c.Credentials.ResourceOwnerSecret == "" {
		errs = append(errs, errors.New("resource owner secret is required"))
	}

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("base url is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.API.MaxRetries < 1 {
		errs = append(errs, errors.New("max retries must be at least 1"))
	}
	if c.API.PageSize < 1 || c.API.PageSize > 200 {
		errs = append(errs, errors.New("page size must be between 1 and 200"))
	}

	if c.RateLimit.LowWaterMark < 0 {
		errs = append(errs, errors.New("low water mark cannot be negative"))
	}
	if c.RateLimit.ResetBuffer < 0 {
		errs = append(errs, errors.New("reset buffer cannot be negative"))
	}
	if c.RateLimit.FailureRetryDelay < 0 {
		errs = append(errs, errors.New("failure retry delay cannot be negative"))
	}

	if c.Redis.DB < 0 {
		errs = append(errs, errors.New("redis db cannot be negative"))
	}

	if err := logging.ValidateLevel(logging.LogLevel(c.Logging.Level)); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ClientCredentials returns the OAuth1 signing material.
func (c *Config) ClientCredentials() client.Credentials {
	return client.Credentials{
		ClientKey:           c.Credentials.ClientKey,
		ClientSecret:        c.Credentials.ClientSecret,
		ResourceOwnerKey:    c.Credentials.ResourceOwnerKey,
		ResourceOwnerSecret: c.Credentials.ResourceOwnerSecret,
	}
}

// CoordinatorConfig returns the coordinator thresholds.
func (c *Config) CoordinatorConfig() ratelimit.Config {
	return ratelimit.Config{
		LowWaterMark:      c.RateLimit.LowWaterMark,
		ResetBuffer:       c.RateLimit.ResetBuffer,
		FailureRetryDelay: c.RateLimit.FailureRetryDelay,
	}
}

// ClientConfig returns the client configuration. store may be nil.
func (c *Config) ClientConfig(store *ratelimit.Store) client.Config {
	return client.Config{
		Credentials: c.ClientCredentials(),
		BaseURL:     c.API.BaseURL,
		Timeout:     c.API.Timeout,
		MaxRetries:  c.API.MaxRetries,
		PageSize:    c.API.PageSize,
		RateLimit:   c.CoordinatorConfig(),
		Store:       store,
	}
}

// RedisOptions returns go-redis options, or nil when no store is configured.
func (c *Config) RedisOptions() *redis.Options {
	if c.Redis.Addr == "" {
		return nil
	}
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// LoggerConfig returns the logger configuration writing to stderr.
func (c *Config) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}

// Load loads configuration from all sources.
// Precedence: environment > .env file > config file > defaults.
// The result is not validated; commands validate what they need.
func Load(configPath string) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".crawler.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, err
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return cfg, nil
}
