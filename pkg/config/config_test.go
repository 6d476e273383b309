package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/timeline-crawler/pkg/client"
	"github.com/Sternrassler/timeline-crawler/pkg/logging"
	"github.com/Sternrassler/timeline-crawler/pkg/ratelimit"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Credentials = CredentialsConfig{
		ClientKey:           "ck",
		ClientSecret:        "cs",
		ResourceOwnerKey:    "rok",
		ResourceOwnerSecret: "ros",
	}
	return cfg
}

// isolate keeps the developer's own config files and environment out of a test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, EnvPrefix) {
			t.Setenv(name, "")
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.BaseURL != client.DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.API.BaseURL, client.DefaultBaseURL)
	}
	if cfg.API.MaxRetries != 1440 {
		t.Errorf("MaxRetries = %d, want 1440", cfg.API.MaxRetries)
	}
	if cfg.API.PageSize != 200 {
		t.Errorf("PageSize = %d, want 200", cfg.API.PageSize)
	}
	if cfg.RateLimit.LowWaterMark != 5 {
		t.Errorf("LowWaterMark = %d, want 5", cfg.RateLimit.LowWaterMark)
	}
	if cfg.RateLimit.ResetBuffer != 60*time.Second {
		t.Errorf("ResetBuffer = %v, want 60s", cfg.RateLimit.ResetBuffer)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.RedisOptions() != nil {
		t.Error("RedisOptions() should be nil without an address")
	}
}

func TestLoadFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("CRAWLER_CLIENT_KEY", "env-ck")
	t.Setenv("CRAWLER_CLIENT_SECRET", "env-cs")
	t.Setenv("CRAWLER_RESOURCE_OWNER_KEY", "env-rok")
	t.Setenv("CRAWLER_RESOURCE_OWNER_SECRET", "env-ros")
	t.Setenv("CRAWLER_MAX_RETRIES", "10")
	t.Setenv("CRAWLER_PAGE_SIZE", "50")
	t.Setenv("CRAWLER_RESET_BUFFER", "15s")
	t.Setenv("CRAWLER_REDIS_ADDR", "localhost:6379")
	t.Setenv("CRAWLER_REDIS_DB", "2")
	t.Setenv("CRAWLER_LOG_LEVEL", "debug")
	t.Setenv("CRAWLER_LOG_PRETTY", "true")

	cfg := DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Credentials.ClientKey != "env-ck" || cfg.Credentials.ResourceOwnerSecret != "env-ros" {
		t.Errorf("Credentials = %+v, want env values", cfg.Credentials)
	}
	if cfg.API.MaxRetries != 10 {
		t.Errorf("MaxRetries = %d, want 10", cfg.API.MaxRetries)
	}
	if cfg.API.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", cfg.API.PageSize)
	}
	if cfg.RateLimit.ResetBuffer != 15*time.Second {
		t.Errorf("ResetBuffer = %v, want 15s", cfg.RateLimit.ResetBuffer)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Pretty {
		t.Errorf("Logging = %+v, want debug pretty", cfg.Logging)
	}

	opts := cfg.RedisOptions()
	if opts == nil || opts.Addr != "localhost:6379" || opts.DB != 2 {
		t.Errorf("RedisOptions() = %+v, want localhost:6379 db 2", opts)
	}

	// untouched fields keep their defaults
	if cfg.API.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", cfg.API.Timeout)
	}
}

func TestLoadFromEnv_Malformed(t *testing.T) {
	isolate(t)
	t.Setenv("CRAWLER_MAX_RETRIES", "many")
	t.Setenv("CRAWLER_TIMEOUT", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	if err == nil {
		t.Fatal("LoadFromEnv() error = nil, want error")
	}

	for _, want := range []string{"CRAWLER_MAX_RETRIES", "CRAWLER_TIMEOUT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
	if cfg.API.MaxRetries != 1440 {
		t.Errorf("MaxRetries = %d, want default kept", cfg.API.MaxRetries)
	}
}

func TestLoadFromFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "crawler.yaml")
	content := `
credentials:
  client_key: file-ck
  client_secret: file-cs
  resource_owner_key: file-rok
  resource_owner_secret: file-ros
api:
  timeout: 30s
  page_size: 100
rate_limit:
  low_water_mark: 10
  failure_retry_delay: 2m
redis:
  addr: redis:6379
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Credentials.ClientKey != "file-ck" {
		t.Errorf("ClientKey = %q, want file-ck", cfg.Credentials.ClientKey)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.API.Timeout)
	}
	if cfg.API.PageSize != 100 {
		t.Errorf("PageSize = %d, want 100", cfg.API.PageSize)
	}
	if cfg.API.MaxRetries != 1440 {
		t.Errorf("MaxRetries = %d, want default 1440", cfg.API.MaxRetries)
	}
	if cfg.RateLimit.LowWaterMark != 10 {
		t.Errorf("LowWaterMark = %d, want 10", cfg.RateLimit.LowWaterMark)
	}
	if cfg.RateLimit.FailureRetryDelay != 2*time.Minute {
		t.Errorf("FailureRetryDelay = %v, want 2m", cfg.RateLimit.FailureRetryDelay)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Redis.Addr = %q, want redis:6379", cfg.Redis.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	isolate(t)

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFromFile(missing) error = nil, want error")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("api: [unterminated"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := cfg.LoadFromFile(bad); err == nil {
		t.Error("LoadFromFile(bad) error = nil, want error")
	}

	// no path and no default file is fine
	if err := cfg.LoadFromFile(""); err != nil {
		t.Errorf("LoadFromFile(\"\") error = %v, want nil", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "crawler.yaml")
	if err := os.WriteFile(path, []byte("api:\n  max_retries: 7\n  page_size: 20\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("CRAWLER_MAX_RETRIES", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want env value 3", cfg.API.MaxRetries)
	}
	if cfg.API.PageSize != 20 {
		t.Errorf("PageSize = %d, want file value 20", cfg.API.PageSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*Config)
		wantErrs []string
	}{
		{
			name:   "valid",
			modify: func(c *Config) {},
		},
		{
			name:     "missing credentials",
			modify:   func(c *Config) { c.Credentials = CredentialsConfig{} },
			wantErrs: []string{"client key", "client secret", "resource owner key", "resource owner secret"},
		},
		{
			name: "bad api settings",
			modify: func(c *Config) {
				c.API.BaseURL = ""
				c.API.Timeout = 0
				c.API.MaxRetries = 0
				c.API.PageSize = 201
			},
			wantErrs: []string{"base url", "timeout", "max retries", "page size"},
		},
		{
			name: "negative thresholds",
			modify: func(c *Config) {
				c.RateLimit.LowWaterMark = -1
				c.RateLimit.ResetBuffer = -time.Second
				c.Redis.DB = -1
			},
			wantErrs: []string{"low water mark", "reset buffer", "redis db"},
		},
		{
			name:     "unknown log level",
			modify:   func(c *Config) { c.Logging.Level = "loud" },
			wantErrs: []string{"unknown log level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			for _, want := range tt.wantErrs {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestClientConfig(t *testing.T) {
	cfg := validConfig()
	cfg.API.PageSize = 150
	cfg.RateLimit.LowWaterMark = 8

	store := &ratelimit.Store{}
	cc := cfg.ClientConfig(store)

	if cc.Credentials.ClientKey != "ck" || cc.Credentials.ResourceOwnerSecret != "ros" {
		t.Errorf("Credentials = %+v", cc.Credentials)
	}
	if cc.PageSize != 150 {
		t.Errorf("PageSize = %d, want 150", cc.PageSize)
	}
	if cc.RateLimit.LowWaterMark != 8 {
		t.Errorf("RateLimit.LowWaterMark = %d, want 8", cc.RateLimit.LowWaterMark)
	}
	if cc.Store != store {
		t.Error("Store not passed through")
	}

	if _, err := client.New(cc); err != nil {
		t.Errorf("client.New() error = %v", err)
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.Pretty = true

	lc := cfg.LoggerConfig()
	if lc.Level != logging.LevelWarn {
		t.Errorf("Level = %q, want warn", lc.Level)
	}
	if !lc.Pretty {
		t.Error("Pretty = false, want true")
	}
	if lc.Output != os.Stderr {
		t.Error("Output should be stderr")
	}
}
