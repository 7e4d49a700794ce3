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
	"gopkg.in/yaml.v3"
)

const envPrefix = "SHARETOK_"

// Config holds all configuration options for the sharetok service
type Config struct {
	Platform  PlatformConfig  `yaml:"platform" json:"platform"`
	Signer    SignerConfig    `yaml:"signer" json:"signer"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Download  DownloadConfig  `yaml:"download" json:"download"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// PlatformConfig describes how the content platform is reached
type PlatformConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout" json:"resolve_timeout"`
	APITimeout     time.Duration `yaml:"api_timeout" json:"api_timeout"`
	// Account names a stored platform account whose cookies are sent along
	Account string `yaml:"account" json:"account"`
}

// SignerConfig points at the external request-signing sidecar
type SignerConfig struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// StorageConfig bounds the on-disk asset cache
type StorageConfig struct {
	Root     string `yaml:"root" json:"root"`
	MaxBytes int64  `yaml:"max_bytes" json:"max_bytes"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// DownloadConfig holds asset download configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	InactivityTimeout   time.Duration `yaml:"inactivity_timeout" json:"inactivity_timeout"`
}

// RateLimitConfig paces calls against the platform API
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig is applied by callers of the pipeline, never inside it
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

type CacheConfig struct {
	ResolutionTTL   time.Duration `yaml:"resolution_ttl" json:"resolution_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// ServerConfig holds HTTP surface configuration
type ServerConfig struct {
	Addr          string `yaml:"addr" json:"addr"`
	AllowedOrigin string `yaml:"allowed_origin" json:"allowed_origin"`
	SessionHeader string `yaml:"session_header" json:"session_header"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			BaseURL:        "https://www.tiktok.com",
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:91.0) Gecko/20100101 Firefox/91.1",
			ResolveTimeout: 50 * time.Second,
			APITimeout:     30 * time.Second,
		},
		Signer: SignerConfig{
			Endpoint: "http://127.0.0.1:8080/sign",
			Timeout:  10 * time.Second,
		},
		Storage: StorageConfig{
			Root:     "./public",
			MaxBytes: 25 << 30,
		},
		Database: DatabaseConfig{
			DSN: "sharetok.db",
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 4,
			InactivityTimeout:   30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BaseDelay:    1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Cache: CacheConfig{
			ResolutionTTL:   10 * time.Minute,
			CleanupInterval: 15 * time.Minute,
		},
		Server: ServerConfig{
			Addr:          ":2000",
			AllowedOrigin: "*",
			SessionHeader: "sessiontoken",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from SHARETOK_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	setString("BASE_URL", &c.Platform.BaseURL)
	setString("USER_AGENT", &c.Platform.UserAgent)
	setString("ACCOUNT", &c.Platform.Account)
	setDuration("RESOLVE_TIMEOUT", &c.Platform.ResolveTimeout)
	setString("SIGNER_ENDPOINT", &c.Signer.Endpoint)
	setDuration("SIGNER_TIMEOUT", &c.Signer.Timeout)
	setString("STORAGE_ROOT", &c.Storage.Root)
	if v := os.Getenv(envPrefix + "STORAGE_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSTORAGE_MAX_BYTES: %w", envPrefix, err))
		} else {
			c.Storage.MaxBytes = n
		}
	}
	setString("DATABASE_DSN", &c.Database.DSN)
	setInt("CONCURRENT_DOWNLOADS", &c.Download.ConcurrentDownloads)
	setDuration("INACTIVITY_TIMEOUT", &c.Download.InactivityTimeout)
	setInt("REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	setInt("MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	setString("ADDR", &c.Server.Addr)
	setString("ALLOWED_ORIGIN", &c.Server.AllowedOrigin)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FORMAT", &c.Logging.Format)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
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

// findConfigFile searches for config file in standard locations
func findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".sharetok.yaml",
		".sharetok.yml",
		filepath.Join(home, ".config", "sharetok", "config.yaml"),
		filepath.Join(home, ".config", "sharetok", "config.yml"),
		filepath.Join(home, ".sharetok.yaml"),
		filepath.Join(home, ".sharetok.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Platform.BaseURL == "" {
		errs = append(errs, errors.New("platform base URL is required"))
	}
	if c.Platform.UserAgent == "" {
		errs = append(errs, errors.New("platform user agent is required"))
	}
	if c.Platform.ResolveTimeout <= 0 {
		errs = append(errs, errors.New("resolve timeout must be positive"))
	}
	if c.Signer.Endpoint == "" {
		errs = append(errs, errors.New("signer endpoint is required"))
	}

	if c.Storage.Root == "" {
		errs = append(errs, errors.New("storage root is required"))
	}
	if c.Storage.MaxBytes <= 0 {
		errs = append(errs, errors.New("storage max bytes must be positive"))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}
	if c.Download.InactivityTimeout <= 0 {
		errs = append(errs, errors.New("inactivity timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("max attempts cannot be negative"))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		errs = append(errs, errors.New("log format must be console or json"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if root, ok := flags["storage-root"].(string); ok && root != "" {
		c.Storage.Root = root
	}
	if maxBytes, ok := flags["max-bytes"].(int64); ok && maxBytes > 0 {
		c.Storage.MaxBytes = maxBytes
	}
	if dsn, ok := flags["db"].(string); ok && dsn != "" {
		c.Database.DSN = dsn
	}
	if signer, ok := flags["signer"].(string); ok && signer != "" {
		c.Signer.Endpoint = signer
	}
	if addr, ok := flags["addr"].(string); ok && addr != "" {
		c.Server.Addr = addr
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if attempts, ok := flags["max-attempts"].(int); ok && attempts > 0 {
		c.Retry.MaxAttempts = attempts
	}
	if account, ok := flags["account"].(string); ok && account != "" {
		c.Platform.Account = account
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat, ok := flags["log-format"].(string); ok && logFormat != "" {
		c.Logging.Format = logFormat
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment (.env included) > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".sharetok.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
