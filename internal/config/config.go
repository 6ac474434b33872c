package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level" env:"LOG_LEVEL"`
	Identity  IdentityConfig  `yaml:"identity"`
	Codec     CodecConfig     `yaml:"codec"`
	Batch     BatchConfig     `yaml:"batch"`
	Search    SearchConfig    `yaml:"search"`
	Rewrite   RewriteConfig   `yaml:"rewrite"`
	Export    ExportConfig    `yaml:"export"`
	Backup    BackupConfig    `yaml:"backup"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	KeyCache  KeyCacheConfig  `yaml:"key_cache"`
	Audit     AuditConfig     `yaml:"audit"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// IdentityConfig holds key derivation settings.
type IdentityConfig struct {
	// KeySeed optionally overrides the built-in 32-byte seed constant,
	// given as 64 hex characters.
	KeySeed string `yaml:"key_seed" env:"IDENTITY_KEY_SEED"`
}

// CodecConfig holds container codec settings.
type CodecConfig struct {
	// CompressionLevel is the zlib level used on encode (1-9; 0 selects
	// the codec default, best compression).
	CompressionLevel int `yaml:"compression_level" env:"CODEC_COMPRESSION_LEVEL"`
}

// BatchConfig holds batch file pipeline settings.
type BatchConfig struct {
	// Workers bounds the file worker pool; 0 means max(NumCPU-1, 1).
	Workers int `yaml:"workers" env:"BATCH_WORKERS"`
}

// SearchConfig holds credential search settings.
type SearchConfig struct {
	Base    uint64 `yaml:"base" env:"SEARCH_BASE"`
	Range   uint64 `yaml:"range" env:"SEARCH_RANGE"`
	Workers int    `yaml:"workers" env:"SEARCH_WORKERS"`
}

// RewriteRule rewrites one scalar field of the decoded payload.
type RewriteRule struct {
	Field      string `yaml:"field"`
	Value      string `yaml:"value"`
	RotateGUID bool   `yaml:"rotate_guid"`
}

// RewriteConfig holds the payload rewrite settings applied during resign.
type RewriteConfig struct {
	Enabled bool          `yaml:"enabled" env:"REWRITE_ENABLED"`
	Rules   []RewriteRule `yaml:"rules"`
}

// ExportConfig holds the passphrase-locked plaintext export settings.
type ExportConfig struct {
	Enabled    bool   `yaml:"enabled" env:"EXPORT_ENABLED"`
	Passphrase string `yaml:"passphrase" env:"EXPORT_PASSPHRASE"`
}

// BackupConfig holds the optional S3-compatible backup target.
type BackupConfig struct {
	Enabled      bool   `yaml:"enabled" env:"BACKUP_ENABLED"`
	Endpoint     string `yaml:"endpoint" env:"BACKUP_ENDPOINT"`
	Region       string `yaml:"region" env:"BACKUP_REGION"`
	Bucket       string `yaml:"bucket" env:"BACKUP_BUCKET"`
	Prefix       string `yaml:"prefix" env:"BACKUP_PREFIX"`
	AccessKey    string `yaml:"access_key" env:"BACKUP_ACCESS_KEY"`
	SecretKey    string `yaml:"secret_key" env:"BACKUP_SECRET_KEY"`
	UsePathStyle bool   `yaml:"use_path_style" env:"BACKUP_USE_PATH_STYLE"`
}

// ServerConfig holds the local HTTP service mode settings.
type ServerConfig struct {
	ListenAddr        string        `yaml:"listen_addr" env:"LISTEN_ADDR"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"SERVER_READ_HEADER_TIMEOUT"`
	// MaxBodyBytes bounds the container size accepted on the API.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"SERVER_MAX_BODY_BYTES"`
}

// RateLimitConfig holds rate limiting configuration for the API.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	Limit   int           `yaml:"limit" env:"RATE_LIMIT_REQUESTS"`
	Window  time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
}

// KeyCacheConfig holds the derived-key cache configuration.
type KeyCacheConfig struct {
	Enabled    bool          `yaml:"enabled" env:"KEY_CACHE_ENABLED"`
	MaxItems   int           `yaml:"max_items" env:"KEY_CACHE_MAX_ITEMS"`
	DefaultTTL time.Duration `yaml:"default_ttl" env:"KEY_CACHE_DEFAULT_TTL"`
}

// AuditConfig holds audit logging configuration.
type AuditConfig struct {
	Enabled   bool `yaml:"enabled" env:"AUDIT_ENABLED"`
	MaxEvents int  `yaml:"max_events" env:"AUDIT_MAX_EVENTS"`
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled         bool    `yaml:"enabled" env:"TRACING_ENABLED"`
	ServiceName     string  `yaml:"service_name" env:"TRACING_SERVICE_NAME"`
	ServiceVersion  string  `yaml:"service_version" env:"TRACING_SERVICE_VERSION"`
	Exporter        string  `yaml:"exporter" env:"TRACING_EXPORTER"` // stdout, jaeger, otlp
	JaegerEndpoint  string  `yaml:"jaeger_endpoint" env:"TRACING_JAEGER_ENDPOINT"`
	OtlpEndpoint    string  `yaml:"otlp_endpoint" env:"TRACING_OTLP_ENDPOINT"`
	SamplingRatio   float64 `yaml:"sampling_ratio" env:"TRACING_SAMPLING_RATIO"`
	RedactSensitive bool    `yaml:"redact_sensitive" env:"TRACING_REDACT_SENSITIVE"`
}

// LoadConfig loads configuration from a file and environment variables.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		LogLevel: "info",
		Search: SearchConfig{
			Base:  76561197960265729,
			Range: 1 << 32,
		},
		Server: ServerConfig{
			ListenAddr:        "127.0.0.1:8099",
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxBodyBytes:      64 << 20, // 64MB
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			Limit:   100,
			Window:  60 * time.Second,
		},
		KeyCache: KeyCacheConfig{
			Enabled:    true,
			MaxItems:   1024,
			DefaultTTL: 10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:   false,
			MaxEvents: 10000,
		},
		Backup: BackupConfig{
			Region: "us-east-1",
		},
		Tracing: TracingConfig{
			Enabled:         false,
			ServiceName:     "save-resign-gateway",
			ServiceVersion:  "dev",
			Exporter:        "stdout",
			SamplingRatio:   1.0,
			RedactSensitive: true,
		},
	}

	// Load from file if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	loadFromEnv(config)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// BatchWorkers resolves the effective batch worker pool size.
func (c *Config) BatchWorkers() int {
	if c.Batch.Workers > 0 {
		return c.Batch.Workers
	}
	if n := runtime.NumCPU() - 1; n >= 1 {
		return n
	}
	return 1
}

// loadFromEnv loads configuration values from environment variables.
func loadFromEnv(config *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("IDENTITY_KEY_SEED"); v != "" {
		config.Identity.KeySeed = v
	}
	if v := os.Getenv("CODEC_COMPRESSION_LEVEL"); v != "" {
		if level, err := strconv.Atoi(v); err == nil {
			config.Codec.CompressionLevel = level
		}
	}
	if v := os.Getenv("BATCH_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil && workers >= 0 {
			config.Batch.Workers = workers
		}
	}
	if v := os.Getenv("SEARCH_BASE"); v != "" {
		if base, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Search.Base = base
		}
	}
	if v := os.Getenv("SEARCH_RANGE"); v != "" {
		if span, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Search.Range = span
		}
	}
	if v := os.Getenv("SEARCH_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil && workers >= 0 {
			config.Search.Workers = workers
		}
	}
	if v := os.Getenv("REWRITE_ENABLED"); v != "" {
		config.Rewrite.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("EXPORT_ENABLED"); v != "" {
		config.Export.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("EXPORT_PASSPHRASE"); v != "" {
		config.Export.Passphrase = v
	}
	if v := os.Getenv("BACKUP_ENABLED"); v != "" {
		config.Backup.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("BACKUP_ENDPOINT"); v != "" {
		config.Backup.Endpoint = v
	}
	if v := os.Getenv("BACKUP_REGION"); v != "" {
		config.Backup.Region = v
	}
	if v := os.Getenv("BACKUP_BUCKET"); v != "" {
		config.Backup.Bucket = v
	}
	if v := os.Getenv("BACKUP_PREFIX"); v != "" {
		config.Backup.Prefix = v
	}
	if v := os.Getenv("BACKUP_ACCESS_KEY"); v != "" {
		config.Backup.AccessKey = v
	}
	if v := os.Getenv("BACKUP_SECRET_KEY"); v != "" {
		config.Backup.SecretKey = v
	}
	if v := os.Getenv("BACKUP_USE_PATH_STYLE"); v != "" {
		config.Backup.UsePathStyle = v == "true" || v == "1"
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		config.Server.ListenAddr = v
	}
	if v := os.Getenv("SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("SERVER_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.IdleTimeout = d
		}
	}
	if v := os.Getenv("SERVER_READ_HEADER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ReadHeaderTimeout = d
		}
	}
	if v := os.Getenv("SERVER_MAX_BODY_BYTES"); v != "" {
		if maxBytes, err := strconv.ParseInt(v, 10, 64); err == nil && maxBytes > 0 {
			config.Server.MaxBodyBytes = maxBytes
		}
	}
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		config.RateLimit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			config.RateLimit.Limit = limit
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.RateLimit.Window = d
		}
	}
	if v := os.Getenv("KEY_CACHE_ENABLED"); v != "" {
		config.KeyCache.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("KEY_CACHE_MAX_ITEMS"); v != "" {
		if maxItems, err := strconv.Atoi(v); err == nil && maxItems > 0 {
			config.KeyCache.MaxItems = maxItems
		}
	}
	if v := os.Getenv("KEY_CACHE_DEFAULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.KeyCache.DefaultTTL = d
		}
	}
	if v := os.Getenv("AUDIT_ENABLED"); v != "" {
		config.Audit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AUDIT_MAX_EVENTS"); v != "" {
		if maxEvents, err := strconv.Atoi(v); err == nil && maxEvents > 0 {
			config.Audit.MaxEvents = maxEvents
		}
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		config.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACING_SERVICE_NAME"); v != "" {
		config.Tracing.ServiceName = v
	}
	if v := os.Getenv("TRACING_SERVICE_VERSION"); v != "" {
		config.Tracing.ServiceVersion = v
	}
	if v := os.Getenv("TRACING_EXPORTER"); v != "" {
		config.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACING_JAEGER_ENDPOINT"); v != "" {
		config.Tracing.JaegerEndpoint = v
	}
	if v := os.Getenv("TRACING_OTLP_ENDPOINT"); v != "" {
		config.Tracing.OtlpEndpoint = v
	}
	if v := os.Getenv("TRACING_SAMPLING_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil && ratio >= 0.0 && ratio <= 1.0 {
			config.Tracing.SamplingRatio = ratio
		}
	}
	if v := os.Getenv("TRACING_REDACT_SENSITIVE"); v != "" {
		config.Tracing.RedactSensitive = v == "true" || v == "1"
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[c.LogLevel] {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel)
		}
	}

	if seed := strings.TrimSpace(c.Identity.KeySeed); seed != "" && len(seed) != 64 {
		return fmt.Errorf("identity.key_seed must be 64 hex characters, got %d", len(seed))
	}

	if level := c.Codec.CompressionLevel; level < 0 || level > 9 {
		return fmt.Errorf("codec.compression_level must be 0-9, got %d", level)
	}

	if c.Search.Range == 0 || c.Search.Range > 1<<32 {
		return fmt.Errorf("search.range must be 1..2^32, got %d", c.Search.Range)
	}

	if c.Export.Enabled && len(c.Export.Passphrase) < 12 {
		return fmt.Errorf("export.passphrase must be at least 12 characters when export is enabled")
	}

	if c.Backup.Enabled {
		if c.Backup.Bucket == "" {
			return fmt.Errorf("backup.bucket is required when backup is enabled")
		}
		if c.Backup.AccessKey == "" {
			return fmt.Errorf("backup.access_key is required when backup is enabled")
		}
		if c.Backup.SecretKey == "" {
			return fmt.Errorf("backup.secret_key is required when backup is enabled")
		}
	}

	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	for i, rule := range c.Rewrite.Rules {
		if rule.Field == "" {
			return fmt.Errorf("rewrite.rules[%d].field is required", i)
		}
		if !rule.RotateGUID && rule.Value == "" {
			return fmt.Errorf("rewrite.rules[%d] needs a value or rotate_guid", i)
		}
	}

	// Validate tracing configuration
	if c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			return fmt.Errorf("tracing.service_name is required when tracing is enabled")
		}
		validExporters := map[string]bool{
			"stdout": true,
			"jaeger": true,
			"otlp":   true,
		}
		if !validExporters[c.Tracing.Exporter] {
			return fmt.Errorf("invalid tracing.exporter: %s (must be stdout, jaeger, or otlp)", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRatio < 0.0 || c.Tracing.SamplingRatio > 1.0 {
			return fmt.Errorf("tracing.sampling_ratio must be between 0.0 and 1.0")
		}
		if c.Tracing.Exporter == "jaeger" && c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint is required when exporter is jaeger")
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.OtlpEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is otlp")
		}
	}

	return nil
}
