package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Cache     Cache     `mapstructure:"cache"`
	Fetch     Fetch     `mapstructure:"fetch"`
	Processor Processor `mapstructure:"processor"`
	Storage   Storage   `mapstructure:"storage"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Retry     Retry     `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort        string        `mapstructure:"http_port"`        // address to listen on, e.g. ":8080"
	PublicURL       string        `mapstructure:"public_url"`       // base URL used in the startup sample link
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`    // must cover fetch retries plus rendering
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // graceful shutdown bound
	CacheMaxAge     int           `mapstructure:"cache_max_age"`    // Cache-Control max-age in seconds, 0 disables
}

// Cache holds origin cache configuration.
type Cache struct {
	Capacity int `mapstructure:"capacity"` // maximum number of cached source images
}

// Fetch bounds every origin fetch.
type Fetch struct {
	MaxBytes  int64         `mapstructure:"max_bytes"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	Burst     int           `mapstructure:"burst"`
}

// Processor holds output encoding and watermark configuration.
type Processor struct {
	Format           string  `mapstructure:"format"`
	JPEGQuality      int     `mapstructure:"jpeg_quality"`
	WatermarkPath    string  `mapstructure:"watermark_path"`
	WatermarkText    string  `mapstructure:"watermark_text"`
	FontPath         string  `mapstructure:"font_path"`
	WatermarkOpacity float64 `mapstructure:"watermark_opacity"`

	MaxSourceDimension int   `mapstructure:"max_source_dimension"` // longest accepted source side
	MaxSourcePixels    int64 `mapstructure:"max_source_pixels"`    // accepted source width*height
}

// Storage holds configuration for the optional S3/MinIO origin.
type Storage struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"` // pinged at startup when set
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Kafka holds configuration for render events and cache warming.
type Kafka struct {
	Brokers     []string `mapstructure:"brokers"`      // List of Kafka broker addresses
	EventsTopic string   `mapstructure:"events_topic"` // render events, empty disables publishing
	WarmTopic   string   `mapstructure:"warm_topic"`   // warm requests, empty disables the consumer
	GroupID     string   `mapstructure:"group_id"`     // Consumer group ID
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Server.HTTPPort == "":
		return errors.New("server.http_port is required")
	case c.Cache.Capacity < 1:
		return fmt.Errorf("cache.capacity must be at least 1, got %d", c.Cache.Capacity)
	case c.Fetch.MaxBytes < 1:
		return fmt.Errorf("fetch.max_bytes must be positive, got %d", c.Fetch.MaxBytes)
	case c.Fetch.Timeout <= 0:
		return fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout)
	case c.Fetch.RateLimit < 0:
		return fmt.Errorf("fetch.rate_limit cannot be negative, got %v", c.Fetch.RateLimit)
	case c.Processor.JPEGQuality < 1 || c.Processor.JPEGQuality > 100:
		return fmt.Errorf("processor.jpeg_quality must be in [1, 100], got %d", c.Processor.JPEGQuality)
	case c.Processor.WatermarkOpacity < 0 || c.Processor.WatermarkOpacity > 1:
		return fmt.Errorf("processor.watermark_opacity must be in [0, 1], got %v", c.Processor.WatermarkOpacity)
	case c.Processor.MaxSourceDimension < 1:
		return fmt.Errorf("processor.max_source_dimension must be positive, got %d", c.Processor.MaxSourceDimension)
	case c.Processor.MaxSourcePixels < 1:
		return fmt.Errorf("processor.max_source_pixels must be positive, got %d", c.Processor.MaxSourcePixels)
	case c.Storage.Enabled && c.Storage.Endpoint == "":
		return errors.New("storage.endpoint is required when storage is enabled")
	case (c.Kafka.EventsTopic != "" || c.Kafka.WarmTopic != "") && len(c.Kafka.Brokers) == 0:
		return errors.New("kafka.brokers is required when a kafka topic is set")
	case c.Kafka.WarmTopic != "" && c.Kafka.GroupID == "":
		return errors.New("kafka.group_id is required when kafka.warm_topic is set")
	case c.Retry.Attempts < 1:
		return fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	case c.Server.WriteTimeout <= c.WorstFetchTime():
		return fmt.Errorf("server.write_timeout %s must exceed the worst-case fetch time %s (retry.attempts x fetch.timeout plus backoff)",
			c.Server.WriteTimeout, c.WorstFetchTime())
	}
	return nil
}

// WorstFetchTime is the longest a request can spend obtaining its source:
// every attempt running into fetch.timeout, plus the delays between attempts.
func (c *Config) WorstFetchTime() time.Duration {
	backoff := c.Retry.Backoff
	if backoff < 1 {
		backoff = 1
	}

	total := time.Duration(c.Retry.Attempts) * c.Fetch.Timeout
	delay := float64(c.Retry.Delay)
	for i := 1; i < c.Retry.Attempts; i++ {
		total += time.Duration(delay)
		delay *= backoff
	}
	return total
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.write_timeout", 45*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.cache_max_age", 86400)

	v.SetDefault("cache.capacity", 1024)

	v.SetDefault("fetch.max_bytes", 20<<20)
	v.SetDefault("fetch.timeout", 10*time.Second)
	v.SetDefault("fetch.user_agent", "image-gateway/1.0")
	v.SetDefault("fetch.rate_limit", 0)
	v.SetDefault("fetch.burst", 1)

	v.SetDefault("processor.format", "jpeg")
	v.SetDefault("processor.jpeg_quality", 85)
	v.SetDefault("processor.watermark_text", "image-gateway")
	v.SetDefault("processor.watermark_opacity", 1.0)
	v.SetDefault("processor.max_source_dimension", 16384)
	v.SetDefault("processor.max_source_pixels", 50_000_000)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.group_id", "image-gateway")

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 100*time.Millisecond)
	v.SetDefault("retry.backoff", 2.0)
}

// bindEnv binds secrets and deployment-specific settings to explicit variables.
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"storage.access_key": "STORAGE_ACCESS_KEY",
		"storage.secret_key": "STORAGE_SECRET_KEY",
		"storage.endpoint":   "STORAGE_ENDPOINT",
		"kafka.brokers":      "KAFKA_BROKERS",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	return nil
}

// Load reads the YAML file at path, applies defaults and environment
// overrides (e.g. CACHE_CAPACITY for cache.capacity) and validates the result.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration cannot be loaded or is invalid.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to load config")
	}

	return cfg
}
