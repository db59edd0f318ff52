// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/regiond/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Source    SourceConfig    `mapstructure:"source"`
	Manifests ManifestsConfig `mapstructure:"manifests"`
	TLS       TLSConfig       `mapstructure:"tls"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// EngineConfig holds offline database configuration.
type EngineConfig struct {
	Path        string `mapstructure:"path"`
	MaxTiles    int64  `mapstructure:"max_tiles"`
	KeyTemplate string `mapstructure:"key_template"`
	IDAttempts  int    `mapstructure:"id_attempts"`
}

// SourceConfig holds tile source configuration.
type SourceConfig struct {
	Type      string       `mapstructure:"type"` // local, http, s3, azure, bucket
	LocalPath string       `mapstructure:"local_path"`
	HTTP      HTTPConfig   `mapstructure:"http"`
	S3        S3Config     `mapstructure:"s3"`
	Azure     AzureConfig  `mapstructure:"azure"`
	Bucket    BucketConfig `mapstructure:"bucket"`
}

// HTTPConfig holds HTTP tile server configuration.
type HTTPConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	AccessToken string        `mapstructure:"access_token"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// BucketConfig holds a Go CDK bucket URL, e.g. file:///srv/tiles or mem://.
type BucketConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// ManifestsConfig holds region manifest configuration.
type ManifestsConfig struct {
	Dir      string        `mapstructure:"dir"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Domains  []string     `mapstructure:"domains"`
	Email    string       `mapstructure:"email"`
	CacheDir string       `mapstructure:"cache_dir"`
	Staging  bool         `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      TLSDNSConfig `mapstructure:"dns"`
}

// TLSDNSConfig holds Azure DNS settings for DNS-01 challenges.
type TLSDNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Port      int    `mapstructure:"port"` // 0 serves metrics on the API listener
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_body_bytes", 1<<20)
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// Engine defaults
	viper.SetDefault("engine.path", "./data/offline.db")
	viper.SetDefault("engine.max_tiles", 6000)
	viper.SetDefault("engine.key_template", "{style}/{z}/{x}/{y}.pbf")
	viper.SetDefault("engine.id_attempts", 8)

	// Tile source defaults
	viper.SetDefault("source.type", "local")
	viper.SetDefault("source.local_path", "./tiles")
	viper.SetDefault("source.http.timeout", 30*time.Second)

	// Manifest defaults
	viper.SetDefault("manifests.dir", "")
	viper.SetDefault("manifests.watch", true)
	viper.SetDefault("manifests.debounce", 500*time.Millisecond)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 0)
	viper.SetDefault("metrics.namespace", "regiond")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("REGIOND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/regiond")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration. Failures are *domain.ConfigError.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port", "invalid server port: %d", c.Server.Port)
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return invalid("tls.domains", "TLS enabled but no domains specified")
		}
		if c.TLS.Email == "" {
			return invalid("tls.email", "TLS enabled but no email specified")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Port != 0 {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return invalid("metrics.port", "invalid metrics port: %d", c.Metrics.Port)
		}
		if c.Metrics.Port == c.Server.Port {
			return invalid("metrics.port", "metrics port %d collides with server port", c.Metrics.Port)
		}
	}

	if c.Engine.Path == "" {
		return invalid("engine.path", "engine path is required")
	}
	if c.Engine.MaxTiles < 1 {
		return invalid("engine.max_tiles", "invalid engine max tiles: %d", c.Engine.MaxTiles)
	}
	if c.Engine.IDAttempts < 1 {
		return invalid("engine.id_attempts", "invalid engine id attempts: %d", c.Engine.IDAttempts)
	}
	for _, placeholder := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(c.Engine.KeyTemplate, placeholder) {
			return invalid("engine.key_template", "engine key template must contain %s", placeholder)
		}
	}

	switch c.Source.Type {
	case "local":
		if c.Source.LocalPath == "" {
			return invalid("source.local_path", "local tile path is required")
		}
	case "http":
		if c.Source.HTTP.BaseURL == "" {
			return invalid("source.http.base_url", "HTTP base URL is required")
		}
	case "s3":
		if c.Source.S3.Bucket == "" {
			return invalid("source.s3.bucket", "S3 bucket is required")
		}
		if c.Source.S3.Region == "" {
			return invalid("source.s3.region", "S3 region is required")
		}
	case "azure":
		if c.Source.Azure.Container == "" {
			return invalid("source.azure.container", "azure container is required")
		}
		if c.Source.Azure.AccountName == "" && c.Source.Azure.ConnectionString == "" {
			return invalid("source.azure.account_name", "azure account name or connection string is required")
		}
	case "bucket":
		if c.Source.Bucket.URL == "" {
			return invalid("source.bucket.url", "bucket URL is required")
		}
	default:
		return invalid("source.type", "unknown tile source type: %s", c.Source.Type)
	}

	return nil
}

// invalid reports a configuration error for field.
func invalid(field, format string, args ...any) error {
	return &domain.ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
