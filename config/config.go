package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/pkg/tlsutil"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreNATS   = "nats"
	StoreRedis  = "redis"
)

// Config is the complete daemon configuration
type Config struct {
	HTTP    HTTPConfig    `json:"http"`
	Store   StoreConfig   `json:"store"`
	Catalog CatalogConfig `json:"catalog"`
	Diff    DiffConfig    `json:"diff"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

// HTTPConfig configures the API listener
type HTTPConfig struct {
	Addr            string        `json:"addr" validate:"required"`
	ReadTimeout     time.Duration `json:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `json:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" validate:"gte=0"`
	MaxBodyBytes    int64         `json:"max_body_bytes" validate:"gt=0"`

	// DiffRateLimit caps POST /flows/{id}/diff in requests per second; zero disables it.
	DiffRateLimit float64 `json:"diff_rate_limit" validate:"gte=0"`
	DiffRateBurst int     `json:"diff_rate_burst" validate:"gte=0"`

	TLS tlsutil.ServerConfig `json:"tls"`
}

// StoreConfig selects and configures the flow store backend
type StoreConfig struct {
	Backend string      `json:"backend" validate:"oneof=memory nats redis"`
	NATS    NATSConfig  `json:"nats"`
	Redis   RedisConfig `json:"redis"`
}

// NATSConfig defines NATS connection settings for the KV backend
type NATSConfig struct {
	URL           string        `json:"url,omitempty"`
	Bucket        string        `json:"bucket,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty" validate:"gte=0"`
	PingInterval  time.Duration `json:"ping_interval,omitempty" validate:"gte=0"`
	DrainTimeout  time.Duration `json:"drain_timeout,omitempty" validate:"gte=0"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`

	TLS tlsutil.ClientConfig `json:"tls"`
}

// RedisConfig defines the Redis connection for the Redis backend
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty" validate:"gte=0"`
	Prefix   string `json:"prefix,omitempty"`
}

// CatalogConfig points at the component catalog file
type CatalogConfig struct {
	Path string        `json:"path" validate:"required"`
	TTL  time.Duration `json:"ttl" validate:"gte=0"`
}

// DiffConfig holds the defaults applied to diff requests
type DiffConfig struct {
	ValidateAfter   bool `json:"validate_after"`
	ContinueOnError bool `json:"continue_on_error"`
	RetryAttempts   int  `json:"retry_attempts" validate:"gte=1,lte=20"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"omitempty,startswith=/"`
}

// LoggingConfig controls the slog handler
type LoggingConfig struct {
	Level  string `json:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" validate:"oneof=json text"`
}

// Default returns the configuration used when no layer overrides a value
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    4 << 20,
			DiffRateLimit:   100,
			DiffRateBurst:   10,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			NATS: NATSConfig{
				URL:           "nats://localhost:4222",
				Bucket:        "flowdiff_flows",
				MaxReconnects: -1,
				ReconnectWait: 2 * time.Second,
				PingInterval:  20 * time.Second,
				DrainTimeout:  30 * time.Second,
			},
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "flowdiff:",
			},
		},
		Catalog: CatalogConfig{
			Path: "catalog.yaml",
			TTL:  5 * time.Minute,
		},
		Diff: DiffConfig{
			ValidateAfter: true,
			RetryAttempts: 3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and backend-specific requirements
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"config", "Validate", "field validation")
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: metrics.path is required when metrics are enabled", errors.ErrMissingConfig),
			"config", "Validate", "metrics validation")
	}

	if c.HTTP.TLS.Enabled && (c.HTTP.TLS.CertFile == "" || c.HTTP.TLS.KeyFile == "") {
		return errors.WrapInvalid(fmt.Errorf("%w: http.tls cert_file and key_file are required", errors.ErrMissingConfig),
			"config", "Validate", "tls validation")
	}

	switch c.Store.Backend {
	case StoreNATS:
		if c.Store.NATS.URL == "" {
			return errors.WrapInvalid(fmt.Errorf("%w: store.nats.url is required", errors.ErrMissingConfig),
				"config", "Validate", "store validation")
		}
		if (c.Store.NATS.Username == "") != (c.Store.NATS.Password == "") {
			return errors.WrapInvalid(
				fmt.Errorf("%w: store.nats username and password must be set together", errors.ErrInvalidConfig),
				"config", "Validate", "store validation")
		}
		if tlsCfg := c.Store.NATS.TLS; tlsCfg.Enabled && (tlsCfg.CertFile == "") != (tlsCfg.KeyFile == "") {
			return errors.WrapInvalid(
				fmt.Errorf("%w: store.nats.tls cert_file and key_file must be set together", errors.ErrInvalidConfig),
				"config", "Validate", "store validation")
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return errors.WrapInvalid(fmt.Errorf("%w: store.redis.addr is required", errors.ErrMissingConfig),
				"config", "Validate", "store validation")
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	copied := *c
	copied.HTTP.TLS = c.HTTP.TLS.Clone()
	copied.Store.NATS.TLS = c.Store.NATS.TLS.Clone()
	return &copied
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := c.Clone()
	for _, s := range []*string{&masked.Store.NATS.Password, &masked.Store.NATS.Token, &masked.Store.Redis.Password} {
		if *s != "" {
			*s = "****"
		}
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}
