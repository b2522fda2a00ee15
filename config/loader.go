package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/flowdiff/errors"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FLOWDIFF"

// durationFields lists the dotted paths holding durations. Layers may write
// them as strings ("30s", "2d") or as nanosecond integers.
var durationFields = []string{
	"http.read_timeout",
	"http.write_timeout",
	"http.shutdown_timeout",
	"store.nats.reconnect_wait",
	"store.nats.ping_interval",
	"store.nats.drain_timeout",
	"catalog.ttl",
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: EnvPrefix,
		getenv:    os.Getenv,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load merges defaults, each layer in order and the environment
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, path, err),
				"config", "Load", "load layer")
		}
		merged = deepMerge(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "encode merged layers")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"config", "Load", "decode merged layers")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// loadRaw reads one layer as a generic map, decoding YAML or JSON by extension
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := checkDepth(raw, 0); err != nil {
		return nil, err
	}
	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// parseDurations rewrites duration strings as nanoseconds for json decoding
func parseDurations(raw map[string]any) error {
	for _, field := range durationFields {
		parts := strings.Split(field, ".")
		parent := raw
		for _, p := range parts[:len(parts)-1] {
			next, ok := parent[p].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = next
		}
		if parent == nil {
			continue
		}
		key := parts[len(parts)-1]
		s, ok := parent[key].(string)
		if !ok {
			continue
		}
		d, err := parseDurationWithDays(s)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		parent[key] = d.Nanoseconds()
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// deepMerge recursively merges two maps, with override taking precedence.
// Nil values in override leave the base untouched.
func deepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMerge(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies FLOWDIFF_* environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"HTTP_ADDR":            &cfg.HTTP.Addr,
		"HTTP_TLS_CERT_FILE":   &cfg.HTTP.TLS.CertFile,
		"HTTP_TLS_KEY_FILE":    &cfg.HTTP.TLS.KeyFile,
		"STORE_BACKEND":        &cfg.Store.Backend,
		"STORE_NATS_URL":       &cfg.Store.NATS.URL,
		"STORE_NATS_BUCKET":    &cfg.Store.NATS.Bucket,
		"STORE_NATS_USERNAME":  &cfg.Store.NATS.Username,
		"STORE_NATS_PASSWORD":  &cfg.Store.NATS.Password,
		"STORE_NATS_TOKEN":     &cfg.Store.NATS.Token,
		"STORE_REDIS_ADDR":     &cfg.Store.Redis.Addr,
		"STORE_REDIS_PASSWORD": &cfg.Store.Redis.Password,
		"CATALOG_PATH":         &cfg.Catalog.Path,
		"LOG_LEVEL":            &cfg.Logging.Level,
		"LOG_FORMAT":           &cfg.Logging.Format,
	}
	for suffix, dst := range strs {
		key := l.envPrefix + "_" + suffix
		val := l.getenv(key)
		if val == "" {
			continue
		}
		if err := checkEnvVar(key, val); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
				"config", "applyEnvOverrides", "read environment")
		}
		*dst = val
	}

	if val := l.getenv(l.envPrefix + "_CATALOG_TTL"); val != "" {
		d, err := parseDurationWithDays(val)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s_CATALOG_TTL: %v", errors.ErrInvalidConfig, l.envPrefix, err),
				"config", "applyEnvOverrides", "parse duration")
		}
		cfg.Catalog.TTL = d
	}
	if val := l.getenv(l.envPrefix + "_STORE_REDIS_DB"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s_STORE_REDIS_DB: %v", errors.ErrInvalidConfig, l.envPrefix, err),
				"config", "applyEnvOverrides", "parse integer")
		}
		cfg.Store.Redis.DB = n
	}
	return nil
}
