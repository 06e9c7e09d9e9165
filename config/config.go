// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/apicore/domain/endpoint"
	"github.com/artpar/apicore/domain/variable"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Remote     RemoteConfig               `yaml:"remote"`
	Database   DatabaseConfig             `yaml:"database"`
	Cache      CacheConfig                `yaml:"cache"`
	Transports map[string]TransportConfig `yaml:"transports"`
	Runtime    RuntimeConfig              `yaml:"runtime"`
	Endpoints  []map[string]any           `yaml:"endpoints"`
	Variables  map[string]map[string]any  `yaml:"variables"`
	Logging    LoggingConfig              `yaml:"logging"`
	Metrics    MetricsConfig              `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// RemoteConfig configures the remote endpoint store. An empty URL keeps
// endpoint definitions in memory, backed only by the local cache.
type RemoteConfig struct {
	URL     string            `yaml:"url"`
	APIKey  string            `yaml:"api_key,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DatabaseConfig configures the sqlite database holding the local endpoint
// cache and durable fields and variables.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Backend  string `yaml:"backend"` // "memory" or "redis"
	Address  string `yaml:"address,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// TransportConfig configures a named HTTP transport client.
type TransportConfig struct {
	BaseURL         string            `yaml:"base_url"`
	Token           string            `yaml:"token,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty"`
	Timeout         time.Duration     `yaml:"timeout,omitempty"`
	MaxIdleConns    int               `yaml:"max_idle_conns,omitempty"`
	IdleConnTimeout time.Duration     `yaml:"idle_conn_timeout,omitempty"`
	Breaker         BreakerConfig     `yaml:"breaker,omitempty"`
}

// BreakerConfig configures a transport's circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	Interval         time.Duration `yaml:"interval"`
	MaxRequests      uint32        `yaml:"max_requests"`
}

// RuntimeConfig describes the host the env variable scope is computed from.
type RuntimeConfig struct {
	Mode         string `yaml:"mode"` // "production" or "development"
	BaseURL      string `yaml:"base_url,omitempty"`
	Platform     string `yaml:"platform,omitempty"`
	Arch         string `yaml:"arch,omitempty"`
	ScreenWidth  int    `yaml:"screen_width,omitempty"`
	ScreenHeight int    `yaml:"screen_height,omitempty"`
	MockMode     bool   `yaml:"mock_mode"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Addr returns the server listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// HostInfo converts the runtime section for the variable store.
func (r RuntimeConfig) HostInfo(now time.Time) variable.HostInfo {
	return variable.HostInfo{
		Mode:         r.Mode,
		BaseURL:      r.BaseURL,
		Platform:     r.Platform,
		Arch:         r.Arch,
		ScreenWidth:  r.ScreenWidth,
		ScreenHeight: r.ScreenHeight,
		Timestamp:    now,
	}
}

// EndpointSeeds decodes the endpoints section. Entries use the same keys as
// the remote store payloads.
func (c *Config) EndpointSeeds() ([]endpoint.Endpoint, error) {
	out := make([]endpoint.Endpoint, 0, len(c.Endpoints))
	for i, raw := range c.Endpoints {
		var rec endpoint.Record
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &rec,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("endpoints[%d]: %w", i, err)
		}
		out = append(out, rec.Endpoint())
	}
	return out, nil
}

// VariableSeeds returns the variables section keyed by parsed scope.
func (c *Config) VariableSeeds() (map[variable.Scope]map[string]any, error) {
	out := make(map[variable.Scope]map[string]any, len(c.Variables))
	for name, vars := range c.Variables {
		scope, err := variable.ParseScope(name)
		if err != nil {
			return nil, err
		}
		out[scope] = vars
	}
	return out, nil
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references and applying
// APICORE_* overrides.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	APICORE_SERVER_HOST       - Server host (default: 0.0.0.0)
//	APICORE_SERVER_PORT       - Server port (default: 8080)
//	APICORE_REMOTE_URL        - Remote endpoint store URL
//	APICORE_REMOTE_API_KEY    - Remote endpoint store API key
//	APICORE_DATABASE_DSN      - sqlite path (default: apicore.db)
//	APICORE_CACHE_BACKEND     - memory or redis (default: memory)
//	APICORE_REDIS_ADDRESS     - Redis address for the redis cache backend
//	APICORE_TRANSPORT_URL     - Base URL of the default transport client
//	APICORE_MODE              - Runtime mode (default: production)
//	APICORE_MOCK_MODE         - Answer calls with mock data
//	APICORE_LOG_LEVEL         - Log level: debug, info, warn, error (default: info)
//	APICORE_LOG_FORMAT        - Log format: json or console (default: json)
//	APICORE_METRICS_ENABLED   - Enable /metrics endpoint
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies APICORE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("APICORE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("APICORE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("APICORE_SERVER_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.RequestTimeout = d
		}
	}

	// Remote store
	if v := os.Getenv("APICORE_REMOTE_URL"); v != "" {
		cfg.Remote.URL = v
	}
	if v := os.Getenv("APICORE_REMOTE_API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}
	if v := os.Getenv("APICORE_REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remote.Timeout = d
		}
	}

	// Storage
	if v := os.Getenv("APICORE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("APICORE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("APICORE_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("APICORE_REDIS_ADDRESS"); v != "" {
		cfg.Cache.Address = v
	}
	if v := os.Getenv("APICORE_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}

	// Default transport
	if v := os.Getenv("APICORE_TRANSPORT_URL"); v != "" {
		if cfg.Transports == nil {
			cfg.Transports = make(map[string]TransportConfig)
		}
		t := cfg.Transports[endpoint.DefaultClient]
		t.BaseURL = v
		cfg.Transports[endpoint.DefaultClient] = t
	}

	// Runtime
	if v := os.Getenv("APICORE_MODE"); v != "" {
		cfg.Runtime.Mode = v
	}
	if v := os.Getenv("APICORE_BASE_URL"); v != "" {
		cfg.Runtime.BaseURL = v
	}
	if v := os.Getenv("APICORE_MOCK_MODE"); v != "" {
		cfg.Runtime.MockMode = parseBool(v)
	}

	// Logging
	if v := os.Getenv("APICORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("APICORE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics
	if v := os.Getenv("APICORE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("APICORE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}

	if cfg.Remote.URL != "" && cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 10 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "apicore.db"
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "apicore:response:"
	}

	if cfg.Transports == nil {
		cfg.Transports = make(map[string]TransportConfig)
	}
	if _, ok := cfg.Transports[endpoint.DefaultClient]; !ok {
		cfg.Transports[endpoint.DefaultClient] = TransportConfig{}
	}

	if cfg.Runtime.Mode == "" {
		cfg.Runtime.Mode = "production"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if cfg.Cache.Address == "" {
			return fmt.Errorf("cache.address is required when cache.backend is 'redis'")
		}
	default:
		return fmt.Errorf("cache.backend must be 'memory' or 'redis', got %q", cfg.Cache.Backend)
	}

	validModes := map[string]bool{"production": true, "development": true}
	if !validModes[cfg.Runtime.Mode] {
		return fmt.Errorf("runtime.mode must be 'production' or 'development', got %q", cfg.Runtime.Mode)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	seeds, err := cfg.EndpointSeeds()
	if err != nil {
		return err
	}
	for i, e := range seeds {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("endpoints[%d]: %w", i, err)
		}
		if _, ok := cfg.Transports[e.WithDefaults().Transport]; !ok {
			return fmt.Errorf("endpoints[%d]: unknown client %q", i, e.Transport)
		}
	}

	if _, err := cfg.VariableSeeds(); err != nil {
		return fmt.Errorf("variables: %w", err)
	}
	if _, ok := cfg.Variables[string(variable.ScopeEnv)]; ok {
		return fmt.Errorf("variables: env scope is computed from the runtime section")
	}

	return nil
}
