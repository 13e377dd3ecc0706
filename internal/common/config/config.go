package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config is the full application configuration, loaded from a JSON file
// or from Consul KV (see consul_kv.go).
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Consul    ConsulConfig    `json:"consul"`
	Jaeger    JaegerConfig    `json:"jaeger"`
	Auth      AuthConfig      `json:"auth"`
	Cache     CacheConfig     `json:"cache"`
	Providers ProvidersConfig `json:"providers"`
	Storage   StorageConfig   `json:"storage"`
	Notify    NotifyConfig    `json:"notify"`
	Worker    WorkerConfig    `json:"worker"`
	Log       LogConfig       `json:"log"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Name          string `json:"name"`            // service name (Consul registration, tracing)
	Host          string `json:"host"`            // bind address
	HTTPPort      int    `json:"http_port"`       // HTTP port
	RateLimitRPS  int    `json:"rate_limit_rps"`  // refill rate of the global token bucket
	RateLimitSize int    `json:"rate_limit_size"` // bucket capacity
}

// DatabaseConfig describes the MySQL connection.
type DatabaseConfig struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	MaxIdle  int    `json:"max_idle"`
	MaxOpen  int    `json:"max_open"`
}

// ConsulConfig locates the local Consul agent.
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig configures tracing.
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // sampling rate 0.0-1.0
}

// AuthConfig configures JWT auth and RBAC.
type AuthConfig struct {
	Enabled      bool     `json:"enabled"`
	JWTSecret    string   `json:"jwt_secret"`
	Issuer       string   `json:"issuer"`
	Audience     string   `json:"audience"`
	TokenTTLHour int      `json:"token_ttl_hours"`
	PublicPaths  []string `json:"public_paths"` // path prefixes served without a token
}

// CacheConfig configures the in-process search/provider cache.
type CacheConfig struct {
	TTLSeconds   int `json:"ttl_seconds"`
	PurgeSeconds int `json:"purge_seconds"`
}

// ProviderEndpoint is one external data source.
type ProviderEndpoint struct {
	BaseURL          string `json:"base_url"`
	APIKey           string `json:"api_key"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
	RateLimitPerHour int    `json:"rate_limit_per_hour"`
}

// ProvidersConfig wires the external data providers and the refresh loop.
type ProvidersConfig struct {
	VINDecoder           ProviderEndpoint `json:"vin_decoder"`
	DMV                  ProviderEndpoint `json:"dmv"`
	Theft                ProviderEndpoint `json:"theft"`
	RefreshIntervalHours int              `json:"refresh_interval_hours"`
	MaxRetries           int              `json:"max_retries"`
}

// StorageConfig locates the object store for generated report PDFs.
type StorageConfig struct {
	Root string `json:"root"`
}

// NotifyConfig holds the delivery URL (shoutrrr format, e.g. smtp://...).
type NotifyConfig struct {
	URL string `json:"url"`
}

// WorkerConfig sizes the report generation worker pool.
type WorkerConfig struct {
	Concurrency         int `json:"concurrency"`
	PollIntervalSeconds int `json:"poll_interval_seconds"`
}

// LogConfig configures the logger facade.
type LogConfig struct {
	Backend string `json:"backend"` // logrus (default), zap
	Level   string `json:"level"`   // debug, info, warn, error
	Format  string `json:"format"`  // json, text
	Output  string `json:"output"`  // stdout, file
	Path    string `json:"path"`    // log file path when output=file
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig reads the JSON config file once per process. A missing file is
// not an error; defaults are used so a dev environment works out of the box.
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		cfg := defaultConfig()
		if unmarshalErr := json.Unmarshal(data, cfg); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
		globalConfig = cfg
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig returns the process-wide config.
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig is the development-environment fallback.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:          "autosentinel",
			Host:          "0.0.0.0",
			HTTPPort:      8080,
			RateLimitRPS:  100,
			RateLimitSize: 200,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "autosentinel",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "localhost:6831",
			Sampler:  1.0,
		},
		Auth: AuthConfig{
			Enabled:      true,
			JWTSecret:    "dev-secret-change-me",
			Issuer:       "autosentinel",
			Audience:     "autosentinel",
			TokenTTLHour: 24,
			PublicPaths: []string{
				"/healthz",
				"/metrics",
				"/api/v1/auth",
				"/api/v1/search",
				"/api/v1/vehicles",
				"/api/v1/stats",
			},
		},
		Cache: CacheConfig{
			TTLSeconds:   300,
			PurgeSeconds: 600,
		},
		Providers: ProvidersConfig{
			VINDecoder: ProviderEndpoint{
				BaseURL:          "https://vpic.example.com/api",
				TimeoutSeconds:   10,
				RateLimitPerHour: 1000,
			},
			DMV: ProviderEndpoint{
				BaseURL:          "https://dmv.example.com/api",
				TimeoutSeconds:   10,
				RateLimitPerHour: 1000,
			},
			Theft: ProviderEndpoint{
				BaseURL:          "https://ncib.example.com/api",
				TimeoutSeconds:   10,
				RateLimitPerHour: 1000,
			},
			RefreshIntervalHours: 6,
			MaxRetries:           3,
		},
		Storage: StorageConfig{
			Root: "data/objects",
		},
		Notify: NotifyConfig{
			URL: "",
		},
		Worker: WorkerConfig{
			Concurrency:         2,
			PollIntervalSeconds: 5,
		},
		Log: LogConfig{
			Backend: "logrus",
			Level:   "debug",
			Format:  "text",
			Output:  "stdout",
			Path:    "logs/app.log",
		},
	}
}
