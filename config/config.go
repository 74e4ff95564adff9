// Package config loads gateway configuration from a YAML file, falls
// back to in-code defaults when the file is absent, and then overlays
// CONDUCTOR_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// KeyConfig is one API credential for a provider.
type KeyConfig struct {
	APIKey            string `yaml:"api_key"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	TokensPerMinute   int    `yaml:"tokens_per_minute"`
	Name              string `yaml:"name,omitempty"`
}

// ProviderConfig configures one upstream adapter.
type ProviderConfig struct {
	Enabled         bool        `yaml:"enabled"`
	BaseURL         string      `yaml:"base_url"`
	DefaultModel    string      `yaml:"default_model"`
	SupportedModels []string    `yaml:"supported_models"`
	Keys            []KeyConfig `yaml:"keys"`
}

// ConductorConfig holds scheduler-wide tuning knobs.
type ConductorConfig struct {
	SchedulingStrategy string  `yaml:"scheduling_strategy"`
	RequestTimeout     int     `yaml:"request_timeout"`
	MaxRetries         int     `yaml:"max_retries"`
	RetryDelay         float64 `yaml:"retry_delay"`
}

// FileConfig is the shape of the YAML configuration file.
type FileConfig struct {
	Conductor ConductorConfig              `yaml:"conductor"`
	Providers map[string]ProviderConfig    `yaml:"providers"`
	Models    map[string]map[string]string `yaml:"models"`
}

// Config is the fully resolved configuration used to wire the gateway.
type Config struct {
	// Server
	Host            string
	Port            int
	Env             string
	GracefulTimeout time.Duration

	// Logging
	LogLevel string

	// Redis (optional; used only for the status mirror)
	RedisURL string

	// Body limits
	MaxBodyBytes int64

	// Scheduler
	Conductor ConductorConfig
	Providers map[string]ProviderConfig
	Models    map[string]map[string]string
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// DefaultFileConfig returns the built-in provider/scheduling defaults used
// when no YAML file is present, mirroring the seed configuration of the
// original conductor: Cerebras and NVIDIA, round-robin scheduling.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Conductor: ConductorConfig{
			SchedulingStrategy: "round_robin",
			RequestTimeout:     120,
			MaxRetries:         3,
			RetryDelay:         1.0,
		},
		Providers: map[string]ProviderConfig{
			"cerebras": {
				Enabled:      true,
				BaseURL:      "https://api.cerebras.ai/v1",
				DefaultModel: "llama-3.3-70b",
				SupportedModels: []string{
					"llama-3.3-70b", "llama-3.1-8b", "llama-3.1-70b",
				},
			},
			"nvidia": {
				Enabled:      true,
				BaseURL:      "https://integrate.api.nvidia.com/v1",
				DefaultModel: "meta/llama-3.1-8b-instruct",
				SupportedModels: []string{
					"meta/llama-3.1-8b-instruct",
					"meta/llama-3.1-70b-instruct",
					"meta/llama-3.3-70b-instruct",
				},
			},
		},
	}
}

// loadFile reads and parses the YAML file at path. A missing file is not
// an error: the caller falls back to DefaultFileConfig.
func loadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultFileConfig(), nil
		}
		return FileConfig{}, fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse config file: %w", err)
	}
	return fc, nil
}

// Load builds the resolved Config: YAML file (or defaults) overlaid with
// CONDUCTOR_-prefixed environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := getEnv("CONDUCTOR_CONFIG_PATH", "./config/config.yaml")
	fc, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	gracefulSec := getEnvInt("CONDUCTOR_GRACEFUL_TIMEOUT_SEC", 15)

	cfg := &Config{
		Host:            getEnv("CONDUCTOR_HOST", "0.0.0.0"),
		Port:            getEnvInt("CONDUCTOR_PORT", 8000),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,
		LogLevel:        getEnv("CONDUCTOR_LOG_LEVEL", "info"),
		RedisURL:        getEnv("CONDUCTOR_REDIS_URL", ""),
		MaxBodyBytes:    int64(getEnvInt("CONDUCTOR_MAX_BODY_BYTES", 1*1024*1024)),
		Conductor:       fc.Conductor,
		Providers:       fc.Providers,
		Models:          fc.Models,
	}

	applyKeyEnvOverrides(cfg)
	return cfg, nil
}

// applyKeyEnvOverrides lets API keys be supplied outside the YAML file via
// <PROVIDER>_API_KEY / <PROVIDER>_API_KEY_<N>, so credentials never need
// to be committed alongside provider/model configuration.
func applyKeyEnvOverrides(cfg *Config) {
	for name, pc := range cfg.Providers {
		envName := envSafe(name)
		if key := os.Getenv(envName + "_API_KEY"); key != "" && len(pc.Keys) == 0 {
			pc.Keys = append(pc.Keys, KeyConfig{
				APIKey:            key,
				RequestsPerMinute: 60,
				TokensPerMinute:   100000,
				Name:              "default",
			})
		}
		for i := 1; ; i++ {
			key := os.Getenv(fmt.Sprintf("%s_API_KEY_%d", envName, i))
			if key == "" {
				break
			}
			pc.Keys = append(pc.Keys, KeyConfig{
				APIKey:            key,
				RequestsPerMinute: 60,
				TokensPerMinute:   100000,
				Name:              fmt.Sprintf("key-%d", i),
			})
		}
		cfg.Providers[name] = pc
	}
}

func envSafe(providerName string) string {
	out := make([]byte, len(providerName))
	for i := 0; i < len(providerName); i++ {
		c := providerName[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
