// Package config loads the service configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const envPrefix = "AQUASENSE_"

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Model      ModelConfig      `yaml:"model"`
	Store      StoreConfig      `yaml:"store"`
	Log        LogConfig        `yaml:"log"`
	Prediction PredictionConfig `yaml:"prediction"`
	NATS       NATSConfig       `yaml:"nats"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type ModelConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type StoreConfig struct {
	Driver           string `yaml:"driver"`
	Path             string `yaml:"path"`
	CorruptionPolicy string `yaml:"corruption_policy"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type PredictionConfig struct {
	// CacheSize > 0 memoizes labels for repeated readings.
	CacheSize int `yaml:"cache_size"`
}

// NATSConfig enables the NATS transport when URL is set.
type NATSConfig struct {
	URL     string        `yaml:"url"`
	Subject string        `yaml:"subject"`
	Queue   string        `yaml:"queue"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file or override sets a value.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           8080,
			Timeout:        30 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Model: ModelConfig{
			Type: "decision_tree",
			Path: "model/water_quality_model.json",
		},
		Store: StoreConfig{
			Driver:           "json",
			Path:             "data.json",
			CorruptionPolicy: "quarantine",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		NATS: NATSConfig{
			Subject: "water.predict",
			Queue:   "aquasense",
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads path over the defaults, applies AQUASENSE_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Model.Type = getEnv("MODEL_TYPE", c.Model.Type)
	c.Model.Path = getEnv("MODEL_PATH", c.Model.Path)
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("STORE_PATH", c.Store.Path)
	c.Store.CorruptionPolicy = getEnv("STORE_CORRUPTION_POLICY", c.Store.CorruptionPolicy)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Subject = getEnv("NATS_SUBJECT", c.NATS.Subject)

	var err error
	if c.HTTP.Port, err = getEnvInt("HTTP_PORT", c.HTTP.Port); err != nil {
		return err
	}
	if c.Prediction.CacheSize, err = getEnvInt("CACHE_SIZE", c.Prediction.CacheSize); err != nil {
		return err
	}
	return nil
}

// Validate reports the first setting the service cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: http.port %d out of range", c.HTTP.Port)
	}
	if c.Model.Path == "" {
		return errors.New("config: model.path must be set")
	}
	switch c.Store.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.Path == "" {
		return errors.New("config: store.path must be set")
	}
	switch c.Store.CorruptionPolicy {
	case "", "discard", "quarantine":
	default:
		return fmt.Errorf("config: unknown store.corruption_policy %q", c.Store.CorruptionPolicy)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	if c.Prediction.CacheSize < 0 {
		return errors.New("config: prediction.cache_size must not be negative")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(envPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := strings.TrimSpace(os.Getenv(envPrefix + key))
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
	}
	return i, nil
}
