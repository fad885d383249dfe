// Package config loads the intervald configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	iferrors "github.com/vnykmshr/intervalflow/pkg/common/errors"
	"github.com/vnykmshr/intervalflow/pkg/monitor"
	"github.com/vnykmshr/intervalflow/pkg/scheduling/interval"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the root configuration of an intervald instance.
type Config struct {
	Name        string `yaml:"name"`
	MaxWorkers  int    `yaml:"maxWorkers"`
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`
	MetricsAddr string `yaml:"metricsAddr"`

	// ShutdownGrace bounds how long shutdown waits for running callbacks.
	ShutdownGrace string `yaml:"shutdownGrace"`

	Redis    RedisConfig      `yaml:"redis"`
	Monitors []monitor.Config `yaml:"monitors"`
}

// RedisConfig enables the redis sink when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Channel  string `yaml:"channel"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether datapoints go to redis.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Default returns a Config with every optional field filled in.
func Default() *Config {
	return &Config{
		Name:          "intervald",
		MaxWorkers:    interval.DefaultMaxWorkers,
		LogLevel:      "info",
		LogFormat:     FormatConsole,
		MetricsAddr:   ":9090",
		ShutdownGrace: "10s",
		Redis: RedisConfig{
			Channel: monitor.DefaultRedisChannel,
		},
	}
}

// Load reads the YAML file at path over Default(), applies environment
// overrides and validates the result. A missing file yields the defaults.
//
//	INTERVALD_LOG_LEVEL     sets logLevel
//	INTERVALD_METRICS_ADDR  sets metricsAddr
//	INTERVALD_REDIS_ADDR    sets redis.addr
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes data like Load does for a file's content.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("INTERVALD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("INTERVALD_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("INTERVALD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

// Validate returns the first inconsistency found.
func (c *Config) Validate() error {
	if c.MaxWorkers < 1 {
		return iferrors.NewValidationError("config", "maxWorkers", c.MaxWorkers, "must be at least 1")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return iferrors.NewValidationError("config", "logLevel", c.LogLevel, "unknown level").
			WithHint("use trace, debug, info, warn or error")
	}
	switch c.LogFormat {
	case FormatConsole, FormatJSON:
	default:
		return iferrors.NewValidationError("config", "logFormat", c.LogFormat, `must be "console" or "json"`)
	}
	if _, err := c.ShutdownGraceDuration(); err != nil {
		return err
	}
	if c.Redis.DB < 0 {
		return iferrors.NewValidationError("config", "redis.db", c.Redis.DB, "must be >= 0")
	}

	seen := make(map[string]struct{}, len(c.Monitors))
	for i, m := range c.Monitors {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("monitors[%d]: %w", i, err)
		}
		if _, dup := seen[m.ID]; dup {
			return iferrors.NewValidationError("config", fmt.Sprintf("monitors[%d].id", i), m.ID, "duplicate id")
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// ShutdownGraceDuration parses ShutdownGrace.
func (c *Config) ShutdownGraceDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.ShutdownGrace)
	if err != nil || d <= 0 {
		return 0, iferrors.NewValidationError("config", "shutdownGrace", c.ShutdownGrace, "must be a positive duration")
	}
	return d, nil
}
