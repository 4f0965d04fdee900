// Package config loads the apicheck CLI configuration from
// ~/.apicheck/config.yaml and APICHECK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigDir is the directory under the user's home for CLI state.
const DefaultConfigDir = ".apicheck"

// DefaultConfigFile is the config file name within the config directory.
const DefaultConfigFile = "config.yaml"

// EnvPrefix prefixes every environment override, e.g. APICHECK_LOG_LEVEL.
const EnvPrefix = "APICHECK"

// Config holds CLI settings.
type Config struct {
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// Concurrency is the number of scenarios run at once.
	Concurrency int
	// FakeSeed makes {fake.*} values reproducible when non-zero.
	FakeSeed uint64

	Log     LogConfig
	Report  ReportConfig
	Metrics MetricsConfig
}

// LogConfig selects the zap logger level, encoding and destination.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// ReportConfig controls report files written after a run.
type ReportConfig struct {
	// JSON is a path for the machine-readable run summary. Empty disables it.
	JSON string
}

// MetricsConfig controls the metrics export written after a run.
type MetricsConfig struct {
	// Textfile is a path for a Prometheus textfile export. Empty disables it.
	Textfile string
}

// Path returns ~/.apicheck/config.yaml.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// Load reads ~/.apicheck/config.yaml if it exists, then applies
// environment overrides. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return LoadFrom("")
	}
	return LoadFrom(path)
}

// LoadFrom reads the config file at path (YAML or JSON by extension) and
// applies environment overrides. An empty path reads no file.
//
// Priority (highest to lowest):
// 1. Environment variables with the APICHECK_ prefix
// 2. The config file
// 3. Built-in defaults
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Timeout:     v.GetDuration("timeout"),
		Concurrency: v.GetInt("concurrency"),
		FakeSeed:    v.GetUint64("fake_seed"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Report: ReportConfig{
			JSON: v.GetString("report.json"),
		},
		Metrics: MetricsConfig{
			Textfile: v.GetString("metrics.textfile"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("concurrency", 4)
	v.SetDefault("fake_seed", 0)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("report.json", "")
	v.SetDefault("metrics.textfile", "")
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
