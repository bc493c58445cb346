package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// ProjectPath is the project configuration file, relative to the project root.
var ProjectPath = filepath.Join(".reportagg", "config.json")

// GlobalPath returns the per-user configuration file under the XDG config home.
func GlobalPath() string {
	return filepath.Join(xdg.ConfigHome, "reportagg", "config.json")
}

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
func LoadDefault() (*Config, error) {
	return Load(GlobalPath(), ProjectPath)
}

// Validate checks settings that would otherwise fail deep inside a build.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be \"text\" or \"json\", got %q", c.LogFormat)
	}
	if c.ReportDir == "" {
		return errors.New("report_dir must not be empty")
	}
	for name := range c.Aggregators {
		if name == "" {
			return errors.New("aggregator name must not be empty")
		}
	}
	return nil
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded fileConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.ReportDir != nil {
		base.ReportDir = *loaded.ReportDir
	}
	if loaded.StatePath != nil {
		base.StatePath = *loaded.StatePath
	}
	if loaded.Concurrency != nil {
		base.Concurrency = *loaded.Concurrency
	}
	if loaded.ContinueOnFailure != nil {
		base.ContinueOnFailure = *loaded.ContinueOnFailure
	}
	if loaded.LogLevel != nil {
		base.LogLevel = *loaded.LogLevel
	}
	if loaded.LogFormat != nil {
		base.LogFormat = *loaded.LogFormat
	}

	// Aggregators merge by name
	if base.Aggregators == nil {
		base.Aggregators = make(map[string]AggregatorConfig)
	}
	for name, agg := range loaded.Aggregators {
		base.Aggregators[name] = agg
	}

	return nil
}
