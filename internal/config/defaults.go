package config

import "path/filepath"

// DefaultConfig returns the default configuration: one aggregate over every
// test report, stored under the project's build directory.
func DefaultConfig() *Config {
	return &Config{
		ReportDir:   filepath.Join("build", "reports"),
		StatePath:   filepath.Join(".reportagg", "state.db"),
		Concurrency: 4,
		LogLevel:    "info",
		LogFormat:   "text",
		Aggregators: map[string]AggregatorConfig{
			"test": {Title: "Test results"},
		},
	}
}
