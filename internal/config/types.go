package config

// AggregatorConfig defines one aggregate report. The map key in Config is
// the report name; the aggregator task is named <name>AggregateReport.
type AggregatorConfig struct {
	Title     string   `json:"title,omitempty"`      // Document title (default "<name> aggregate report")
	TestType  string   `json:"test_type,omitempty"`  // Only aggregate producers of this test type
	DependsOn []string `json:"depends_on,omitempty"` // Direct dependencies guarding the aggregator
}

// Config is the top-level configuration.
type Config struct {
	ReportDir         string                      `json:"report_dir"`          // Base directory for aggregate output
	StatePath         string                      `json:"state_path"`          // SQLite database holding task state and outcomes
	Concurrency       int                         `json:"concurrency"`         // Max tasks running at once
	ContinueOnFailure bool                        `json:"continue_on_failure"` // Keep building past task failures
	LogLevel          string                      `json:"log_level"`           // debug, info, warn, error
	LogFormat         string                      `json:"log_format"`          // text or json
	Aggregators       map[string]AggregatorConfig `json:"aggregators"`
}

// fileConfig mirrors Config with optional scalars so that a file only
// overrides the settings it actually contains.
type fileConfig struct {
	ReportDir         *string                     `json:"report_dir"`
	StatePath         *string                     `json:"state_path"`
	Concurrency       *int                        `json:"concurrency"`
	ContinueOnFailure *bool                       `json:"continue_on_failure"`
	LogLevel          *string                     `json:"log_level"`
	LogFormat         *string                     `json:"log_format"`
	Aggregators       map[string]AggregatorConfig `json:"aggregators"`
}
