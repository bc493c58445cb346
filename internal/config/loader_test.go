package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name              string
		global            string
		project           string
		expectReportDir   string
		expectConcurrency int
		expectContinue    bool
		expectAggregators int
		checkAggregator   string
		expectTestType    string
	}{
		{
			name:              "No config files - returns defaults",
			expectReportDir:   filepath.Join("build", "reports"),
			expectConcurrency: 4,
			expectAggregators: 1,
		},
		{
			name:              "Global only - adds aggregator",
			global:            `{"aggregators": {"integrationTest": {"test_type": "integration-test"}}}`,
			expectReportDir:   filepath.Join("build", "reports"),
			expectConcurrency: 4,
			expectAggregators: 2,
			checkAggregator:   "integrationTest",
			expectTestType:    "integration-test",
		},
		{
			name:              "Project only - overrides scalars",
			project:           `{"report_dir": "out", "concurrency": 8, "continue_on_failure": true}`,
			expectReportDir:   "out",
			expectConcurrency: 8,
			expectContinue:    true,
			expectAggregators: 1,
		},
		{
			name:              "Project overrides global - project wins",
			global:            `{"concurrency": 2, "aggregators": {"test": {"test_type": "unit-test"}}}`,
			project:           `{"aggregators": {"test": {"test_type": "integration-test"}}}`,
			expectReportDir:   filepath.Join("build", "reports"),
			expectConcurrency: 2,
			expectAggregators: 1,
			checkAggregator:   "test",
			expectTestType:    "integration-test",
		},
		{
			name:              "Absent fields keep earlier values",
			global:            `{"continue_on_failure": true}`,
			project:           `{"log_level": "debug"}`,
			expectReportDir:   filepath.Join("build", "reports"),
			expectConcurrency: 4,
			expectContinue:    true,
			expectAggregators: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.global != "" {
				globalPath = writeConfig(t, tmpDir, "global.json", tt.global)
			}
			projectPath := ""
			if tt.project != "" {
				projectPath = writeConfig(t, tmpDir, "project.json", tt.project)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if cfg.ReportDir != tt.expectReportDir {
				t.Errorf("report_dir = %q, want %q", cfg.ReportDir, tt.expectReportDir)
			}
			if cfg.Concurrency != tt.expectConcurrency {
				t.Errorf("concurrency = %d, want %d", cfg.Concurrency, tt.expectConcurrency)
			}
			if cfg.ContinueOnFailure != tt.expectContinue {
				t.Errorf("continue_on_failure = %v, want %v", cfg.ContinueOnFailure, tt.expectContinue)
			}
			if got := len(cfg.Aggregators); got != tt.expectAggregators {
				t.Errorf("aggregators count = %d, want %d", got, tt.expectAggregators)
			}

			if tt.checkAggregator != "" {
				agg, exists := cfg.Aggregators[tt.checkAggregator]
				if !exists {
					t.Fatalf("expected aggregator %q not found", tt.checkAggregator)
				}
				if agg.TestType != tt.expectTestType {
					t.Errorf("aggregator %q test_type = %q, want %q", tt.checkAggregator, agg.TestType, tt.expectTestType)
				}
			}
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	globalPath := writeConfig(t, t.TempDir(), "global.json", "{invalid json")

	_, err := Load(globalPath, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
	if !strings.Contains(err.Error(), "global.json") {
		t.Errorf("expected error to name the file, got %v", err)
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}
	if len(cfg.Aggregators) != 1 {
		t.Errorf("aggregators count = %d, want 1", len(cfg.Aggregators))
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		project string
		errText string
	}{
		{"zero concurrency", `{"concurrency": 0}`, "concurrency"},
		{"unknown log format", `{"log_format": "xml"}`, "log_format"},
		{"empty report dir", `{"report_dir": ""}`, "report_dir"},
		{"empty aggregator name", `{"aggregators": {"": {}}}`, "aggregator name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "project.json", tt.project)
			_, err := Load("", path)
			if err == nil || !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("expected error mentioning %q, got %v", tt.errText, err)
			}
		})
	}
}

func TestGlobalPath(t *testing.T) {
	path := GlobalPath()
	if !strings.HasSuffix(path, filepath.Join("reportagg", "config.json")) {
		t.Errorf("unexpected global path %q", path)
	}
}
