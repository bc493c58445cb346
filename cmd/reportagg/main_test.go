package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/reportagg/internal/persistence"
	"github.com/aristath/reportagg/internal/shell"
)

const testBuild = `default: [a:test, b:test, testAggregateReport]
tasks:
  - id: a:compile
    run: mkdir -p a/build
  - id: a:test
    depends_on: [a:compile]
    run: test -f a/build/reports/index.html || echo '<html>a</html>' > a/build/reports/index.html
    reports:
      test_type: unit-test
      slots:
        - name: html
          path: a/build/reports/index.html
        - name: xml
          path: a/build/results.xml
          enabled: false
  - id: b:test
    run: %s
    reports:
      test_type: unit-test
      slots:
        - name: html
          path: b/build/reports/index.html
`

// setupProject writes a build file whose b:test runs bCommand.
func setupProject(t *testing.T, bCommand string) projectOptions {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "build", "reports"), 0755))
	file := filepath.Join(root, "reportagg.yaml")
	content := strings.Replace(testBuild, "%s", bCommand, 1)
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return projectOptions{BuildFile: file, LogLevel: "error"}
}

func outputPath(opts projectOptions) string {
	return filepath.Join(filepath.Dir(opts.BuildFile), "build", "reports", "testAggregateReport", "index.html")
}

func build(t *testing.T, opts projectOptions, req buildRequest) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := runBuild(context.Background(), opts, req, shell.NewProcessManager(), &out)
	return out.String(), err
}

func TestRunBuildIncremental(t *testing.T) {
	opts := setupProject(t, "mkdir -p b/build/reports && echo '<html>b</html>' > b/build/reports/index.html")

	out, err := build(t, opts, buildRequest{})
	require.NoError(t, err, out)
	require.Contains(t, out, "SUCCEEDED    testAggregateReport")

	html, err := os.ReadFile(outputPath(opts))
	require.NoError(t, err)
	require.Contains(t, string(html), "a/build/reports/index.html")
	require.Contains(t, string(html), "b/build/reports/index.html")
	require.NotContains(t, string(html), "results.xml")

	// b:test rewrites its report every time; make that unobservable
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(opts.BuildFile), "reportagg.yaml"),
		[]byte(strings.Replace(testBuild, "%s", "true", 1)), 0644))
	require.NoError(t, os.Chtimes(filepath.Join(filepath.Dir(opts.BuildFile), "b", "build", "reports", "index.html"), old, old))

	out, err = build(t, opts, buildRequest{})
	require.NoError(t, err, out)
	require.Contains(t, out, "SKIPPED      testAggregateReport UP-TO-DATE")

	// Switching a report on changes what is aggregated
	out, err = build(t, opts, buildRequest{Switches: []string{"a:test/xml=on"}})
	require.NoError(t, err, out)
	require.Contains(t, out, "SUCCEEDED    testAggregateReport")
	html, err = os.ReadFile(outputPath(opts))
	require.NoError(t, err)
	require.Contains(t, string(html), "unavailable")
}

func TestRunBuildProducerFailure(t *testing.T) {
	opts := setupProject(t, "exit 1")

	out, err := build(t, opts, buildRequest{Continue: true})
	require.ErrorIs(t, err, errBuildFailed)
	require.Contains(t, out, "FAILED       b:test")
	require.Contains(t, out, "SUCCEEDED    testAggregateReport")

	html, err := os.ReadFile(outputPath(opts))
	require.NoError(t, err)
	require.Contains(t, string(html), "unavailable: not produced")
}

func TestRunBuildStopsOnFailure(t *testing.T) {
	opts := setupProject(t, "exit 1")

	out, err := build(t, opts, buildRequest{})
	require.ErrorIs(t, err, errBuildFailed)
	require.Contains(t, out, "NOT-EXECUTED testAggregateReport")
	require.NoFileExists(t, outputPath(opts))
}

func TestRunBuildRequestedTasks(t *testing.T) {
	opts := setupProject(t, "true")

	out, err := build(t, opts, buildRequest{Tasks: []string{"a:compile"}})
	require.NoError(t, err, out)
	require.Contains(t, out, "a:compile")
	require.NotContains(t, out, "testAggregateReport")

	_, err = build(t, opts, buildRequest{Tasks: []string{"nope"}})
	require.Error(t, err)
}

func TestRunBuildInvalidSwitch(t *testing.T) {
	opts := setupProject(t, "true")
	_, err := build(t, opts, buildRequest{Switches: []string{"a:test/pdf=on"}})
	require.Error(t, err)
}

func TestCleanAggregates(t *testing.T) {
	opts := setupProject(t, "true")
	_, err := build(t, opts, buildRequest{})
	require.NoError(t, err)
	require.FileExists(t, outputPath(opts))

	p, err := loadProject(opts)
	require.NoError(t, err)
	store, err := p.openStore(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, cleanAggregates(context.Background(), p, store, &out))
	require.Contains(t, out.String(), "cleaned testAggregateReport")
	require.NoFileExists(t, outputPath(opts))

	_, err = store.GetTaskState(context.Background(), "testAggregateReport")
	require.ErrorIs(t, err, persistence.ErrNotFound)
	require.NoError(t, store.Close())
}

func TestParseSwitch(t *testing.T) {
	tests := []struct {
		in      string
		key     string
		on      bool
		wantErr bool
	}{
		{"a:test/xml=on", "a:test/xml", true, false},
		{"a:test/xml=OFF", "a:test/xml", false, false},
		{"a:test/xml=yes", "a:test/xml", true, false},
		{"a:test/xml", "", false, true},
		{"=on", "", false, true},
		{"a:test/xml=maybe", "", false, true},
	}
	for _, tt := range tests {
		key, on, err := parseSwitch(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseSwitch(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || key != tt.key || on != tt.on {
			t.Errorf("parseSwitch(%q) = %q, %v, %v", tt.in, key, on, err)
		}
	}
}

func TestPrintOutcomes(t *testing.T) {
	var out bytes.Buffer
	printOutcomes(&out, []persistence.OutcomeRecord{
		{BuildID: "b-1", TaskID: "a:test", Status: "FAILED", Error: "exit status 1", RecordedAt: time.Now()},
		{BuildID: "b-1", TaskID: "testAggregateReport", Status: "SKIPPED", Reason: "UP-TO-DATE", RecordedAt: time.Now()},
	})
	got := out.String()
	require.Contains(t, got, "Build b-1")
	require.Contains(t, got, "exit status 1")
	require.Contains(t, got, "UP-TO-DATE")
}

func TestInitConfig(t *testing.T) {
	opts := setupProject(t, "true")
	path := filepath.Join(filepath.Dir(opts.BuildFile), ".reportagg", "config.json")

	var out bytes.Buffer
	require.NoError(t, initConfig(opts, false, &out))
	require.Contains(t, out.String(), path)

	p, err := loadProject(opts)
	require.NoError(t, err)
	require.Equal(t, []string{"test", "unitTest"}, p.aggregatorNames())
	require.Equal(t, "unit-test", p.cfg.Aggregators["unitTest"].TestType)

	err = initConfig(opts, false, &out)
	require.ErrorIs(t, err, errConfigExists)
	require.NoError(t, initConfig(opts, true, &out))
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"init", "run", "outcomes", "clean"})
}
