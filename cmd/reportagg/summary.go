package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/aristath/reportagg/internal/aggregate"
	"github.com/aristath/reportagg/internal/orchestrator"
	"github.com/aristath/reportagg/internal/persistence"
)

// Status styles
var (
	styleSucceeded = lipgloss.NewStyle().
			Foreground(lipgloss.Color("green")).
			Bold(true)

	styleFailed = lipgloss.NewStyle().
			Foreground(lipgloss.Color("red")).
			Bold(true)

	styleSkipped = lipgloss.NewStyle().
			Foreground(lipgloss.Color("yellow"))

	styleNotExecuted = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true)

	styleDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "SUCCEEDED":
		return styleSucceeded
	case "FAILED":
		return styleFailed
	case "SKIPPED":
		return styleSkipped
	}
	return styleNotExecuted
}

// statusColumn pads outside the styled text so ANSI codes do not break alignment.
func statusColumn(status string) string {
	pad := 12 - len(status)
	if pad < 0 {
		pad = 0
	}
	return statusStyle(status).Render(status) + strings.Repeat(" ", pad)
}

func outcomeDetail(rec persistence.OutcomeRecord) string {
	switch {
	case rec.Error != "":
		return rec.Error
	case rec.Reason != "":
		return rec.Reason
	}
	return ""
}

func printSummary(w io.Writer, s *orchestrator.Summary, aggregators []*aggregate.Aggregator) {
	fmt.Fprintln(w, styleTitle.Render("Build "+s.BuildID))
	for _, rec := range s.Outcomes {
		line := statusColumn(rec.Status) + " " + rec.TaskID
		if detail := outcomeDetail(rec); detail != "" {
			line += " " + styleDim.Render(detail)
		}
		fmt.Fprintln(w, line)
	}

	for _, agg := range aggregators {
		rec, ok := s.Outcome(agg.TaskID())
		if !ok || rec.Status == "NOT-EXECUTED" {
			continue
		}
		info, err := os.Stat(agg.Output())
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s %s (%s)\n", styleTitle.Render("Report:"), agg.Output(), humanize.Bytes(uint64(info.Size())))
	}

	counts := []string{
		fmt.Sprintf("%d succeeded", s.Succeeded),
		fmt.Sprintf("%d failed", s.Failed),
		fmt.Sprintf("%d skipped", s.Skipped),
		fmt.Sprintf("%d not executed", s.NotExecuted),
	}
	fmt.Fprintf(w, "%s in %s\n", strings.Join(counts, ", "), s.Duration.Round(time.Millisecond))
}

func printOutcomes(w io.Writer, records []persistence.OutcomeRecord) {
	fmt.Fprintln(w, styleTitle.Render("Build "+records[0].BuildID))
	for _, rec := range records {
		line := statusColumn(rec.Status) + " " + rec.TaskID + " " + styleDim.Render(humanize.Time(rec.RecordedAt))
		if detail := outcomeDetail(rec); detail != "" {
			line += " " + detail
		}
		fmt.Fprintln(w, line)
	}
}
