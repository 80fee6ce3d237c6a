package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/sitesmith/internal/task"
)

func statusOf(res task.Result) RowStatus {
	if res.Succeeded() {
		return RowSucceeded
	}
	return RowFailed
}

// formatRow renders one task line: marker, name, counts and duration.
func formatRow(status RowStatus, name string, inputs, outputs int, d time.Duration) string {
	style := StyleForStatus(status)
	counts := ""
	if status == RowSucceeded || status == RowFailed {
		counts = fmt.Sprintf("%d → %d", inputs, outputs)
	}
	dur := ""
	if d > 0 {
		dur = d.Round(time.Millisecond).String()
	}
	return fmt.Sprintf("%s %s %s %s",
		style.Render(status.Icon()),
		NameStyle.Render(name),
		CounterStyle.Render(counts),
		DimStyle.Render(dur),
	)
}

// RenderReport formats a report as one row per task that ran, warnings
// beneath their task, and a summary line.
func RenderReport(r task.Report) string {
	var b strings.Builder
	var total time.Duration
	for _, res := range r.Results {
		total += res.Duration
		b.WriteString(formatRow(statusOf(res), res.Task, len(res.Inputs), len(res.Outputs), res.Duration))
		b.WriteByte('\n')
		for _, w := range res.Warnings {
			b.WriteString("    ")
			b.WriteString(WarnStyle.Render("warning: " + w))
			b.WriteByte('\n')
		}
	}

	if r.Err != nil {
		b.WriteString(FailedStyle.Render("build failed"))
		b.WriteString(": ")
		b.WriteString(r.Err.Error())
		b.WriteByte('\n')
		return b.String()
	}
	b.WriteString(SucceededStyle.Render(fmt.Sprintf("built %d tasks", len(r.Results))))
	b.WriteString(DimStyle.Render(" in " + total.Round(time.Millisecond).String()))
	b.WriteByte('\n')
	return b.String()
}
