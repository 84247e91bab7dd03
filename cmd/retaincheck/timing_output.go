package main

import (
	"fmt"
	"io"

	"retaincheck/internal/observ"
)

func printTimings(out io.Writer, path string, report *observ.Report) {
	if out == nil || report == nil || len(report.Phases) == 0 {
		return
	}
	fmt.Fprintf(out, "timings for %s (%.1f ms)\n", path, report.TotalMS)
	for _, p := range report.Phases {
		if p.Note != "" {
			fmt.Fprintf(out, "  %-8s %8.1f ms  %s\n", p.Name, p.DurationMS, p.Note)
			continue
		}
		fmt.Fprintf(out, "  %-8s %8.1f ms\n", p.Name, p.DurationMS)
	}
}
