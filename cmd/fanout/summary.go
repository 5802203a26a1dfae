package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robofuse/fanout/internal/console"
	"github.com/robofuse/fanout/pkg/command"
	"github.com/robofuse/fanout/pkg/engine"
)

// summary.go formats the live header and the end-of-run summary.

// SummaryOptions controls summary formatting.
type SummaryOptions struct {
	Status    string
	Succeeded int64
	Bytes     int64
}

// FormatSummary builds a single-line summary of a run.
func FormatSummary(result *engine.Result, opts SummaryOptions) string {
	status := opts.Status
	if status == "" {
		status = "summary | status=ok"
	}

	parts := []string{
		status,
		fmt.Sprintf("processed=%d succeeded=%d failed=%d", result.Processed, opts.Succeeded, result.Failed),
	}

	if result.Pending > 0 {
		parts = append(parts, fmt.Sprintf("pending=%d", result.Pending))
	}

	parts = append(parts, fmt.Sprintf("peak_workers=%d", result.PeakWorkers))

	if opts.Bytes > 0 {
		parts = append(parts, fmt.Sprintf("input=%s", humanize.IBytes(uint64(opts.Bytes))))
	}

	if result.Duration > 0 {
		parts = append(parts, fmt.Sprintf("duration=%s", result.Duration.Round(time.Millisecond)))
	}

	return strings.Join(parts, " | ")
}

// progressStatus is the header line of the live display.
func progressStatus(runner *command.Runner) console.StatusFunc {
	return func(s console.Status) string {
		return formatProgress(s, runner.Bytes())
	}
}

// formatProgress shows the total as "~n" while discovery may still add files.
func formatProgress(s console.Status, bytes int64) string {
	total := humanize.Comma(int64(s.Processed + s.InFlight + s.Pending))
	if !s.ProducerDone {
		total = "~" + total
	}

	parts := []string{
		fmt.Sprintf("%s/%s done", humanize.Comma(int64(s.Processed)), total),
		fmt.Sprintf("%s pending", humanize.Comma(int64(s.Pending))),
		fmt.Sprintf("%d workers", s.Workers),
	}
	if s.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Failed))
	}
	parts = append(parts, fmt.Sprintf("%d/s", s.PerSecond))
	if bytes > 0 {
		parts = append(parts, humanize.IBytes(uint64(bytes)))
	}
	return strings.Join(parts, " | ")
}
