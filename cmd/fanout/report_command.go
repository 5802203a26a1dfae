package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/robofuse/fanout/internal/config"
	"github.com/robofuse/fanout/pkg/media"
	"github.com/robofuse/fanout/pkg/report"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const reportErrorWidth = 60

func newReportCommand(root *rootOptions) *cobra.Command {
	var clearReport bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show files that failed in earlier runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			failures := report.Open(cfg.ReportFile(), zerolog.Nop())
			out := cmd.OutOrStdout()

			if clearReport {
				for _, path := range failures.Paths() {
					failures.Remove(path)
				}
				if err := failures.Save(); err != nil {
					return err
				}
				fmt.Fprintln(out, "Failure report cleared.")
				return nil
			}

			paths := failures.Paths()
			if len(paths) == 0 {
				fmt.Fprintln(out, "No recorded failures.")
				return nil
			}

			rows := make([][]string, 0, len(paths))
			for _, path := range paths {
				f, _ := failures.Get(path)
				rows = append(rows, []string{
					path,
					strconv.Itoa(f.Runs),
					humanize.Time(f.FailedAt),
					media.Truncate(f.Error, reportErrorWidth, "..."),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"File", "Runs", "Last failure", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintf(out, "%d file(s) recorded in %s\n", len(paths), failures.File())
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearReport, "clear", false, "Forget every recorded failure")
	return cmd
}
