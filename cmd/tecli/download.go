package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/testengine-ci/internal/testengine"
	"github.com/seantiz/testengine-ci/internal/workflow"
)

const defaultResultsDir = "temp-results"

type downloadFlags struct {
	dir         string
	settleDelay time.Duration
	formats     []string
	skipLogs    bool
}

func (f *downloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.dir, "output", "o", defaultResultsDir, "directory to write results to")
	cmd.Flags().DurationVar(&f.settleDelay, "settle-delay", 0, "wait before downloading so reports can be generated")
	cmd.Flags().StringSliceVar(&f.formats, "formats", nil, "report formats to fetch: json, junit, excel, pdf (default all)")
	cmd.Flags().BoolVar(&f.skipLogs, "skip-logs", false, "do not download the execution log")
}

func (f *downloadFlags) options(s *session) (workflow.DownloadOptions, error) {
	formats, err := selectFormats(f.formats)
	if err != nil {
		return workflow.DownloadOptions{}, err
	}
	return workflow.DownloadOptions{
		SettleDelay: f.settleDelay,
		Formats:     formats,
		SkipLogs:    f.skipLogs,
		Logger:      s.logger,
	}, nil
}

// selectFormats maps format names onto report formats. No names selects all.
func selectFormats(names []string) ([]testengine.ReportFormat, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]testengine.ReportFormat, 0, len(names))
	for _, n := range names {
		found := false
		for _, f := range testengine.ReportFormats {
			if strings.EqualFold(f.Name, strings.TrimSpace(n)) {
				out = append(out, f)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown report format %q", n)
		}
	}
	return out, nil
}

func newDownloadCmd(c *cli) *cobra.Command {
	var flags downloadFlags
	cmd := &cobra.Command{
		Use:   "download <execution-id>",
		Short: "Download reports and logs of an execution",
		Long: `Download fetches the JSON, JUnit, Excel and PDF reports and the execution
log, then writes download-summary.json. Formats the engine does not serve
are skipped with a warning; the command fails only if nothing could be
downloaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open()
			if err != nil {
				return err
			}
			defer s.Close()

			opts, err := flags.options(s)
			if err != nil {
				return err
			}
			summary, err := workflow.DownloadResults(cmd.Context(), s.client, args[0], flags.dir, opts)
			if err != nil {
				return fmt.Errorf("download results: %w", err)
			}
			for _, f := range summary.DownloadedFiles {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
