package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/testengine-ci/internal/poll"
	"github.com/seantiz/testengine-ci/internal/workflow"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		upload   uploadFlags
		download downloadFlags
		interval time.Duration
		maxWait  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <project-file>",
		Short: "Upload, start, wait for and download a test execution",
		Long: `Run performs the whole pipeline: upload the project, start the job, poll
until it is terminal and download its results. Results are downloaded
even when the execution failed, so the reports of a failing run are kept;
the command still exits non-zero in that case.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()

			project := args[0]
			id, err := s.client.UploadProject(ctx, project, upload.options(project))
			if err != nil {
				return fmt.Errorf("upload project: %w", err)
			}
			s.logger.Info("project uploaded", "execution_id", id)
			fmt.Fprintln(cmd.OutOrStdout(), id)

			if err := s.client.StartJob(ctx, id); err != nil {
				return fmt.Errorf("start execution: %w", err)
			}
			s.logger.Info("execution started", "execution_id", id)

			waitOpts := workflow.WaitOptions{
				Interval: s.cfg.Poll.Interval.Duration(),
				MaxWait:  s.cfg.Poll.MaxWait.Duration(),
				Logger:   s.logger,
			}
			if cmd.Flags().Changed("interval") {
				waitOpts.Interval = interval
			}
			if cmd.Flags().Changed("max-wait") {
				waitOpts.MaxWait = maxWait
			}
			res, waitErr := workflow.WaitForExecution(ctx, s.client, id, waitOpts)
			runErr := outcomeError("execution", res.Outcome, waitErr)
			if res.Outcome != poll.OutcomeCompleted && res.Outcome != poll.OutcomeFailed {
				return runErr
			}

			dlOpts, err := download.options(s)
			if err != nil {
				return err
			}
			if _, err := workflow.DownloadResults(ctx, s.client, id, download.dir, dlOpts); err != nil {
				return errors.Join(runErr, fmt.Errorf("download results: %w", err))
			}
			return runErr
		},
	}
	upload.register(cmd)
	download.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", workflow.DefaultExecutionInterval, "time between status checks")
	cmd.Flags().DurationVar(&maxWait, "max-wait", workflow.DefaultExecutionMaxWait, "maximum time to wait")
	return cmd
}
