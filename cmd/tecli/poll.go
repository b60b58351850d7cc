package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/testengine-ci/internal/workflow"
)

func newPollCmd(c *cli) *cobra.Command {
	var interval, maxWait time.Duration
	cmd := &cobra.Command{
		Use:   "poll <execution-id> [max-wait-minutes]",
		Short: "Wait for an execution to finish",
		Long: `Poll reads the execution status until it is terminal. It exits non-zero
if the execution failed, was cancelled, or did not finish in time.

The optional second argument is the maximum wait in minutes, kept for
compatibility with older pipeline scripts; --max-wait takes precedence.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open()
			if err != nil {
				return err
			}
			defer s.Close()

			opts := workflow.WaitOptions{
				Interval: s.cfg.Poll.Interval.Duration(),
				MaxWait:  s.cfg.Poll.MaxWait.Duration(),
				Logger:   s.logger,
			}
			if len(args) == 2 {
				minutes, err := strconv.Atoi(args[1])
				if err != nil || minutes <= 0 {
					return fmt.Errorf("max-wait-minutes must be a positive integer, got %q", args[1])
				}
				opts.MaxWait = time.Duration(minutes) * time.Minute
			}
			if cmd.Flags().Changed("interval") {
				opts.Interval = interval
			}
			if cmd.Flags().Changed("max-wait") {
				opts.MaxWait = maxWait
			}

			res, err := workflow.WaitForExecution(cmd.Context(), s.client, args[0], opts)
			if err := outcomeError("execution", res.Outcome, err); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", res.Payload.Status)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", workflow.DefaultExecutionInterval, "time between status checks")
	cmd.Flags().DurationVar(&maxWait, "max-wait", workflow.DefaultExecutionMaxWait, "maximum time to wait")
	return cmd
}
