package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/testengine-ci/internal/workflow"
)

func newHealthCmd(c *cli) *cobra.Command {
	var interval, maxWait time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Wait until the test engine is reachable",
		Long: `Health probes the engine's version endpoint until it answers. Any answer
below 500, including 401 and 404, counts as ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open()
			if err != nil {
				return err
			}
			defer s.Close()

			opts := workflow.WaitOptions{
				Interval: s.cfg.Health.Interval.Duration(),
				MaxWait:  s.cfg.Health.MaxWait.Duration(),
				Logger:   s.logger,
			}
			if cmd.Flags().Changed("interval") {
				opts.Interval = interval
			}
			if cmd.Flags().Changed("max-wait") {
				opts.MaxWait = maxWait
			}

			res, err := workflow.WaitForServer(cmd.Context(), s.client, opts)
			return outcomeError("test engine readiness", res.Outcome, err)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", workflow.DefaultServerInterval, "time between probes")
	cmd.Flags().DurationVar(&maxWait, "max-wait", workflow.DefaultServerMaxWait, "maximum time to wait")
	return cmd
}
