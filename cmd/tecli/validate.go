package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seantiz/testengine-ci/internal/workflow"
)

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the test engine accepts our credentials",
		Long: `Validate lists the engine's test jobs once. It fails if the engine is
unreachable or rejects the configured credentials.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open()
			if err != nil {
				return err
			}
			defer s.Close()

			jobs, err := workflow.ValidateConnection(cmd.Context(), s.client, s.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connection ok: %s (%d executions)\n", s.client.BaseURL(), len(jobs.Executions))
			return nil
		},
	}
}
