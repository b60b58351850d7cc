package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStartCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "start <execution-id>",
		Short: "Start an uploaded job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open()
			if err != nil {
				return err
			}
			defer s.Close()

			id := args[0]
			if err := s.client.StartJob(cmd.Context(), id); err != nil {
				s.logger.Error("failed to start execution", "execution_id", id, "error", err)
				return fmt.Errorf("start execution: %w", err)
			}
			s.logger.Info("execution started", "execution_id", id)
			return nil
		},
	}
}
