package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/testengine-ci/internal/poll"
	"github.com/seantiz/testengine-ci/internal/workflow"
)

func newActivateLicenseCmd(c *cli) *cobra.Command {
	var attempts int
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "activate-license",
		Short: "Activate the engine license unless it is already valid",
		Long: `Activate-license checks the engine's license and activates
TESTENGINE_LICENSE_KEY if none is valid. An engine that reports the
license as already activated counts as success.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open()
			if err != nil {
				return err
			}
			defer s.Close()

			req := s.cfg.LicenseRequest()
			if req.AccessKey == "" {
				return errors.New("license key is required (set TESTENGINE_LICENSE_KEY)")
			}

			res, err := workflow.ActivateLicense(cmd.Context(), s.client, req, poll.RetryConfig{
				MaxAttempts: attempts,
				Delay:       delay,
			}, s.logger)
			if err != nil {
				return err
			}
			switch {
			case res.AlreadyValid:
				s.logger.Info("license already valid")
			case res.AlreadyActivated:
				s.logger.Info("license was already activated")
			default:
				s.logger.Info("license activated")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", workflow.DefaultActivationAttempts, "activation attempts")
	cmd.Flags().DurationVar(&delay, "retry-delay", workflow.DefaultActivationDelay, "delay between attempts")
	return cmd
}
