// Package main is the entry point for the tecli CLI.
//
// tecli drives a remote test engine from a CI job: it uploads a project,
// starts and polls the execution, and downloads its reports.
//
// Usage:
//
//	tecli health                      # wait for the engine to come up
//	tecli activate-license            # activate TESTENGINE_LICENSE_KEY
//	tecli run project.xml             # upload, start, poll and download
//	ID=$(tecli upload project.xml)    # upload only, prints the job id
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/testengine-ci/internal/config"
	"github.com/seantiz/testengine-ci/internal/poll"
	"github.com/seantiz/testengine-ci/internal/testengine"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// cli holds the flags shared by every subcommand.
type cli struct {
	configPath string
	url        string
	logLevel   string
	stderr     io.Writer
}

// session is what a subcommand needs to talk to the engine.
type session struct {
	cfg    *config.ClientConfig
	client *testengine.Client
	logger *slog.Logger
}

func (c *cli) open() (*session, error) {
	cfg, err := config.LoadClient(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.url != "" {
		cfg.URL = c.url
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	logger := config.NewLogger(c.stderr, cfg.LogLevelValue())

	opts, err := cfg.ClientOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, testengine.WithLogger(logger))

	client, err := testengine.New(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &session{cfg: cfg, client: client, logger: logger}, nil
}

func (s *session) Close() {
	s.client.Close()
}

// newRootCmd builds the command tree. Results go to stdout, logs to stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stderr: stderr}

	root := &cobra.Command{
		Use:   "tecli",
		Short: "Drive a remote test engine from CI",
		Long: `tecli uploads test projects to a test engine, runs them, waits for the
execution to finish and downloads its reports.

Connection settings come from TESTENGINE_URL, TESTENGINE_USERNAME and
TESTENGINE_PASSWORD, optionally layered over a YAML profile (-c).`,
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a YAML client profile")
	root.PersistentFlags().StringVar(&c.url, "url", "", "test engine base URL (overrides TESTENGINE_URL)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newVersionCmd(),
		newValidateCmd(c),
		newUploadCmd(c),
		newStartCmd(c),
		newPollCmd(c),
		newHealthCmd(c),
		newActivateLicenseCmd(c),
		newDownloadCmd(c),
		newRunCmd(c),
	)
	return root
}

// outcomeError turns a non-successful poll outcome into an error.
func outcomeError(what string, res poll.Outcome, err error) error {
	switch res {
	case poll.OutcomeCompleted:
		return nil
	case poll.OutcomeFailed:
		return fmt.Errorf("%s failed", what)
	case poll.OutcomeCancelled:
		return fmt.Errorf("%s was cancelled", what)
	case poll.OutcomeTimedOut:
		return fmt.Errorf("%s timed out", what)
	}
	if err == nil {
		err = errors.New("unknown error")
	}
	return fmt.Errorf("%s: %w", what, err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
