package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/seantiz/testengine-ci/internal/testengine"
)

type uploadFlags struct {
	testSuite   string
	description string
	environment string
}

func (f *uploadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.testSuite, "test-suite", "", "test suite to run (default \"Test Suite 1\")")
	cmd.Flags().StringVar(&f.description, "description", "", "job description")
	cmd.Flags().StringVar(&f.environment, "environment", "", "environment label")
}

func (f *uploadFlags) options(projectFile string) testengine.UploadOptions {
	opts := testengine.DefaultUploadOptions(filepath.Base(projectFile))
	if f.testSuite != "" {
		opts.TestSuite = f.testSuite
	}
	if f.description != "" {
		opts.JobDescription = f.description
	}
	if f.environment != "" {
		opts.Environment = f.environment
	}
	return opts
}

func newUploadCmd(c *cli) *cobra.Command {
	var flags uploadFlags
	cmd := &cobra.Command{
		Use:   "upload <project-file>",
		Short: "Upload a project and print the new job id",
		Long: `Upload sends a project file to the engine. Only the job id is written to
stdout so it can be captured by the calling script:

  ID=$(tecli upload project.xml)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open()
			if err != nil {
				return err
			}
			defer s.Close()

			project := args[0]
			s.logger.Info("uploading project", "project_file", project)
			id, err := s.client.UploadProject(cmd.Context(), project, flags.options(project))
			if err != nil {
				return fmt.Errorf("upload project: %w", err)
			}
			s.logger.Info("project uploaded", "execution_id", id)

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
