package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/incbuild/internal/pipeline"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "build",
		Short:        "Build the project",
		Long:         `Compile every stale source and link the web artifact.`,
		RunE:         runBuild,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}

	addBuildFlags(cmd)

	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()

	if info, _ := flags.GetBool("info"); info {
		out, err := s.cfg.YAML()
		if err != nil {
			return fmt.Errorf("failed to render configuration: %w", err)
		}

		fmt.Fprint(s.out, out)
		return nil
	}

	if serverOnly, _ := flags.GetBool("server"); serverOnly {
		return s.serve(cmd.Context())
	}

	if clean, _ := flags.GetBool("clean"); clean {
		if err := pipeline.Clean(s.cfg); err != nil {
			return err
		}

		s.console.Cleaned(s.cfg.BuildDir)
	}

	if _, err := s.build(cmd.Context()); err != nil {
		return err
	}

	if run, _ := flags.GetBool("run"); run {
		return s.serve(cmd.Context())
	}

	return nil
}
