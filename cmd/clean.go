package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/incbuild/internal/pipeline"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "clean",
		Short:        "Remove the build directory and build cache",
		Long:         `Remove the build output directory together with the build cache. The cache is only ever cleared as a whole.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}

			if err := pipeline.Clean(s.cfg); err != nil {
				return err
			}

			s.console.Cleaned(s.cfg.BuildDir)
			return nil
		},
	}
}
