package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Serve the build directory",
		Long:         `Serve the build directory over HTTP, along with build metrics at /metrics and recent runs at /api/runs.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}

			return s.serve(cmd.Context())
		},
	}
}
