package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/incbuild/internal/config"
	"github.com/Norgate-AV/incbuild/internal/version"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incbuild",
		Short: "Incremental web build for C++ projects",
		Long: `Compiles the sources of a C++ project with em++ into object files,
skipping every unit that has not changed since its last successful compile,
and links them with the raylib web archive into a single HTML artifact.`,
		RunE:          runBuild,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		Version:       version.String(),
	}

	flags := cmd.PersistentFlags()
	flags.Bool("release", false, "Build the optimized release configuration")
	flags.IntP("jobs", "j", config.DefaultJobs, "Number of parallel compile jobs")
	flags.BoolP("verbose", "v", false, "Verbose output")
	flags.StringP("project", "C", "", "Project directory (defaults to the working directory)")
	flags.String("addr", config.DefaultServerAddr, "Address of the local web server")

	addBuildFlags(cmd)

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newCleanCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// addBuildFlags registers the flags shared by the root command and build
func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("clean", false, "Remove the build directory and cache before building")
	cmd.Flags().Bool("run", false, "Serve the build directory after a successful build")
	cmd.Flags().Bool("info", false, "Print the resolved configuration and exit")
	cmd.Flags().Bool("server", false, "Only run the web server, without building")
}

// Execute runs the CLI and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.As(err, new(*reportedError)) {
			fmt.Fprintf(os.Stderr, "%s %v\n", color.Danger.Sprint("Error:"), err)
		}

		os.Exit(1)
	}
}

// reportedError marks an error the console has already shown to the user
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }
