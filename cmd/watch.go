package cmd

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Norgate-AV/incbuild/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "watch",
		Short:        "Rebuild whenever sources or headers change",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runWatch,
	}

	cmd.Flags().Bool("run", false, "Serve the build directory while watching")
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before a rebuild")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	// A failing first build is reported; the watch still starts
	_, _ = s.build(cmd.Context())

	debounce, _ := cmd.Flags().GetDuration("debounce")
	dirs := append([]string{s.cfg.SourceDir}, s.cfg.IncludeDirs...)
	patterns := append(slices.Clone(s.cfg.SourcePatterns), s.cfg.HeaderPatterns...)

	w := watch.New(dirs, patterns, debounce, func(ctx context.Context, changed []string) error {
		fmt.Fprintf(s.out, "\n%d file(s) changed, rebuilding\n", len(changed))
		_, err := s.build(ctx)
		return err
	}, s.logger)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error { return w.Run(ctx) })

	if run, _ := cmd.Flags().GetBool("run"); run {
		g.Go(func() error { return s.serve(ctx) })
	}

	return g.Wait()
}
