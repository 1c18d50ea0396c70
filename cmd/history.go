package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/incbuild/internal/history"
	"github.com/Norgate-AV/incbuild/internal/metrics"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "history",
		Short:        "Show recent builds",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runHistory,
	}

	cmd.Flags().IntP("limit", "n", 10, "Number of runs to show")
	cmd.Flags().Bool("clear", false, "Delete the build history")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	if wipe, _ := cmd.Flags().GetBool("clear"); wipe {
		store, err := history.Open(s.cfg.HistoryFile)
		if err != nil {
			return err
		}

		defer store.Close()

		return store.Clear()
	}

	limit, _ := cmd.Flags().GetInt("limit")

	runs, err := history.File(s.cfg.HistoryFile).List(limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(s.out, "No builds recorded yet")
		return nil
	}

	printRuns(s.out, runs)

	return nil
}

func printRuns(w io.Writer, runs []history.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tMODE\tOUTCOME\tCOMPILED\tCACHED\tFAILED\tDURATION")

	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.Started.Local().Format(time.DateTime),
			r.Mode,
			outcomeLabel(r.Outcome),
			r.Compiled,
			r.Cached,
			r.Failed,
			r.Duration.Round(time.Millisecond),
		)
	}

	tw.Flush()
}

func outcomeLabel(outcome string) string {
	if outcome == string(metrics.BuildSuccess) {
		return color.Success.Sprint(outcome)
	}

	return color.Danger.Sprint(outcome)
}
