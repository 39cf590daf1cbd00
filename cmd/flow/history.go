package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cognicore/flow/pkg/flow/store"
	"github.com/cognicore/flow/pkg/flow/store/sqlite"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs and the most common replacements",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyOpts struct {
	limit int
	top   int
}

func init() {
	historyCmd.Flags().IntVarP(&historyOpts.limit, "limit", "n", 10, "Runs to show")
	historyCmd.Flags().IntVar(&historyOpts.top, "top", 10, "Replacements to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	comp, err := loadComponents()
	if err != nil {
		return err
	}
	if comp.Config.Store.Path == "" {
		return fmt.Errorf("no run log configured: use --db or store.path")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := sqlite.OpenSQLite(ctx, comp.Config.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, historyOpts.limit)
	if err != nil {
		return err
	}
	top, err := st.TopReplacements(ctx, historyOpts.top)
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), runs, top)
	return nil
}

func printHistory(w io.Writer, runs []store.Run, top []store.Replacement) {
	fmt.Fprintln(w, "Recent runs:")
	if len(runs) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, r := range runs {
		fmt.Fprintf(w, "  %s  %s  %d edit(s)\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04"), len(r.Edits))
	}
	fmt.Fprintln(w, "\nTop replacements:")
	if len(top) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, t := range top {
		fmt.Fprintf(w, "  %4d  %s -> %s\n", t.Count, t.Original, t.Replacement)
	}
}
