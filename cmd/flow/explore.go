package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cognicore/flow/pkg/flow/refine"
)

var exploreCmd = &cobra.Command{
	Use:   "explore [file]",
	Short: "Rank every candidate substitution, ignoring thresholds",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExplore,
}

var exploreOpts struct {
	input  inputFlags
	top    int
	asJSON bool
}

func init() {
	f := exploreCmd.Flags()
	f.StringVarP(&exploreOpts.input.text, "text", "t", "", "Text to explore (instead of a file)")
	f.StringVar(&exploreOpts.input.format, "format", "", "Input format: text or html (detected when empty)")
	f.IntVarP(&exploreOpts.top, "top", "n", 5, "Modifications per sentence")
	f.BoolVar(&exploreOpts.asJSON, "json", false, "Print modifications as JSON")

	rootCmd.AddCommand(exploreCmd)
}

func runExplore(cmd *cobra.Command, args []string) error {
	text, err := readInput(exploreOpts.input, args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	engine, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	mods, err := engine.Explore(ctx, text, exploreOpts.top)
	if err != nil {
		return fmt.Errorf("explore: %w", err)
	}
	if exploreOpts.asJSON {
		return writeJSON(cmd.OutOrStdout(), mods)
	}
	printModifications(cmd.OutOrStdout(), mods)
	return nil
}

func printModifications(w io.Writer, mods []refine.Modification) {
	if len(mods) == 0 {
		fmt.Fprintln(w, "No candidates.")
		return
	}
	sentence := -1
	for _, m := range mods {
		if m.Sentence != sentence {
			sentence = m.Sentence
			fmt.Fprintf(w, "Sentence %d\n", sentence+1)
		}
		mark := " "
		if m.PassesThresholds {
			mark = "*"
		}
		fmt.Fprintf(w, "  %s %6.2f  %s -> %s  (H %.1f, rank %d, gain %+.2f, sim %.3f)\n",
			mark, m.Quality, m.Original, m.Replacement, m.Entropy, m.Rank, m.Gain, m.Similarity)
	}
}
