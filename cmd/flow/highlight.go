package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognicore/flow/pkg/flow/refine"
)

var highlightCmd = &cobra.Command{
	Use:   "highlight [file]",
	Short: "Mark clunky words and suggest replacements without editing",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHighlight,
}

var highlightOpts struct {
	input       inputFlags
	minEntropy  float64
	maxRank     int
	suggestions int
	asJSON      bool
}

func init() {
	f := highlightCmd.Flags()
	f.StringVarP(&highlightOpts.input.text, "text", "t", "", "Text to analyze (instead of a file)")
	f.StringVar(&highlightOpts.input.format, "format", "", "Input format: text or html (detected when empty)")
	f.Float64Var(&highlightOpts.minEntropy, "min-entropy", -1, "Entropy threshold in bits (config value when negative)")
	f.IntVar(&highlightOpts.maxRank, "max-rank", 0, "Rank threshold (config value when zero)")
	f.IntVarP(&highlightOpts.suggestions, "suggestions", "n", 3, "Suggestions per word")
	f.BoolVar(&highlightOpts.asJSON, "json", false, "Print the report as JSON")

	rootCmd.AddCommand(highlightCmd)
}

func runHighlight(cmd *cobra.Command, args []string) error {
	text, err := readInput(highlightOpts.input, args, cmd.InOrStdin())
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

	opts := engine.Pipeline().HighlightDefaults()
	if highlightOpts.minEntropy >= 0 {
		opts.MinEntropy = highlightOpts.minEntropy
	}
	if highlightOpts.maxRank > 0 {
		opts.MaxRank = highlightOpts.maxRank
	}
	opts.TopSuggestions = highlightOpts.suggestions

	report, err := engine.Highlight(ctx, text, opts)
	if err != nil {
		return fmt.Errorf("highlight: %w", err)
	}
	if highlightOpts.asJSON {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	printHighlights(cmd.OutOrStdout(), report)
	return nil
}

// printHighlights shows the text with flagged words in [brackets] followed
// by the suggestions for each.
func printHighlights(w io.Writer, report refine.HighlightReport) {
	var b strings.Builder
	last := 0
	for _, h := range report.Words {
		b.WriteString(report.Text[last:h.Start])
		b.WriteString("[" + report.Text[h.Start:h.End] + "]")
		last = h.End
	}
	b.WriteString(report.Text[last:])
	fmt.Fprintln(w, b.String())

	if len(report.Words) == 0 {
		fmt.Fprintln(w, "\nNothing to flag.")
		return
	}
	fmt.Fprintln(w)
	for _, h := range report.Words {
		fmt.Fprintf(w, "%s (%s)\n", h.Word, strings.Join(h.Reasons, ", "))
		for _, s := range h.Suggestions {
			mark := " "
			if s.PassesThresholds {
				mark = "*"
			}
			fmt.Fprintf(w, "  %s %s  gain %+.2f  sim %.3f\n", mark, s.Text, s.Gain, s.Similarity)
		}
	}
}
