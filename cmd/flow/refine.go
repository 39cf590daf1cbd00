package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cognicore/flow/pkg/flow"
	"github.com/cognicore/flow/pkg/flow/refine"
)

var refineCmd = &cobra.Command{
	Use:   "refine [file]",
	Short: "Rewrite clunky words in a text",
	Long: "Refines the text in file (or stdin), replacing flagged words whose " +
		"replacement improves fluency and keeps the meaning. With --interactive " +
		"every edit is confirmed on the terminal.",
	Args: cobra.MaximumNArgs(1),
	RunE: runRefine,
}

var refineOpts struct {
	input       inputFlags
	interactive bool
	asJSON      bool
}

func init() {
	f := refineCmd.Flags()
	f.StringVarP(&refineOpts.input.text, "text", "t", "", "Text to refine (instead of a file)")
	f.StringVar(&refineOpts.input.format, "format", "", "Input format: text or html (detected when empty)")
	f.BoolVarP(&refineOpts.interactive, "interactive", "i", false, "Confirm each edit")
	f.BoolVar(&refineOpts.asJSON, "json", false, "Print the full result as JSON")

	rootCmd.AddCommand(refineCmd)
}

func runRefine(cmd *cobra.Command, args []string) error {
	if refineOpts.interactive && refineOpts.input.text == "" && len(args) == 0 {
		return fmt.Errorf("--interactive reads answers from stdin; pass the text with --text or a file")
	}
	text, err := readInput(refineOpts.input, args, cmd.InOrStdin())
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

	var opts []refine.Option
	if refineOpts.interactive {
		opts = append(opts, refine.WithDecider(commandDecider(cmd)))
	}
	res, err := engine.Refine(ctx, text, opts...)
	if err != nil {
		return fmt.Errorf("refine: %w", err)
	}

	out := cmd.OutOrStdout()
	if refineOpts.asJSON {
		return writeJSON(out, res)
	}
	printRefinement(out, res)
	return nil
}

// commandDecider prompts on the command's error stream and reads answers
// from its input.
func commandDecider(cmd *cobra.Command) *promptDecider {
	return newPromptDecider(cmd.InOrStdin(), cmd.ErrOrStderr())
}

func printRefinement(w io.Writer, res flow.RunResult) {
	fmt.Fprintln(w, res.Refined)
	edits := res.Edits()
	if len(edits) == 0 {
		fmt.Fprintln(w, "\nNo edits.")
		return
	}
	fmt.Fprintf(w, "\n%d edit(s), run %s:\n", len(edits), res.RunID)
	for _, e := range edits {
		fmt.Fprintf(w, "  %s -> %s: %s\n", e.Original, e.Replacement, e.Reason)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
