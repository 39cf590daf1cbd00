package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cognicore/flow/pkg/flow/refine"
)

// promptDecider asks on a terminal whether to apply each edit.
type promptDecider struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPromptDecider(in io.Reader, out io.Writer) *promptDecider {
	return &promptDecider{in: bufio.NewScanner(in), out: out}
}

// Decide implements refine.Decider. End of input rejects every remaining
// edit.
func (d *promptDecider) Decide(ctx context.Context, e refine.Edit) (refine.Decision, error) {
	fmt.Fprintf(d.out, "\n%q -> %q  (%s)\n", e.Original, e.Replacement, e.Reason)
	for i, alt := range e.Alternatives {
		fmt.Fprintf(d.out, "  %d. %s  (gain %+.2f, sim %.3f)\n", i+1, alt.Text, alt.Gain, alt.Similarity)
	}

	for {
		if err := ctx.Err(); err != nil {
			return refine.Decision{}, err
		}
		fmt.Fprint(d.out, "[y]es / [n]o / number > ")
		if !d.in.Scan() {
			if err := d.in.Err(); err != nil {
				return refine.Decision{}, err
			}
			return refine.Decision{Action: refine.Reject}, nil
		}

		answer := strings.ToLower(strings.TrimSpace(d.in.Text()))
		switch answer {
		case "", "y", "yes":
			return refine.Decision{Action: refine.Accept}, nil
		case "n", "no":
			return refine.Decision{Action: refine.Reject}, nil
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(e.Alternatives) {
			return refine.Decision{Action: refine.ChooseAlternative, Index: n - 1}, nil
		}
		fmt.Fprintln(d.out, "Please answer y, n or an alternative number.")
	}
}
