package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/cognicore/flow/pkg/flow/textin"
)

// inputFlags select where the text comes from.
type inputFlags struct {
	text   string
	format string
}

// readInput returns the text given inline, from the file named by args[0],
// or from stdin, decoded per the --format flag or by detection.
func readInput(in inputFlags, args []string, stdin io.Reader) (string, error) {
	if in.text != "" {
		return in.text, nil
	}

	name, r := "-", stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		name, r = args[0], f
	}

	br := bufio.NewReader(r)
	format := textin.Format(in.format)
	if format == "" {
		head, _ := br.Peek(512)
		format = textin.Detect(name, head)
	}
	switch format {
	case textin.Plain, textin.HTML:
	default:
		return "", fmt.Errorf("unknown input format %q (want text or html)", in.format)
	}
	return textin.Read(br, format)
}
