package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func setupLogging(cmd *cobra.Command, _ []string) error {
	l, err := newLogger(cmd.ErrOrStderr(), global.logFormat, global.verbose)
	if err != nil {
		return err
	}
	logger = l
	slog.SetDefault(l)
	return nil
}

// newLogger builds a text or JSON handler writing to w. Verbose lowers the
// level to debug.
func newLogger(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch format {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	return slog.New(handler), nil
}
