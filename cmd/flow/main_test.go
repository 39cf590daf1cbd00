package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/flow/pkg/flow/refine"
	"github.com/cognicore/flow/pkg/flow/store"
)

func sampleEdit() refine.Edit {
	return refine.Edit{
		Original:    "utilize",
		Replacement: "use",
		Reason:      "low rank (#66); improves fluency (+25.00 PLL); preserves meaning (1.000 sim)",
		Alternatives: []refine.Alternative{
			{Text: "use", Gain: 25, Similarity: 1},
			{Text: "technology", Gain: 4.2, Similarity: 0.88},
		},
	}
}

func TestPromptDecider(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  refine.Decision
	}{
		{"enter accepts", "\n", refine.Decision{Action: refine.Accept}},
		{"yes", "y\n", refine.Decision{Action: refine.Accept}},
		{"no", "NO\n", refine.Decision{Action: refine.Reject}},
		{"alternative", "2\n", refine.Decision{Action: refine.ChooseAlternative, Index: 1}},
		{"retry after junk", "maybe\n9\nn\n", refine.Decision{Action: refine.Reject}},
		{"eof rejects", "", refine.Decision{Action: refine.Reject}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			d := newPromptDecider(strings.NewReader(tt.input), &out)
			got, err := d.Decide(context.Background(), sampleEdit())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), `"utilize" -> "use"`)
			assert.Contains(t, out.String(), "2. technology")
		})
	}
}

func TestCommandDecider_UsesCommandStreams(t *testing.T) {
	var prompts bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("2\n"))
	cmd.SetErr(&prompts)

	got, err := commandDecider(cmd).Decide(context.Background(), sampleEdit())
	require.NoError(t, err)
	assert.Equal(t, refine.Decision{Action: refine.ChooseAlternative, Index: 1}, got)
	assert.Contains(t, prompts.String(), `"utilize" -> "use"`)
}

func TestPromptDecider_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := newPromptDecider(strings.NewReader("y\n"), &bytes.Buffer{})
	_, err := d.Decide(ctx, sampleEdit())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "json", true)
	require.NoError(t, err)
	l.Debug("edit applied", "word", "utilize")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "edit applied", rec["msg"])
	assert.Equal(t, "utilize", rec["word"])

	buf.Reset()
	l, err = newLogger(&buf, "text", false)
	require.NoError(t, err)
	l.Debug("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	_, err = newLogger(&buf, "xml", false)
	assert.Error(t, err)
}

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(htmlPath, []byte("<p>The utilize of <i>technology</i>.</p>"), 0o644))

	got, err := readInput(inputFlags{}, []string{htmlPath}, nil)
	require.NoError(t, err)
	assert.Equal(t, "The utilize of technology.", got)

	got, err = readInput(inputFlags{}, nil, strings.NewReader("  spaced   out\ntext "))
	require.NoError(t, err)
	assert.Equal(t, "spaced out text", got)

	got, err = readInput(inputFlags{format: "html"}, []string{"-"}, strings.NewReader("<b>bold</b> move"))
	require.NoError(t, err)
	assert.Equal(t, "bold move", got)

	got, err = readInput(inputFlags{text: "inline wins"}, []string{htmlPath}, nil)
	require.NoError(t, err)
	assert.Equal(t, "inline wins", got)

	_, err = readInput(inputFlags{format: "pdf"}, nil, strings.NewReader("x"))
	assert.Error(t, err)

	_, err = readInput(inputFlags{}, []string{filepath.Join(dir, "missing.txt")}, nil)
	assert.Error(t, err)
}

func TestPrintHighlights(t *testing.T) {
	text := "The utilize of technology is important."
	report := refine.HighlightReport{
		Text: text,
		Words: []refine.Highlight{{
			Word: "utilize", Start: 4, End: 11,
			Reasons:     []string{"low rank (rank≥50)"},
			Suggestions: []refine.Suggestion{{Text: "use", Gain: 25, Similarity: 1, PassesThresholds: true}},
		}},
	}
	var buf bytes.Buffer
	printHighlights(&buf, report)
	assert.Contains(t, buf.String(), "The [utilize] of technology is important.")
	assert.Contains(t, buf.String(), "utilize (low rank (rank≥50))")
	assert.Contains(t, buf.String(), "* use")

	buf.Reset()
	printHighlights(&buf, refine.HighlightReport{Text: "Fine."})
	assert.Contains(t, buf.String(), "Nothing to flag.")
}

func TestPrintModifications(t *testing.T) {
	var buf bytes.Buffer
	printModifications(&buf, []refine.Modification{
		{Sentence: 0, Original: "utilize", Replacement: "use", Quality: 61.2, PassesThresholds: true},
		{Sentence: 0, Original: "The", Replacement: "This", Quality: 29},
		{Sentence: 1, Original: "leverage", Replacement: "use", Quality: 40},
	})
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Sentence "))
	assert.Contains(t, out, "utilize -> use")
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf,
		[]store.Run{{ID: "01HX", CreatedAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC), Edits: make([]store.EditRecord, 2)}},
		[]store.Replacement{{Original: "utilize", Replacement: "use", Count: 7}})
	assert.Contains(t, buf.String(), "01HX  2026-01-02 03:04  2 edit(s)")
	assert.Contains(t, buf.String(), "7  utilize -> use")
}
