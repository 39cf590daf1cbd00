package textin

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripHTML(t *testing.T) {
	doc := `<!DOCTYPE html>
<html><head><title>Ignored</title><style>p { color: red }</style></head>
<body>
  <h1>Report</h1>
  <p>The utilize of <b>technology</b> is important.</p>
  <script>var x = "not prose";</script>
  <p>We leverage tools.</p><pre>code block</pre>
</body></html>`

	got, err := StripHTML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Report The utilize of technology is important. We leverage tools.", got)
}

func TestRead(t *testing.T) {
	tests := []struct {
		name string
		in   string
		f    Format
		want string
	}{
		{"plain collapses whitespace", "The  utilize\n\tof technology. ", Plain, "The utilize of technology."},
		{"html", "<p>One.</p><p>Two.</p>", HTML, "One. Two."},
		{"entities", "<p>Fish &amp; chips.</p>", HTML, "Fish & chips."},
		{"empty", "", Plain, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(strings.NewReader(tt.in), tt.f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		head string
		want Format
	}{
		{"essay.html", "", HTML},
		{"essay.HTM", "", HTML},
		{"-", "  <!DOCTYPE html><html>", HTML},
		{"-", "<html lang=en>", HTML},
		{"notes.txt", "<p>not sniffed</p>", Plain},
		{"notes.txt", "plain words", Plain},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Detect(tt.name, []byte(tt.head)), "Detect(%q, %q)", tt.name, tt.head)
	}
}
