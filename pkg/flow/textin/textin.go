// Package textin normalizes input documents into plain prose before
// refinement.
package textin

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Format identifies how an input document is encoded.
type Format string

const (
	Plain Format = "text"
	HTML  Format = "html"
)

// skipped elements never contribute prose.
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"head": true, "pre": true, "code": true,
}

// blocks end a sentence run; their text is separated by a space.
var blocks = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "section": true, "article": true, "tr": true, "td": true,
}

// Read returns the prose of r in the given format with whitespace runs
// collapsed to single spaces.
func Read(r io.Reader, f Format) (string, error) {
	if f == HTML {
		return StripHTML(r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return collapse(string(b)), nil
}

// Detect guesses the format from a file name, falling back to sniffing
// the leading bytes.
func Detect(name string, head []byte) Format {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm") {
		return HTML
	}
	s := strings.ToLower(strings.TrimSpace(string(head)))
	if strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html") {
		return HTML
	}
	return Plain
}

// StripHTML extracts visible text from an HTML document. Code, scripts and
// styles are dropped.
func StripHTML(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extractText(c)
		}
		if n.Type == html.ElementNode && blocks[n.Data] {
			buf.WriteByte(' ')
		}
	}
	extractText(doc)

	return collapse(buf.String()), nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
