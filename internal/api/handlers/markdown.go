package handlers

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Raw HTML in answers is escaped; goldmark's unsafe mode stays off.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderMarkdown converts an answer to HTML. On failure the escaped text is
// returned in a paragraph.
func renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "<p>" + html.EscapeString(src) + "</p>"
	}
	return buf.String()
}
