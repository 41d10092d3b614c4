package format

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	nbspRe          = regexp.MustCompile("\u00a0+")
	spaceRunRe      = regexp.MustCompile(`[ \t]{2,}`)
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
)

// blockSelector lists elements that end a paragraph in the rendered text.
const blockSelector = "p, div, li, blockquote, pre, h1, h2, h3, h4, h5, h6, tr"

// CleanText normalizes whitespace: nbsp to space, collapsed space runs,
// no trailing spaces before newlines, and at most one blank line in a row.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = nbspRe.ReplaceAllString(s, " ")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// HTMLToText extracts the readable text of an HTML fragment. Line breaks
// become newlines and block elements are separated by a blank line.
func HTMLToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// The html tokenizer accepts any input, so this is a reader failure.
		return CleanText(html)
	}

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelector).AppendHtml("\n\n")

	return CleanText(doc.Text())
}
