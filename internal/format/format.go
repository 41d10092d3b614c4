// Package format renders feed entries into Mastodon post requests.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/feed2mastodon/internal/feed"
	"github.com/ppiankov/feed2mastodon/internal/publish"
)

const (
	// TruncationMarker is appended when the templated text is cut.
	TruncationMarker = "…"

	// hashtagSeparator sits between the templated text and the hashtags.
	hashtagSeparator = "\n\n"
)

// Options configures a Formatter.
type Options struct {
	Template   string
	Hashtags   string
	MaxLength  int // in characters (runes)
	MaxImages  int // ≤ 0 attaches nothing
	Visibility publish.Visibility
	Language   string
	// Strip holds regex patterns removed from the title, summary and content.
	Strip []string
}

// Formatter turns entries into post requests. It is immutable and safe to reuse.
type Formatter struct {
	tmpl       *Template
	hashtags   string
	maxLength  int
	maxImages  int
	visibility publish.Visibility
	language   string
	strip      []*regexp.Regexp
}

// New parses the template and validates limits. Template problems are
// reported as *FormatError before anything is fetched or posted.
func New(opts Options) (*Formatter, error) {
	tmpl, err := ParseTemplate(opts.Template)
	if err != nil {
		return nil, err
	}
	if opts.MaxLength <= 0 {
		return nil, fmt.Errorf("max length must be positive, got %d", opts.MaxLength)
	}
	if opts.Visibility == "" {
		opts.Visibility = publish.VisibilityPublic
	}
	strip, err := CompileStripPatterns(opts.Strip)
	if err != nil {
		return nil, err
	}

	return &Formatter{
		tmpl:       tmpl,
		hashtags:   NormalizeHashtags(opts.Hashtags),
		maxLength:  opts.MaxLength,
		maxImages:  opts.MaxImages,
		visibility: opts.Visibility,
		language:   opts.Language,
		strip:      strip,
	}, nil
}

// Format renders e into a post request.
func (f *Formatter) Format(e feed.Entry) (publish.PostRequest, error) {
	if f == nil || f.tmpl == nil {
		return publish.PostRequest{}, errors.New("formatter is not initialized")
	}

	text := f.tmpl.Render(f.entryValues(e))
	return publish.PostRequest{
		Text:       Compose(text, f.hashtags, f.maxLength),
		Visibility: f.visibility,
		Language:   f.language,
		ImageURLs:  SelectImages(e.ImageURLs, f.maxImages),
	}, nil
}

func (f *Formatter) entryValues(e feed.Entry) map[Field]string {
	published := ""
	if !e.Published.IsZero() {
		published = e.Published.UTC().Format(time.RFC3339)
	}
	return map[Field]string{
		FieldTitle:     Strip(CleanText(e.Title), f.strip),
		FieldLink:      strings.TrimSpace(e.Link),
		FieldSummary:   Strip(HTMLToText(e.Summary), f.strip),
		FieldContent:   Strip(HTMLToText(e.Content), f.strip),
		FieldPublished: published,
	}
}

// NormalizeHashtags splits s on whitespace and commas, prefixes each tag
// with # when missing, and joins them with single spaces.
func NormalizeHashtags(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimLeft(p, "#")
		if p == "" {
			continue
		}
		tags = append(tags, "#"+p)
	}
	return strings.Join(tags, " ")
}

// Compose joins text and hashtags within maxLength runes. When the result
// is too long the text is cut and TruncationMarker appended; the hashtags are
// kept whole, or dropped when they leave no room for the marker.
func Compose(text, hashtags string, maxLength int) string {
	text = strings.TrimSpace(text)
	if maxLength <= 0 {
		return ""
	}

	suffix := ""
	if hashtags != "" {
		suffix = hashtagSeparator + hashtags
	}

	textLen := utf8.RuneCountInString(text)
	suffixLen := utf8.RuneCountInString(suffix)
	if textLen+suffixLen <= maxLength {
		return text + suffix
	}

	markerLen := utf8.RuneCountInString(TruncationMarker)
	if suffixLen+markerLen > maxLength {
		suffix = ""
		suffixLen = 0
		if textLen <= maxLength {
			return text
		}
	}

	budget := maxLength - suffixLen - markerLen
	if budget < 0 {
		// maxLength is shorter than the marker itself.
		return firstNRunes(TruncationMarker, maxLength)
	}
	cut := strings.TrimRight(firstNRunes(text, budget), " \t\n")
	return cut + TruncationMarker + suffix
}

// SelectImages returns the first limit URLs in order.
func SelectImages(urls []string, limit int) []string {
	if limit <= 0 || len(urls) == 0 {
		return nil
	}
	if len(urls) > limit {
		urls = urls[:limit]
	}
	out := make([]string, len(urls))
	copy(out, urls)
	return out
}

func firstNRunes(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
