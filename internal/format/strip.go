package format

import (
	"fmt"
	"regexp"
)

// CompileStripPatterns compiles the regex patterns whose matches are removed
// from entry text. Returns an error if any pattern is invalid.
func CompileStripPatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile strip pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Strip removes every match of patterns from text and re-cleans whitespace
// left behind.
func Strip(text string, patterns []*regexp.Regexp) string {
	if len(patterns) == 0 {
		return text
	}
	for _, re := range patterns {
		text = re.ReplaceAllString(text, "")
	}
	return CleanText(text)
}
