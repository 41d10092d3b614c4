package format

import (
	"fmt"
	"strings"
)

// Field is a placeholder name a template may reference.
type Field string

const (
	FieldTitle     Field = "title"
	FieldLink      Field = "link"
	FieldSummary   Field = "summary"
	FieldContent   Field = "content"
	FieldPublished Field = "published"
)

// Fields is the closed set of placeholders.
var Fields = []Field{FieldTitle, FieldLink, FieldSummary, FieldContent, FieldPublished}

func knownField(name string) bool {
	for _, f := range Fields {
		if string(f) == name {
			return true
		}
	}
	return false
}

// FormatError reports a malformed template.
type FormatError struct {
	Template    string
	Placeholder string // offending placeholder, empty for syntax errors
	Reason      string
}

func (e *FormatError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("template: %s {%s}", e.Reason, e.Placeholder)
	}
	return "template: " + e.Reason
}

type segment struct {
	literal string
	field   Field // empty for literal segments
}

// Template is a parsed post template. Placeholders are written {name};
// {{ and }} produce literal braces.
type Template struct {
	source   string
	segments []segment
}

// ParseTemplate parses src, rejecting unknown placeholders.
func ParseTemplate(src string) (*Template, error) {
	t := &Template{source: src}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '{':
			if i+1 < len(src) && src[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(src[i+1:], '}')
			if end < 0 {
				return nil, &FormatError{Template: src, Reason: fmt.Sprintf("unclosed '{' at offset %d", i)}
			}
			name := src[i+1 : i+1+end]
			if name == "" {
				return nil, &FormatError{Template: src, Reason: fmt.Sprintf("empty placeholder at offset %d", i)}
			}
			if !knownField(name) {
				return nil, &FormatError{Template: src, Placeholder: name, Reason: "unknown placeholder"}
			}
			flush()
			t.segments = append(t.segments, segment{field: Field(name)})
			i += end + 1
		case '}':
			if i+1 < len(src) && src[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, &FormatError{Template: src, Reason: fmt.Sprintf("single '}' at offset %d", i)}
		default:
			lit.WriteByte(c)
		}
	}
	flush()

	return t, nil
}

func (t *Template) String() string { return t.source }

// Fields returns the placeholders the template references, in order of first use.
func (t *Template) Fields() []Field {
	var out []Field
	seen := make(map[Field]bool)
	for _, s := range t.segments {
		if s.field != "" && !seen[s.field] {
			seen[s.field] = true
			out = append(out, s.field)
		}
	}
	return out
}

// Render substitutes values literally. Missing values render as empty strings.
func (t *Template) Render(values map[Field]string) string {
	var b strings.Builder
	for _, s := range t.segments {
		if s.field == "" {
			b.WriteString(s.literal)
			continue
		}
		b.WriteString(values[s.field])
	}
	return b.String()
}
