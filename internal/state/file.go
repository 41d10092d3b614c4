package state

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const fileVersion = 1

// watermarkDirective starts the text line holding the watermark.
const watermarkDirective = "@watermark"

// fileDocument is the JSON layout. Unknown fields are ignored on load.
// LastDate is only read: legacy files keep a UTC time tuple there
// (year, month, day, hour, minute, second, ...).
type fileDocument struct {
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Watermark *time.Time      `json:"watermark,omitempty"`
	Posted    []string        `json:"posted"`
	LastDate  json.RawMessage `json:"last_date,omitempty"`
}

// FileStore keeps the posted set in a plain file, either as a JSON document
// or as one identifier per line.
type FileStore struct {
	path   string
	format Format
	now    func() time.Time
}

// NewFileStore creates a file store writing the given format.
func NewFileStore(path string, format Format) *FileStore {
	return &FileStore{path: path, format: format}
}

func (f *FileStore) Path() string { return f.path }

// Load reads the set. The layout is detected from the content, so a JSON
// document is accepted regardless of the extension.
func (f *FileStore) Load(_ context.Context) (Set, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewSet(), nil
	}
	if err != nil {
		return Set{}, &IOError{Op: "load", Path: f.path, Err: err}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return NewSet(), nil
	}

	var s Set
	if trimmed[0] == '{' {
		s, err = parseDocument(trimmed)
	} else {
		s, err = parseLines(trimmed)
	}
	if err != nil {
		return Set{}, &IOError{Op: "load", Path: f.path, Err: err}
	}
	return s, nil
}

func parseDocument(data []byte) (Set, error) {
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Set{}, fmt.Errorf("parse json: %w", err)
	}
	if doc.Version > fileVersion {
		return Set{}, fmt.Errorf("state version %d is newer than supported %d", doc.Version, fileVersion)
	}
	if doc.Version == 0 && doc.Posted == nil && len(doc.LastDate) == 0 {
		return Set{}, errors.New("unrecognized state document: no version, posted or last_date")
	}

	s := NewSet(doc.Posted...)
	if doc.Watermark != nil {
		s.SetWatermark(*doc.Watermark)
	}
	if len(doc.LastDate) > 0 && !bytes.Equal(doc.LastDate, []byte("null")) {
		t, err := parseLastDate(doc.LastDate)
		if err != nil {
			return Set{}, err
		}
		s.SetWatermark(t)
	}
	return s, nil
}

// parseLastDate converts a legacy time tuple to a UTC time.
func parseLastDate(raw json.RawMessage) (time.Time, error) {
	var parts []int
	if err := json.Unmarshal(raw, &parts); err != nil {
		return time.Time{}, fmt.Errorf("parse last_date: %w", err)
	}
	if len(parts) < 6 {
		return time.Time{}, fmt.Errorf("parse last_date: want at least 6 fields, got %d", len(parts))
	}
	year, month, day := parts[0], parts[1], parts[2]
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("parse last_date: invalid date %d-%d-%d", year, month, day)
	}
	return time.Date(year, time.Month(month), day, parts[3], parts[4], parts[5], 0, time.UTC), nil
}

// parseLines reads one identifier per line. Quoted lines are unquoted with
// Go string syntax. For hand-written files, blank lines and # comments are
// skipped and anything after a tab is ignored.
func parseLines(data []byte) (Set, error) {
	s := NewSet()
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, `"`):
			id, err := strconv.Unquote(line)
			if err != nil {
				return Set{}, fmt.Errorf("line %d: unquote %s: %w", n, line, err)
			}
			s.Add(id)
		case strings.HasPrefix(line, watermarkDirective+" "):
			value := strings.TrimSpace(strings.TrimPrefix(line, watermarkDirective))
			t, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return Set{}, fmt.Errorf("line %d: parse watermark: %w", n, err)
			}
			s.SetWatermark(t)
		default:
			if i := strings.IndexByte(line, '\t'); i >= 0 {
				line = line[:i]
			}
			s.Add(line)
		}
	}
	if err := sc.Err(); err != nil {
		return Set{}, err
	}
	return s, nil
}

// quoteLine returns id as written to a text file. Ids that the reader would
// otherwise split, skip or take as a directive are quoted.
func quoteLine(id string) string {
	if strings.ContainsAny(id, "\t\r\n") ||
		strings.HasPrefix(id, "#") ||
		strings.HasPrefix(id, `"`) ||
		strings.HasPrefix(id, "@") ||
		id != strings.TrimSpace(id) {
		return strconv.Quote(id)
	}
	return id
}

// Save writes the set to a temp file next to the target and renames it over
// the target, so a crash never leaves a half-written state file.
func (f *FileStore) Save(_ context.Context, s Set) error {
	data, err := f.encode(s)
	if err != nil {
		return &IOError{Op: "save", Path: f.path, Err: err}
	}
	if err := writeFileAtomic(f.path, data); err != nil {
		return &IOError{Op: "save", Path: f.path, Err: err}
	}
	return nil
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) encode(s Set) ([]byte, error) {
	ids := s.Sorted()
	wm := s.Watermark()
	if f.format != FormatJSON {
		var b bytes.Buffer
		if !wm.IsZero() {
			fmt.Fprintf(&b, "%s %s\n", watermarkDirective, wm.Format(time.RFC3339Nano))
		}
		for _, id := range ids {
			b.WriteString(quoteLine(id))
			b.WriteByte('\n')
		}
		return b.Bytes(), nil
	}

	now := time.Now
	if f.now != nil {
		now = f.now
	}
	doc := fileDocument{
		Version:   fileVersion,
		UpdatedAt: now().UTC(),
		Posted:    ids,
	}
	if !wm.IsZero() {
		doc.Watermark = &wm
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
