// Package state persists the identifiers of feed entries that were already posted.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Set is the set of posted entry identifiers. Entries published at or
// before the watermark count as posted too; legacy state files only record
// such a date.
type Set struct {
	ids       map[string]struct{}
	watermark time.Time
}

// NewSet builds a set from ids, ignoring blanks.
func NewSet(ids ...string) Set {
	s := Set{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s Set) Len() int { return len(s.ids) }

func (s Set) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add records id. Blank identifiers are ignored.
func (s *Set) Add(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	s.ids[id] = struct{}{}
}

// Sorted returns the identifiers in lexical order so saved files are stable.
func (s Set) Sorted() []string {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Watermark returns the publication date up to which entries count as
// posted. The zero time means there is none.
func (s Set) Watermark() time.Time { return s.watermark }

// SetWatermark moves the watermark to t. It never moves backwards.
func (s *Set) SetWatermark(t time.Time) {
	if t.After(s.watermark) {
		s.watermark = t.UTC()
	}
}

// Covers reports whether the entry with id and publication date published
// was already posted. Undated entries are only matched by id.
func (s Set) Covers(id string, published time.Time) bool {
	if s.Has(id) {
		return true
	}
	return !s.watermark.IsZero() && !published.IsZero() && !published.After(s.watermark)
}

// Store loads and saves the posted set.
type Store interface {
	// Load returns the persisted set. A missing store yields an empty set.
	Load(ctx context.Context) (Set, error)

	// Save replaces the persisted set with s.
	Save(ctx context.Context, s Set) error

	Close() error
}

// IOError reports a state store that cannot be read or written.
type IOError struct {
	Op   string // "open", "load" or "save"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("state %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Format names a state backend.
type Format string

const (
	FormatJSON   Format = "json"
	FormatText   Format = "text"
	FormatSQLite Format = "sqlite"
)

// FormatForPath picks the backend from the file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	default:
		return FormatText
	}
}

// Open returns the store for path, choosing the backend by extension.
func Open(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state path is required")
	}

	switch FormatForPath(path) {
	case FormatSQLite:
		st, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case FormatJSON:
		return &FileStore{path: path, format: FormatJSON}, nil
	default:
		return &FileStore{path: path, format: FormatText}, nil
	}
}

// OpenReadOnly returns a store for path that never creates or changes
// anything on disk. Save fails with *IOError. Dry runs and doctor use it.
func OpenReadOnly(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state path is required")
	}

	if FormatForPath(path) != FormatSQLite {
		return readOnlyStore{Store: NewFileStore(path, FormatForPath(path)), path: path}, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return readOnlyStore{Store: missingStore{}, path: path}, nil
	}
	st, err := OpenSQLiteReadOnly(path)
	if err != nil {
		return nil, err
	}
	return readOnlyStore{Store: st, path: path}, nil
}

var errReadOnly = errors.New("store is opened read-only")

type readOnlyStore struct {
	Store
	path string
}

func (r readOnlyStore) Save(context.Context, Set) error {
	return &IOError{Op: "save", Path: r.path, Err: errReadOnly}
}

// missingStore stands in for a database file that does not exist yet.
type missingStore struct{}

func (missingStore) Load(context.Context) (Set, error) { return NewSet(), nil }
func (missingStore) Save(context.Context, Set) error   { return errReadOnly }
func (missingStore) Close() error                      { return nil }
