package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const (
	postedTable   = "posted_entries"
	metadataTable = "metadata"
	watermarkKey  = "watermark"
)

// SQLiteStore keeps the posted set in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &IOError{Op: "open", Path: path, Err: fmt.Errorf("create db dir: %w", err)}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: fmt.Errorf("open sqlite: %w", err)}
	}
	// One run owns the file; a single connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

// OpenSQLiteReadOnly opens an existing database without creating or
// migrating it.
func OpenSQLiteReadOnly(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?mode=ro")
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: fmt.Errorf("open sqlite: %w", err)}
	}
	db.SetMaxOpenConns(1)

	version, err := readSchemaVersion(context.Background(), db)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	if err == nil && version > schemaVersion {
		err = fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
	}
	if err != nil {
		_ = db.Close()
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (Set, error) {
	rows, err := sq.Select("entry_id").
		From(postedTable).
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return Set{}, &IOError{Op: "load", Path: s.path, Err: fmt.Errorf("query posted entries: %w", err)}
	}
	defer func() { _ = rows.Close() }()

	set := NewSet()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Set{}, &IOError{Op: "load", Path: s.path, Err: fmt.Errorf("scan posted entry: %w", err)}
		}
		set.Add(id)
	}
	if err := rows.Err(); err != nil {
		return Set{}, &IOError{Op: "load", Path: s.path, Err: err}
	}

	var value string
	err = sq.Select("value").
		From(metadataTable).
		Where(sq.Eq{"key": watermarkKey}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Set{}, &IOError{Op: "load", Path: s.path, Err: fmt.Errorf("read watermark: %w", err)}
	default:
		wm, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return Set{}, &IOError{Op: "load", Path: s.path, Err: fmt.Errorf("parse watermark: %w", err)}
		}
		set.SetWatermark(wm)
	}
	return set, nil
}

// Save makes the table hold exactly the ids in set. Rows that are already
// present keep their original recorded_at.
func (s *SQLiteStore) Save(ctx context.Context, set Set) error {
	if err := s.save(ctx, set); err != nil {
		return &IOError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, set Set) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	ids := set.Sorted()
	if _, err := sq.Delete(postedTable).
		Where(sq.NotEq{"entry_id": ids}).
		RunWith(tx).
		ExecContext(ctx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete stale entries: %w", err)
	}

	recordedAt := s.now().UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		if _, err := sq.Insert(postedTable).
			Columns("entry_id", "recorded_at").
			Values(id, recordedAt).
			Suffix("ON CONFLICT(entry_id) DO NOTHING").
			RunWith(tx).
			ExecContext(ctx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert entry %q: %w", id, err)
		}
	}

	if _, err := sq.Delete(metadataTable).
		Where(sq.Eq{"key": watermarkKey}).
		RunWith(tx).
		ExecContext(ctx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear watermark: %w", err)
	}
	if wm := set.Watermark(); !wm.IsZero() {
		if _, err := sq.Insert(metadataTable).
			Columns("key", "value").
			Values(watermarkKey, wm.UTC().Format(time.RFC3339Nano)).
			RunWith(tx).
			ExecContext(ctx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store watermark: %w", err)
		}
	}

	return tx.Commit()
}

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply schema: %w", err)
	}

	version, err := readSchemaVersion(ctx, tx)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := sq.Insert(metadataTable).
			Columns("key", "value").
			Values("schema_version", strconv.Itoa(schemaVersion)).
			RunWith(tx).
			ExecContext(ctx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert schema version: %w", err)
		}
		return tx.Commit()
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if version > schemaVersion {
		_ = tx.Rollback()
		return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
	}

	return tx.Commit()
}

// readSchemaVersion returns sql.ErrNoRows unwrapped when the version row is
// missing.
func readSchemaVersion(ctx context.Context, runner sq.BaseRunner) (int, error) {
	var value string
	err := sq.Select("value").
		From(metadataTable).
		Where(sq.Eq{"key": "schema_version"}).
		RunWith(runner).
		QueryRowContext(ctx).
		Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse schema version: %w", err)
	}
	return version, nil
}
