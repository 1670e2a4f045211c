// Package cache persists the summary table as a single SQLite file. The file
// is replaced atomically on save, and a lock file next to it serialises
// builds across processes sharing the same data directory.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/fmuoria/resume-screener/internal/table"
	"github.com/fmuoria/resume-screener/internal/tree"
)

// ErrNotFound is returned by Status when no artifact exists.
var ErrNotFound = errors.New("summary cache not found")

const (
	metaBuiltAt     = "built_at"
	metaFingerprint = "fingerprint"
	metaColumns     = "columns"

	lockRetry = 250 * time.Millisecond
)

// Meta describes a stored artifact.
type Meta struct {
	Path        string    `json:"path"`
	BuiltAt     time.Time `json:"built_at"`
	Fingerprint string    `json:"fingerprint"`
	Columns     []string  `json:"columns"`
	Rows        int       `json:"rows"`
	Stale       bool      `json:"stale"`
}

// Store keeps the summary at path. A positive maxAge makes older artifacts
// stale, so Load reports a miss and the caller rebuilds.
type Store struct {
	path   string
	maxAge time.Duration
	mu     sync.Mutex
	flock  *flock.Flock
	now    func() time.Time
	logger *slog.Logger
}

// New returns a store for the artifact at path. maxAge <= 0 never expires.
func New(path string, maxAge time.Duration) *Store {
	return &Store{
		path:   path,
		maxAge: maxAge,
		flock:  flock.New(path + ".lock"),
		now:    time.Now,
		logger: slog.With("component", "cache"),
	}
}

// Path returns the artifact location.
func (s *Store) Path() string { return s.path }

// Lock takes the in-process mutex and then the lock file, waiting until
// ctx is done.
func (s *Store) Lock(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	ok, err := s.flock.TryLockContext(ctx, lockRetry)
	if err != nil || !ok {
		s.mu.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to acquire %s: %w", s.flock.Path(), err)
	}
	return func() {
		if err := s.flock.Unlock(); err != nil {
			s.logger.Warn("failed to release cache lock", "error", err)
		}
		s.mu.Unlock()
	}, nil
}

// Load reads the stored summary. It returns false without error when there
// is no artifact or it is stale.
func (s *Store) Load(ctx context.Context) (*table.Frame, bool, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}

	db, err := open(s.path)
	if err != nil {
		return nil, false, err
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, false, err
	}
	if s.stale(meta.BuiltAt) {
		s.logger.Info("summary cache expired", "built_at", meta.BuiltAt, "max_age", s.maxAge)
		return nil, false, nil
	}

	frame, err := readSummary(ctx, db, meta.Columns)
	if err != nil {
		return nil, false, err
	}
	return frame, true, nil
}

// Save writes summary to a temporary database and renames it over the
// artifact.
func (s *Store) Save(ctx context.Context, summary *table.Frame, fingerprint string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	db, err := open(tmpPath)
	if err != nil {
		return err
	}
	if err := write(ctx, db, summary, fingerprint, s.now().UTC()); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to move cache into place: %w", err)
	}
	s.logger.Debug("summary cache written", "path", s.path, "rows", summary.Len())
	return nil
}

// Remove deletes the artifact. A missing artifact is not an error.
func (s *Store) Remove() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Status reports on the stored artifact without loading its rows.
func (s *Store) Status(ctx context.Context) (Meta, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return Meta{Path: s.path}, ErrNotFound
	}
	db, err := open(s.path)
	if err != nil {
		return Meta{Path: s.path}, err
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return Meta{Path: s.path}, err
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summary`).Scan(&meta.Rows); err != nil {
		return meta, fmt.Errorf("failed to count cached rows: %w", err)
	}
	meta.Path = s.path
	meta.Stale = s.stale(meta.BuiltAt)
	return meta, nil
}

func (s *Store) stale(builtAt time.Time) bool {
	return s.maxAge > 0 && s.now().Sub(builtAt) > s.maxAge
}

func open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func write(ctx context.Context, db *sql.DB, summary *table.Frame, fingerprint string, builtAt time.Time) error {
	cols := summary.Columns()
	colsJSON, err := json.Marshal(cols)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	defs := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quote(c) + " TEXT"
		marks[i] = "?"
	}
	stmts := []string{
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE summary (` + strings.Join(defs, ", ") + `)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create cache schema: %w", err)
		}
	}

	meta := map[string]string{
		metaBuiltAt:     builtAt.Format(time.RFC3339Nano),
		metaFingerprint: fingerprint,
		metaColumns:     string(colsJSON),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write cache metadata: %w", err)
		}
	}

	insert, err := tx.PrepareContext(ctx, `INSERT INTO summary VALUES (`+strings.Join(marks, ", ")+`)`)
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer insert.Close()

	args := make([]any, len(cols))
	for i := 0; i < summary.Len(); i++ {
		for j, c := range cols {
			args[j], err = encodeCell(summary.Value(i, c))
			if err != nil {
				return fmt.Errorf("row %d column %s: %w", i, c, err)
			}
		}
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to write cached row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func readMeta(ctx context.Context, db *sql.DB) (Meta, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return Meta{}, fmt.Errorf("failed to read cache metadata: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Meta{}, err
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return Meta{}, err
	}

	var meta Meta
	if err := json.Unmarshal([]byte(values[metaColumns]), &meta.Columns); err != nil {
		return Meta{}, fmt.Errorf("invalid cached column list: %w", err)
	}
	meta.BuiltAt, err = time.Parse(time.RFC3339Nano, values[metaBuiltAt])
	if err != nil {
		return Meta{}, fmt.Errorf("invalid cache build time: %w", err)
	}
	meta.Fingerprint = values[metaFingerprint]
	return meta, nil
}

func readSummary(ctx context.Context, db *sql.DB, cols []string) (*table.Frame, error) {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	rows, err := db.QueryContext(ctx, `SELECT `+strings.Join(quoted, ", ")+` FROM summary ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached summary: %w", err)
	}
	defer rows.Close()

	frame := table.New(cols...)
	cells := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		members := make([]tree.Member, 0, len(cols))
		for j, c := range cols {
			v, err := decodeCell(cells[j])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c, err)
			}
			members = append(members, tree.M(c, v))
		}
		frame.Append(members...)
	}
	return frame, rows.Err()
}

// Cells hold the JSON encoding of the value so numbers, booleans and nested
// values come back with their original kind. Null is SQL NULL.
func encodeCell(v tree.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeCell(c sql.NullString) (tree.Value, error) {
	if !c.Valid {
		return tree.Value{}, nil
	}
	return tree.Parse([]byte(c.String))
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
