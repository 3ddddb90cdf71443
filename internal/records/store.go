// Package records keeps a short history of evaluated attempts in sqlite.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id          TEXT PRIMARY KEY,
	created_at  INTEGER NOT NULL,
	language    TEXT NOT NULL DEFAULT '',
	transcript  TEXT NOT NULL DEFAULT '',
	overall     INTEGER NOT NULL,
	evaluation  TEXT NOT NULL,
	audio_key   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS attempts_created_at ON attempts (created_at DESC);
`

// Store persists Records.
type Store struct {
	db      *sql.DB
	maxKeep int
	nowFunc func() time.Time
}

// Open opens (creating if needed) the database at path. maxKeep bounds how many
// records are retained; older ones are pruned on Save. Zero keeps everything.
func Open(path string, maxKeep int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, maxKeep: maxKeep, nowFunc: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewID returns a fresh record id.
func NewID() string {
	return uuid.NewString()
}

// Save inserts rec, filling ID and CreatedAt when empty, and returns the stored copy.
func (s *Store) Save(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.nowFunc()
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)

	evaluation, err := json.Marshal(rec.Evaluation)
	if err != nil {
		return Record{}, fmt.Errorf("encode evaluation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attempts (id, created_at, language, transcript, overall, evaluation, audio_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.CreatedAt.UnixMilli(), rec.Language, rec.Transcript, rec.Evaluation.Overall,
		string(evaluation), rec.AudioKey); err != nil {
		return Record{}, fmt.Errorf("insert attempt: %w", err)
	}

	if s.maxKeep > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM attempts WHERE id NOT IN (
				SELECT id FROM attempts ORDER BY created_at DESC, rowid DESC LIMIT ?
			)
		`, s.maxKeep); err != nil {
			return Record{}, fmt.Errorf("prune attempts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// Get returns the record with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, language, transcript, evaluation, audio_key
		FROM attempts
		WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns up to limit records, newest first. Out-of-range limits are clamped.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, language, transcript, evaluation, audio_key
		FROM attempts
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Clear deletes every record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM attempts`); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var rec Record
	var createdAt int64
	var evaluation string
	if err := sc.Scan(&rec.ID, &createdAt, &rec.Language, &rec.Transcript, &evaluation, &rec.AudioKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	if err := json.Unmarshal([]byte(evaluation), &rec.Evaluation); err != nil {
		return nil, fmt.Errorf("decode evaluation %s: %w", rec.ID, err)
	}
	return &rec, nil
}
