// Package store persists governance state in a local SQLite database.
// The engine writes through after every transition; at startup the
// saved rows are restored so restarts lose nothing but the in-memory
// audit ring.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Pr0Services/novagov/internal/model"

	_ "modernc.org/sqlite"
)

// Store wraps the governance database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and runs
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The engine serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent readers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		identity_id TEXT,
		created_at TEXT NOT NULL,
		doc JSON NOT NULL
	);
	CREATE TABLE IF NOT EXISTS violations (
		id TEXT PRIMARY KEY,
		law_code TEXT NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0,
		identity_id TEXT,
		detected_at TEXT NOT NULL,
		doc JSON NOT NULL
	);
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		doc JSON NOT NULL
	);
	CREATE TABLE IF NOT EXISTS scope_lock (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		doc JSON NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveCheckpoint upserts a checkpoint row.
func (s *Store) SaveCheckpoint(cp model.Checkpoint) error {
	doc, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(context.Background(),
		`INSERT OR REPLACE INTO checkpoints (id, status, identity_id, created_at, doc)
		 VALUES (?, ?, ?, ?, ?)`,
		cp.ID, string(cp.Status), cp.IdentityID, cp.CreatedAt.UTC().Format(time.RFC3339Nano), string(doc))
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

// LoadCheckpoints returns all saved checkpoints, oldest first.
func (s *Store) LoadCheckpoints(ctx context.Context) ([]model.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM checkpoints ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Checkpoint
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var cp model.Checkpoint
		if err := json.Unmarshal([]byte(doc), &cp); err != nil {
			return nil, fmt.Errorf("decode checkpoint row: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// SaveViolation upserts a violation row.
func (s *Store) SaveViolation(v model.Violation) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}
	resolved := 0
	if v.Resolved {
		resolved = 1
	}
	_, err = s.db.ExecContext(context.Background(),
		`INSERT OR REPLACE INTO violations (id, law_code, resolved, identity_id, detected_at, doc)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, string(v.LawCode), resolved, v.IdentityID, v.DetectedAt.UTC().Format(time.RFC3339Nano), string(doc))
	if err != nil {
		return fmt.Errorf("save violation %s: %w", v.ID, err)
	}
	return nil
}

// LoadViolations returns all saved violations, oldest first.
func (s *Store) LoadViolations(ctx context.Context) ([]model.Violation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM violations ORDER BY detected_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("load violations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Violation
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var v model.Violation
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("decode violation row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveSettings stores the single settings row.
func (s *Store) SaveSettings(settings model.Settings) error {
	doc, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(context.Background(),
		`INSERT OR REPLACE INTO settings (id, doc) VALUES (1, ?)`, string(doc))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// LoadSettings returns the saved settings; ok is false when none exist.
func (s *Store) LoadSettings(ctx context.Context) (model.Settings, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM settings WHERE id = 1`).Scan(&doc)
	if err == sql.ErrNoRows {
		return model.Settings{}, false, nil
	}
	if err != nil {
		return model.Settings{}, false, fmt.Errorf("load settings: %w", err)
	}
	var settings model.Settings
	if err := json.Unmarshal([]byte(doc), &settings); err != nil {
		return model.Settings{}, false, fmt.Errorf("decode settings row: %w", err)
	}
	return settings, true, nil
}

// SaveScopeLock stores the single scope lock row.
func (s *Store) SaveScopeLock(lock model.ScopeLock) error {
	doc, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("marshal scope lock: %w", err)
	}
	_, err = s.db.ExecContext(context.Background(),
		`INSERT OR REPLACE INTO scope_lock (id, doc) VALUES (1, ?)`, string(doc))
	if err != nil {
		return fmt.Errorf("save scope lock: %w", err)
	}
	return nil
}

// LoadScopeLock returns the saved scope lock; ok is false when none
// has ever been written.
func (s *Store) LoadScopeLock(ctx context.Context) (model.ScopeLock, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM scope_lock WHERE id = 1`).Scan(&doc)
	if err == sql.ErrNoRows {
		return model.ScopeLock{}, false, nil
	}
	if err != nil {
		return model.ScopeLock{}, false, fmt.Errorf("load scope lock: %w", err)
	}
	var lock model.ScopeLock
	if err := json.Unmarshal([]byte(doc), &lock); err != nil {
		return model.ScopeLock{}, false, fmt.Errorf("decode scope lock row: %w", err)
	}
	return lock, true, nil
}
