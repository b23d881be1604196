// Package sqlite is a single-file audit store for one-process deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"labtrail/pkg/changes"
	id "labtrail/pkg/domain"
	audit "labtrail/pkg/platform/audit"
	"labtrail/pkg/platform/sentinel"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_entries (
		id          TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		action      TEXT NOT NULL,
		actor_id    TEXT NOT NULL DEFAULT '',
		actor_role  TEXT NOT NULL DEFAULT '',
		actor_name  TEXT NOT NULL DEFAULT '',
		diff        BLOB,
		meta        BLOB,
		request_id  TEXT NOT NULL DEFAULT '',
		at_ns       INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_entries_at_idx ON audit_entries (at_ns)`,
}

// Store implements audit.Store on a sqlite file. Timestamps are kept as Unix
// nanoseconds, so any sub-second ordering the caller assigns survives.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" keeps everything in
// process.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	// Best effort; in-memory databases keep their own journal mode.
	_, _ = db.Exec("PRAGMA journal_mode=WAL;")
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database can still be reached.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	var diff, meta []byte
	var err error
	if len(entry.Diff) > 0 {
		if diff, err = json.Marshal(entry.Diff); err != nil {
			return fmt.Errorf("marshal audit diff: %w", err)
		}
	}
	if len(entry.Meta) > 0 {
		if meta, err = json.Marshal(entry.Meta); err != nil {
			return fmt.Errorf("marshal audit meta: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, entity_type, entity_id, action,
			actor_id, actor_role, actor_name,
			diff, meta, request_id, at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(),
		entry.EntityType,
		entry.EntityID,
		string(entry.Action),
		entry.Actor.UserID,
		entry.Actor.Role,
		entry.Actor.Name,
		diff,
		meta,
		entry.RequestID,
		entry.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, entity_type, entity_id, action,
		   actor_id, actor_role, actor_name,
		   diff, meta, request_id, at_ns
	FROM audit_entries
`

func (s *Store) QueryByDay(ctx context.Context, day audit.Day, entityTypes []string) (audit.Grouped, error) {
	query := selectColumns + ` WHERE at_ns >= ? AND at_ns < ?`
	args := []any{day.Start.UnixNano(), day.End.UnixNano()}
	if len(entityTypes) > 0 {
		query += ` AND lower(entity_type) IN (` + placeholders(len(entityTypes)) + `)`
		for _, t := range entityTypes {
			args = append(args, strings.ToLower(t))
		}
	}
	query += ` ORDER BY at_ns DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries by day: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows, day.Start.Location())
	if err != nil {
		return nil, err
	}
	grouped := audit.Grouped{}
	for _, e := range entries {
		grouped[e.EntityType] = append(grouped[e.EntityType], e)
	}
	return grouped, nil
}

func (s *Store) QueryRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY at_ns DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit entries: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	return scanEntries(rows, time.UTC)
}

func scanEntries(rows *sql.Rows, loc *time.Location) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			entry   audit.Entry
			entryID string
			action  string
			diff    []byte
			meta    []byte
			atNS    int64
		)
		if err := rows.Scan(
			&entryID,
			&entry.EntityType,
			&entry.EntityID,
			&action,
			&entry.Actor.UserID,
			&entry.Actor.Role,
			&entry.Actor.Name,
			&diff,
			&meta,
			&entry.RequestID,
			&atNS,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		parsed, err := id.ParseEntryID(entryID)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry id: %w", err)
		}
		entry.ID = parsed
		entry.Action = audit.Action(action)
		entry.At = time.Unix(0, atNS).In(loc)
		if len(diff) > 0 {
			var d changes.Diff
			if err := json.Unmarshal(diff, &d); err != nil {
				return nil, fmt.Errorf("decode audit diff: %w", err)
			}
			entry.Diff = d
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
