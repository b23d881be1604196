package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"labtrail/pkg/changes"
	id "labtrail/pkg/domain"
	audit "labtrail/pkg/platform/audit"
	"labtrail/pkg/platform/sentinel"
	txcontext "labtrail/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// Store implements audit.Store on a single append-only table. Diffs and
// metadata are kept as JSONB.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the table and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts the entry. When the context carries a transaction the insert
// joins it, so an entry commits or rolls back with the mutation it records.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	diff, err := encodeJSON(entry.Diff, len(entry.Diff) > 0)
	if err != nil {
		return fmt.Errorf("marshal audit diff: %w", err)
	}
	meta, err := encodeJSON(entry.Meta, len(entry.Meta) > 0)
	if err != nil {
		return fmt.Errorf("marshal audit meta: %w", err)
	}

	query := `
		INSERT INTO audit_entries (
			id, entity_type, entity_id, action,
			actor_id, actor_role, actor_name,
			diff, meta, request_id, at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		entry.EntityType,
		entry.EntityID,
		string(entry.Action),
		entry.Actor.UserID,
		entry.Actor.Role,
		entry.Actor.Name,
		diff,
		meta,
		entry.RequestID,
		// TIMESTAMPTZ rounds to the nearest microsecond; truncate so an entry
		// never moves into the next day.
		entry.At.Truncate(time.Microsecond),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, entity_type, entity_id, action,
		   actor_id, actor_role, actor_name,
		   diff, meta, request_id, at
	FROM audit_entries
`

// QueryByDay returns the entries of day grouped by entity type, newest first.
func (s *Store) QueryByDay(ctx context.Context, day audit.Day, entityTypes []string) (audit.Grouped, error) {
	query := selectColumns + `
		WHERE at >= $1 AND at < $2
		  AND (cardinality($3::text[]) = 0 OR lower(entity_type) = ANY($3::text[]))
		ORDER BY at DESC, seq DESC
	`
	rows, err := s.db.QueryContext(ctx, query, day.Start, day.End, pq.Array(lowered(entityTypes)))
	if err != nil {
		return nil, fmt.Errorf("query audit entries by day: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	entries, err := s.scanEntries(rows)
	if err != nil {
		return nil, err
	}
	grouped := audit.Grouped{}
	for _, e := range entries {
		grouped[e.EntityType] = append(grouped[e.EntityType], e)
	}
	return grouped, nil
}

// QueryRecent returns the limit most recent entries.
func (s *Store) QueryRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	query := selectColumns + `
		ORDER BY at DESC, seq DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit entries: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

// scanEntries scans multiple rows into an audit.Entry slice.
func (s *Store) scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry

	for rows.Next() {
		var (
			entry   audit.Entry
			entryID uuid.UUID
			action  string
			diff    []byte
			meta    []byte
		)

		err := rows.Scan(
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
			&entry.At,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.ID = id.EntryID(entryID)
		entry.Action = audit.Action(action)
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

// encodeJSON renders v as a text parameter. JSONB does not accept bytea, and
// an absent value stays NULL.
func encodeJSON(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func lowered(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
