package credstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/shelfcheck/internal/apperr"
	"github.com/starford/shelfcheck/internal/source"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS credentials (
	source_id  TEXT PRIMARY KEY,
	data       TEXT NOT NULL DEFAULT '{}',
	enabled    INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite stores credentials in a single table.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("credstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("credstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("credstore: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) Get(ctx context.Context, id string) (Record, error) {
	var (
		data    string
		enabled bool
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT data, enabled FROM credentials WHERE source_id = ?`, id,
	).Scan(&data, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperr.NotFound("credentials", id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("credstore: get %s: %w", id, err)
	}

	var creds source.Credentials
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return Record{}, fmt.Errorf("credstore: decode %s: %w", id, err)
	}
	return Record{Credentials: creds, Enabled: enabled}, nil
}

func (s *SQLite) Set(ctx context.Context, id string, creds source.Credentials, enabled bool) error {
	if creds == nil {
		creds = source.Credentials{}
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("credstore: encode %s: %w", id, err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO credentials (source_id, data, enabled, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			data       = excluded.data,
			enabled    = excluded.enabled,
			updated_at = excluded.updated_at
	`, id, string(data), enabled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("credstore: set %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM credentials WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("credstore: delete %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT source_id FROM credentials ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("credstore: list: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("credstore: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
