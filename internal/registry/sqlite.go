package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/getpaseo/paseo/pkg/paseo"
)

// SQLiteStore implements Store against a local SQLite database file, the
// default durable backend for a single-host daemon.
type SQLiteStore struct {
	db *sql.DB

	stmtUpsert *sql.Stmt
	stmtGet    *sql.Stmt
	stmtList   *sql.Stmt
	stmtDelete *sql.Stmt
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path and
// ensures the agents table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("registry: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid lock contention

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS agents (
			id          TEXT PRIMARY KEY,
			record      TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("registry: create agents table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error
	if s.stmtUpsert, err = s.db.Prepare(`
		INSERT INTO agents (id, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at
		WHERE excluded.updated_at > agents.updated_at
	`); err != nil {
		return fmt.Errorf("registry: prepare upsert: %w", err)
	}
	if s.stmtGet, err = s.db.Prepare(`SELECT record FROM agents WHERE id = ?`); err != nil {
		return fmt.Errorf("registry: prepare get: %w", err)
	}
	if s.stmtList, err = s.db.Prepare(`SELECT id, record FROM agents`); err != nil {
		return fmt.Errorf("registry: prepare list: %w", err)
	}
	if s.stmtDelete, err = s.db.Prepare(`DELETE FROM agents WHERE id = ?`); err != nil {
		return fmt.Errorf("registry: prepare delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ApplySnapshot(ctx context.Context, agent *paseo.Agent, updatedAt time.Time) error {
	if agent == nil || agent.ID == "" {
		return storeError("registry: agent id is required")
	}
	data, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("registry: marshal agent: %w", err)
	}

	var existingUpdatedAt string
	err = s.db.QueryRowContext(ctx, `SELECT updated_at FROM agents WHERE id = ?`, agent.ID).Scan(&existingUpdatedAt)
	if err == nil {
		existing, parseErr := time.Parse(time.RFC3339Nano, existingUpdatedAt)
		if parseErr == nil && !updatedAt.After(existing) {
			return ErrStale
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at
		WHERE excluded.updated_at > agents.updated_at
	`, agent.ID, string(data), updatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("registry: apply snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*paseo.Agent, error) {
	var data string
	err := s.stmtGet.QueryRowContext(ctx, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get: %w", err)
	}
	var agent paseo.Agent
	if err := json.Unmarshal([]byte(data), &agent); err != nil {
		return nil, fmt.Errorf("registry: decode agent %s: %w", id, err)
	}
	return &agent, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*paseo.Agent, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()

	var out []*paseo.Agent
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			continue // corrupted row: skip
		}
		var agent paseo.Agent
		if err := json.Unmarshal([]byte(data), &agent); err != nil {
			continue // corrupted record: log and skip (caller owns logging)
		}
		out = append(out, &agent)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.stmtDelete.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("registry: delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
