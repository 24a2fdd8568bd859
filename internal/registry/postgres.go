package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// PostgresStore implements Store against Postgres (or CockroachDB, which
// speaks the same wire protocol), the durable backend for a multi-host
// daemon deployment.
type PostgresStore struct {
	db *sql.DB

	stmtGet    *sql.Stmt
	stmtList   *sql.Stmt
	stmtDelete *sql.Stmt
}

// PostgresConfig holds connection parameters for PostgresStore.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns sane local-development defaults.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "paseo",
		Database:        "paseo",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewPostgresStore opens a connection pool and ensures the agents table
// exists.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, int(cfg.ConnectTimeout.Seconds()),
	)
	return NewPostgresStoreFromDSN(dsn, cfg)
}

// NewPostgresStoreFromDSN opens a connection pool using a raw DSN/URL.
func NewPostgresStoreFromDSN(dsn string, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS agents (
			id         TEXT PRIMARY KEY,
			record     JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("registry: create agents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) prepareStatements() error {
	var err error
	if s.stmtGet, err = s.db.Prepare(`SELECT record FROM agents WHERE id = $1`); err != nil {
		return fmt.Errorf("registry: prepare get: %w", err)
	}
	if s.stmtList, err = s.db.Prepare(`SELECT id, record FROM agents`); err != nil {
		return fmt.Errorf("registry: prepare list: %w", err)
	}
	if s.stmtDelete, err = s.db.Prepare(`DELETE FROM agents WHERE id = $1`); err != nil {
		return fmt.Errorf("registry: prepare delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) ApplySnapshot(ctx context.Context, agent *paseo.Agent, updatedAt time.Time) error {
	if agent == nil || agent.ID == "" {
		return storeError("registry: agent id is required")
	}
	data, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("registry: marshal agent: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, record, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at
		WHERE excluded.updated_at > agents.updated_at
	`, agent.ID, string(data), updatedAt)
	if err != nil {
		return fmt.Errorf("registry: apply snapshot: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		var exists bool
		if qerr := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM agents WHERE id = $1)`, agent.ID).Scan(&exists); qerr == nil && exists {
			return ErrStale
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*paseo.Agent, error) {
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

func (s *PostgresStore) List(ctx context.Context) ([]*paseo.Agent, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()

	var out []*paseo.Agent
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			continue
		}
		var agent paseo.Agent
		if err := json.Unmarshal([]byte(data), &agent); err != nil {
			continue
		}
		out = append(out, &agent)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.stmtDelete.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("registry: delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
