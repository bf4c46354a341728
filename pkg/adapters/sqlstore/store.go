// Package sqlstore persists entities and preferences in SQL tables as JSON
// payloads, on SQLite (modernc.org/sqlite) or Postgres (pgx).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/introspection"

	"github.com/aretw0/owlet/pkg/core"
)

// Config holds the configuration for a SQL store.
type Config struct {
	Dialect  Dialect
	DSN      string // file path for SQLite, connection URL for Postgres
	ReadOnly bool
	Logger   *slog.Logger
}

// Store implements core.Repository on a SQL database.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	dsn      string
	readOnly bool
	logger   *slog.Logger
}

// Open connects to the database. The schema is created by Initialize.
func Open(cfg Config) (*Store, error) {
	if cfg.Dialect.Driver == "" {
		return nil, errors.New("sqlstore needs a dialect")
	}
	if cfg.DSN == "" {
		return nil, errors.New("sqlstore needs a dsn")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dialect.Name == SQLite.Name {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open(cfg.Dialect.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Dialect.Name, err)
	}
	if cfg.Dialect.maxConns > 0 {
		db.SetMaxOpenConns(cfg.Dialect.maxConns)
	}
	return &Store{
		db:       db,
		dialect:  cfg.Dialect,
		dsn:      cfg.DSN,
		readOnly: cfg.ReadOnly,
		logger:   cfg.Logger,
	}, nil
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Initialize implements core.Repository.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.dialect.Name, err)
	}
	for _, stmt := range s.dialect.pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %q: %w", stmt, err)
		}
	}
	if s.readOnly {
		return nil
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	s.logger.Debug("sql store ready", "dialect", s.dialect.Name)
	return nil
}

func decodeEntity(kind core.Kind, payload string) (core.Entity, error) {
	ent := core.NewEntity(kind)
	if ent == nil {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	if err := json.Unmarshal([]byte(payload), ent); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return ent, nil
}

// Load implements core.Loader.
func (s *Store) Load(ctx context.Context, kind core.Kind, key string) (core.Entity, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT payload FROM entities WHERE kind = ? AND key = ?`),
		string(kind), key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %s/%s: %w", kind, key, err)
	}
	ent, err := decodeEntity(kind, payload)
	if err != nil {
		return nil, false, err
	}
	return ent, true, nil
}

// List implements core.Repository.
func (s *Store) List(ctx context.Context, kind core.Kind) ([]core.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT payload FROM entities WHERE kind = ? ORDER BY key`),
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Entity
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ent, err := decodeEntity(kind, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, rows.Err()
}

// Commit implements core.Repository. All changes run in one SQL transaction.
func (s *Store) Commit(ctx context.Context, changes []core.Change) (retErr error) {
	if s.readOnly {
		return core.ErrReadOnly
	}
	if len(changes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	upsert := s.dialect.rebind(`INSERT INTO entities (kind, key, payload) VALUES (?, ?, ?)
		ON CONFLICT (kind, key) DO UPDATE SET payload = excluded.payload`)
	remove := s.dialect.rebind(`DELETE FROM entities WHERE kind = ? AND key = ?`)

	for _, c := range changes {
		if !c.Kind.Valid() {
			return fmt.Errorf("unknown kind %q", c.Kind)
		}
		switch c.Action {
		case core.ActionSave:
			if c.Entity == nil {
				return fmt.Errorf("save of %s/%s without entity", c.Kind, c.Key)
			}
			payload, err := json.Marshal(c.Entity)
			if err != nil {
				return fmt.Errorf("encode %s/%s: %w", c.Kind, c.Key, err)
			}
			if _, err := tx.ExecContext(ctx, upsert, string(c.Kind), c.Key, string(payload)); err != nil {
				return fmt.Errorf("upsert %s/%s: %w", c.Kind, c.Key, err)
			}
		case core.ActionDelete:
			if _, err := tx.ExecContext(ctx, remove, string(c.Kind), c.Key); err != nil {
				return fmt.Errorf("delete %s/%s: %w", c.Kind, c.Key, err)
			}
		default:
			return fmt.Errorf("unknown action %q", c.Action)
		}
	}

	if maxID := core.MaxSavedID(changes); maxID > 0 {
		bump := s.dialect.rebind(`INSERT INTO sequences (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = ` + s.dialect.greatest + `(sequences.value, excluded.value)`)
		if _, err := tx.ExecContext(ctx, bump, "id", maxID); err != nil {
			return fmt.Errorf("advance id sequence: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// NextID implements core.Repository.
func (s *Store) NextID(ctx context.Context) (int64, error) {
	if s.readOnly {
		return 0, core.ErrReadOnly
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value`), "id").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return id, nil
}

// Close implements core.Repository.
func (s *Store) Close() error {
	return s.db.Close()
}

// Preferences returns a prefs.Store sharing the connection pool.
func (s *Store) Preferences() *PreferenceStore {
	return &PreferenceStore{db: s.db, dialect: s.dialect, readOnly: s.readOnly}
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Dialect     string `json:"dialect"`
	ReadOnly    bool   `json:"read_only"`
	OpenConns   int    `json:"open_connections"`
	InUse       int    `json:"in_use"`
	WaitCount   int64  `json:"wait_count"`
	MaxOpenConn int    `json:"max_open_connections"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	stats := s.db.Stats()
	return StoreState{
		Dialect:     s.dialect.Name,
		ReadOnly:    s.readOnly,
		OpenConns:   stats.OpenConnections,
		InUse:       stats.InUse,
		WaitCount:   stats.WaitCount,
		MaxOpenConn: stats.MaxOpenConnections,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string { return "sql-repository" }

var _ core.Repository = (*Store)(nil)
var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
