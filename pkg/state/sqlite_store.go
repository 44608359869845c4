package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteConfig holds SQLiteStore configuration.
type SQLiteConfig struct {
	Path            string        `env:"PATH" yaml:"path"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" yaml:"conn_max_lifetime"`
}

// SQLiteStore persists snapshots as JSON documents in a single SQLite table.
type SQLiteStore[T any] struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStore opens the database at cfg.Path and applies the embedded
// migrations.
func OpenSQLiteStore[T any](ctx context.Context, cfg SQLiteConfig) (*SQLiteStore[T], error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("state: sqlite path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: ping sqlite: %w", err)
	}

	store := &SQLiteStore[T]{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore[T]) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("state: migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{MigrationsTable: "fragment_schema_migrations"})
	if err != nil {
		return fmt.Errorf("state: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("state: migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("state: run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore[T]) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore[T]) Load(ctx context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	key, err := ref.Identifier()
	if err != nil {
		return zero, Meta{}, false, err
	}

	var (
		raw       string
		meta      Meta
		updatedAt string
		extra     sql.NullString
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT snapshot, snapshot_id, etag, updated_at, extra FROM fragment_snapshots WHERE ref = ?`, key)
	if err := row.Scan(&raw, &meta.SnapshotID, &meta.ETag, &updatedAt, &extra); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, Meta{}, false, nil
		}
		return zero, Meta{}, false, fmt.Errorf("state: load %s: %w", key, err)
	}

	var snapshot T
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	if meta.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: decode %s updated_at: %w", key, err)
	}
	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &meta.Extra); err != nil {
			return zero, Meta{}, false, fmt.Errorf("state: decode %s extra: %w", key, err)
		}
	}
	return snapshot, meta, true, nil
}

func (s *SQLiteStore[T]) Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode %s: %w", key, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Meta{}, fmt.Errorf("state: begin %s: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	var stored Meta
	exists := true
	err = tx.QueryRowContext(ctx, `SELECT etag FROM fragment_snapshots WHERE ref = ?`, key).Scan(&stored.ETag)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists = false
	case err != nil:
		return Meta{}, fmt.Errorf("state: read etag %s: %w", key, err)
	}
	if err := checkETag(stored, meta, exists); err != nil {
		return Meta{}, err
	}

	saved := stamp(meta, s.now())
	var extra sql.NullString
	if len(saved.Extra) > 0 {
		encoded, err := json.Marshal(saved.Extra)
		if err != nil {
			return Meta{}, fmt.Errorf("state: encode %s extra: %w", key, err)
		}
		extra = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fragment_snapshots (ref, model, record_id, snapshot, snapshot_id, etag, updated_at, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			snapshot = excluded.snapshot,
			snapshot_id = excluded.snapshot_id,
			etag = excluded.etag,
			updated_at = excluded.updated_at,
			extra = excluded.extra`,
		key, ref.Model, ref.ID, string(raw), saved.SnapshotID, saved.ETag,
		saved.UpdatedAt.Format(time.RFC3339Nano), extra)
	if err != nil {
		return Meta{}, fmt.Errorf("state: save %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return Meta{}, fmt.Errorf("state: commit %s: %w", key, err)
	}
	return saved, nil
}
