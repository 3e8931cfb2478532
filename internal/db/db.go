package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/001_init.sql
var initMigration string

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

var _ Store = (*DB)(nil)

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Migrate creates the records table if it does not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, initMigration); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// Update runs fn in a read-write transaction. Records read through the
// transaction are locked with FOR UPDATE so concurrent writers of the same
// record are serialized.
func (db *DB) Update(ctx context.Context, fn func(tx Tx) error) error {
	return db.run(ctx, pgx.TxOptions{}, true, fn)
}

// View runs fn in a read-only transaction
func (db *DB) View(ctx context.Context, fn func(tx Tx) error) error {
	return db.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, false, fn)
}

func (db *DB) run(ctx context.Context, opts pgx.TxOptions, lock bool, fn func(tx Tx) error) error {
	tx, err := db.Pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx, lock: lock}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx   pgx.Tx
	lock bool
}

func (t *pgTx) Get(ctx context.Context, key []byte) ([]byte, error) {
	query := "SELECT data FROM records WHERE key = $1"
	if t.lock {
		query += " FOR UPDATE"
	}
	var data []byte
	err := t.tx.QueryRow(ctx, query, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return data, nil
}

func (t *pgTx) Put(ctx context.Context, key, value []byte) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE records SET data = $2, updated_at = NOW() WHERE key = $1",
		key, value)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) Create(ctx context.Context, key, value []byte) error {
	tag, err := t.tx.Exec(ctx,
		"INSERT INTO records (key, data) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING",
		key, value)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("failed to create record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}
