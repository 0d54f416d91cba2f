/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS warroom_kv (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres is a remote Backend keeping one jsonb row per key.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and creates the key-value table if needed.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating warroom_kv: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func pgUnavailable(op string, err error) error {
	return fmt.Errorf("postgres %s: %w: %v", op, ErrUnavailable, err)
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := p.pool.QueryRow(ctx, `SELECT value::text FROM warroom_kv WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, pgUnavailable("get", err)
	}
	return []byte(v), nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO warroom_kv (key, value, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value),
	)
	if err != nil {
		return pgUnavailable("set", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM warroom_kv WHERE key = $1`, key); err != nil {
		return pgUnavailable("delete", err)
	}
	return nil
}

func (p *Postgres) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key FROM warroom_kv WHERE left(key, char_length($1)) = $1 ORDER BY key ASC`, prefix)
	if err != nil {
		return nil, pgUnavailable("keys", err)
	}

	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, pgUnavailable("keys", err)
	}
	return out, nil
}

func (p *Postgres) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM warroom_kv WHERE left(key, char_length($1)) = $1`, prefix)
	if err != nil {
		return 0, pgUnavailable("delete prefix", err)
	}
	return int(tag.RowsAffected()), nil
}
