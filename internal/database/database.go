// Package database implements the durable store on PostgreSQL. It owns the
// schema, the versioned startup migrations, and one access method per
// operation the engines need. Queries are written with ? placeholders and
// rebound to $n for the pq driver.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Database wraps the shared connection pool.
type Database struct {
	db *sql.DB
}

// New opens the pool, verifies connectivity, and applies pending migrations.
func New(ctx context.Context, url string, maxOpen, maxIdle int, connLifetime time.Duration) (*Database, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &Database{db: db}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return d, nil
}

// Close closes the pool.
func (d *Database) Close() error { return d.db.Close() }

// Ping reports pool health for the liveness endpoint.
func (d *Database) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// rebind converts ? placeholders to PostgreSQL's $1, $2, ... form.
func rebind(query string) string {
	var sb strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

// withTx runs fn inside a transaction, rolling back on error.
func (d *Database) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
