// Package database provides PostgreSQL storage for alert definitions and
// their trigger state.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps a database connection and provides alert and alert state operations.
type DB struct {
	conn *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// NewDB creates a new database connection using the provided DSN.
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL database")

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		slog.Info("Closing database connection")
		return db.conn.Close()
	}
	return nil
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS alert_configs (
		id         BIGSERIAL PRIMARY KEY,
		project    TEXT NOT NULL,
		name       TEXT NOT NULL,
		definition JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (project, name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alert_configs_project ON alert_configs (project)`,
	`CREATE TABLE IF NOT EXISTS alert_states (
		alert_id     BIGINT PRIMARY KEY REFERENCES alert_configs (id) ON DELETE CASCADE,
		count        INTEGER NOT NULL DEFAULT 0,
		active       BOOLEAN NOT NULL DEFAULT FALSE,
		last_updated TIMESTAMPTZ,
		full_object  JSONB
	)`,
}

// Migrate creates the tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	slog.Info("Database schema is up to date")
	return nil
}

// inTx runs fn in a transaction, committing when fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
