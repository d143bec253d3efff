package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"paperfolio/internal/config"
)

// Open connects to Postgres and verifies the connection.
func Open(cfg config.Config) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)

	database, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = database.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(5 * time.Minute)

	return database, nil
}

// EnsureSchema creates the tables if they do not exist. The ledger table is
// append-only: nothing in the application updates or deletes its rows.
// positions is derived from the ledger and rebuildable from it.
func EnsureSchema(database *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			hash TEXT NOT NULL,
			cash NUMERIC(18,2) NOT NULL DEFAULT 10000.00,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger (
			id BIGSERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			stock TEXT NOT NULL,
			shares_delta BIGINT NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			price NUMERIC(18,4) NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('buy', 'sell')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			user_id INTEGER NOT NULL REFERENCES users(id),
			stock TEXT NOT NULL,
			shares BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, stock)
		)`,
		`CREATE INDEX IF NOT EXISTS ledger_user_idx ON ledger (user_id, id)`,
	}

	for _, stmt := range stmts {
		if _, err := database.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
