// Package sqlite persists payments in a SQLite database.
package sqlite

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the database at path and applies pragmas for
// concurrent access.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA foreign_keys = ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// RunMigrations creates the schema if it does not exist.
func RunMigrations(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			merchant_ref TEXT NOT NULL UNIQUE,
			tracking_id TEXT,
			provider TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			description TEXT,
			payer_email TEXT,
			payer_phone TEXT,
			payer_first_name TEXT,
			payer_last_name TEXT,
			status TEXT NOT NULL,
			redirect_url TEXT,
			failure_reason TEXT,
			channel TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			confirmed_at DATETIME
		);`,

		`CREATE INDEX IF NOT EXISTS idx_payments_tracking_id ON payments(tracking_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
