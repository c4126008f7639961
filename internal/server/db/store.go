package db

import (
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store wraps a SQLite database connection.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates a SQLite database and runs migrations. The
// pragmas ride on the DSN so that every connection database/sql opens gets
// them; a plain `PRAGMA` Exec only reaches the one pooled connection that
// happens to serve it. busy_timeout makes concurrent sync writers and HTTP
// reads wait for locks instead of failing with SQLITE_BUSY.
func NewStore(dbPath string) (*Store, error) {
	dsn := dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id TEXT PRIMARY KEY,
			domain TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			provider TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS org_users (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			email TEXT NOT NULL,
			is_admin INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (organization_id, email),
			FOREIGN KEY (organization_id) REFERENCES organizations(id)
		)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			client_ids TEXT NOT NULL,
			name TEXT NOT NULL,
			scopes TEXT NOT NULL DEFAULT '',
			risk_tier TEXT NOT NULL DEFAULT 'LOW',
			category TEXT NOT NULL DEFAULT '',
			user_count INTEGER NOT NULL DEFAULT 0,
			management_status TEXT NOT NULL DEFAULT 'NEEDS_REVIEW',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (organization_id, client_ids),
			FOREIGN KEY (organization_id) REFERENCES organizations(id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_app_relations (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			user_email TEXT NOT NULL,
			application_id TEXT NOT NULL,
			scopes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_email, application_id),
			FOREIGN KEY (organization_id) REFERENCES organizations(id),
			FOREIGN KEY (application_id) REFERENCES applications(id)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_statuses (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			progress INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			access_token_enc BLOB,
			refresh_token_enc BLOB,
			token_expiry DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id)
		)`,
		`CREATE TABLE IF NOT EXISTS notification_tracking (
			organization_id TEXT NOT NULL,
			user_email TEXT NOT NULL,
			application_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			sent_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (organization_id, user_email, application_id, kind)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_org ON user_app_relations(organization_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_statuses_org ON sync_statuses(organization_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// isConstraintErr reports whether err is a SQLite uniqueness violation
// (UNIQUE constraint or primary key).
func isConstraintErr(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
