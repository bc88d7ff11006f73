package storage

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_pipeline_runs_table",
		Up:      migration002AddPipelineRunsTable,
	},
	{
		Version: 3,
		Name:    "add_audit_match_metadata",
		Up:      migration003AddAuditMatchMetadata,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		log.Printf("Running migration %d: %s", migration.Version, migration.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table
func (s *Storage) ensureMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := s.db.Exec(query)
	return err
}

// getAppliedMigrations returns a set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func migration001InitialSchema(tx *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference_code TEXT NOT NULL DEFAULT '',
			given_name TEXT NOT NULL DEFAULT '',
			family_name TEXT NOT NULL DEFAULT '',
			long_name TEXT NOT NULL DEFAULT '',
			balance_cents INTEGER NOT NULL DEFAULT 0,
			paid_cents INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_reference_code ON accounts(reference_code)`,

		`CREATE TABLE IF NOT EXISTS payment_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			amount_cents INTEGER NOT NULL,
			reference TEXT NOT NULL DEFAULT '',
			reference_number TEXT NOT NULL DEFAULT '',
			payer_name TEXT NOT NULL DEFAULT '',
			posted_at TIMESTAMP NOT NULL,
			assigned_account_id INTEGER REFERENCES accounts(id),
			needs_review INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_records_assigned ON payment_records(assigned_account_id)`,

		`CREATE TABLE IF NOT EXISTS audit_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			payment_record_id INTEGER NOT NULL REFERENCES payment_records(id),
			account_id INTEGER NOT NULL REFERENCES accounts(id),
			confidence REAL NOT NULL,
			method TEXT NOT NULL,
			confirmed INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_records_payment ON audit_records(payment_record_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_records_confirmed ON audit_records(confirmed)`,
	}

	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func migration002AddPipelineRunsTable(tx *sql.Tx) error {
	query := `
	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		dry_run INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running',
		processed INTEGER NOT NULL DEFAULT 0,
		confirmed INTEGER NOT NULL DEFAULT 0,
		suggested INTEGER NOT NULL DEFAULT 0,
		needs_review INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		errored INTEGER NOT NULL DEFAULT 0
	)`

	_, err := tx.Exec(query)
	return err
}

// migration003AddAuditMatchMetadata adds the stored normalized text and
// payer name that the history-assist gate keys on. The capability check in
// NewStorage looks for these columns.
func migration003AddAuditMatchMetadata(tx *sql.Tx) error {
	queries := []string{
		`ALTER TABLE audit_records ADD COLUMN normalized_text TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE audit_records ADD COLUMN payer_name TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_audit_records_normalized_text ON audit_records(normalized_text)`,
	}

	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return err
		}
	}
	return nil
}
