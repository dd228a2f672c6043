package store

import "fmt"

// schema lists the migrations in order. Entry i brings the database to
// version i+1, recorded in PRAGMA user_version. Append only.
var schema = [][]string{
	{
		// Key/value pairs; values are JSON text.
		`CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// One row per scripted or manual training run.
		`CREATE TABLE training_sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			finished_at DATETIME,
			noaction_samples INTEGER NOT NULL DEFAULT 0,
			down_samples INTEGER NOT NULL DEFAULT 0,
			up_samples INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX idx_training_sessions_started_at ON training_sessions(started_at)`,
	},
}

// SchemaVersion is the version a freshly migrated database reports.
var SchemaVersion = len(schema)

// Version returns the schema version stored in the database.
func (s *Store) Version() (int, error) {
	var v int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// runMigrations applies every step above the stored version, each in its
// own transaction.
func (s *Store) runMigrations() error {
	current, err := s.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(schema) {
		return fmt.Errorf("database schema version %d is newer than %d", current, len(schema))
	}

	for v := current; v < len(schema); v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range schema[v] {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: %w", v+1, err)
			}
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
	}
	return nil
}
