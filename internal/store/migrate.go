package store

import (
	"database/sql"
	"fmt"
	"time"
)

// migration is one versioned schema step, applied in order.
type migration struct {
	version     int
	description string
	statements  []string
}

var migrations = []migration{
	{
		version:     1,
		description: "game sessions table",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS game_sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL DEFAULT '',
				prompt TEXT NOT NULL,
				category TEXT NOT NULL DEFAULT '',
				drawing_url TEXT NOT NULL DEFAULT '',
				ai_guess TEXT NOT NULL DEFAULT '',
				confidence INTEGER NOT NULL DEFAULT 0 CHECK(confidence BETWEEN 0 AND 100),
				correct INTEGER NOT NULL DEFAULT 0,
				started_at INTEGER NOT NULL,
				ended_at INTEGER NOT NULL DEFAULT 0,
				duration INTEGER NOT NULL DEFAULT 0 CHECK(duration >= 0),
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_game_sessions_user ON game_sessions(user_id);`,
			`CREATE INDEX IF NOT EXISTS idx_game_sessions_updated ON game_sessions(updated_at);`,
		},
	},
	{
		version:     2,
		description: "conflict log table",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS conflict_log (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				local_timestamp INTEGER NOT NULL,
				remote_timestamp INTEGER NOT NULL,
				resolution TEXT NOT NULL,
				detected_at INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_conflict_log_session ON conflict_log(session_id);`,
		},
	},
}

// Migrate brings the schema up to the latest version.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL,
		description TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.statements {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.version, time.Now().UnixMilli(), m.description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
