package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the bridge's local state on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Signed-in session, at most one row
		`CREATE TABLE IF NOT EXISTS bridge_sessions (
			id           SMALLINT     PRIMARY KEY CHECK (id = 1),
			user_id      TEXT         NOT NULL,
			sealed_token TEXT         NOT NULL,
			expires_at   TIMESTAMPTZ,
			updated_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Display settings, at most one row
		`CREATE TABLE IF NOT EXISTS bridge_settings (
			id                SMALLINT     PRIMARY KEY CHECK (id = 1),
			lock_display_mode VARCHAR(16)  NOT NULL DEFAULT 'text',
			custom_lock_text  TEXT         NOT NULL DEFAULT 'Locked',
			updated_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Older bridges did not keep an expiry
		`ALTER TABLE bridge_sessions ADD COLUMN IF NOT EXISTS expires_at TIMESTAMPTZ`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
