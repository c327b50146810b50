package database

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

func schemaVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// migrate applies every migration newer than PRAGMA user_version, in order.
func migrate(conn *sql.DB) error {
	from, err := schemaVersion(conn)
	if err != nil {
		return err
	}
	to := latestVersion()
	if from >= to {
		return nil
	}

	log.Info().Int("from", from).Int("to", to).Msg("upgrading history schema")
	for _, m := range migrations {
		if m.Version > from {
			if err := apply(conn, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func apply(conn *sql.DB, m Migration) error {
	log.Debug().Int("version", m.Version).Str("description", m.Description).Msg("applying migration")

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: commit: %w", m.Version, err)
	}

	// modernc/sqlite rejects user_version inside the transaction; the DDL is
	// idempotent so a crash before this line only re-runs the migration.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("migration %d: recording version: %w", m.Version, err)
	}
	return nil
}
