package archive

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// schemaVersion is the current expected SQLite schema version.
const schemaVersion = 3

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations are applied in order, each exactly once, tracked in schema_version.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: discord_messages, vec_discord_messages",
		SQL: `
		CREATE TABLE IF NOT EXISTS discord_messages (
			id          TEXT PRIMARY KEY,
			channel_id  TEXT NOT NULL,
			author_id   TEXT NOT NULL,
			content     TEXT NOT NULL,
			created_at  TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS vec_discord_messages (
			id          TEXT PRIMARY KEY,
			embedding   BLOB NOT NULL
		);
		`,
	},
	{
		Version:     2,
		Description: "v2: channel/time index for generated queries",
		SQL: `
		CREATE INDEX IF NOT EXISTS idx_discord_messages_channel ON discord_messages(channel_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_discord_messages_author ON discord_messages(author_id);
		`,
	},
	{
		Version:     3,
		Description: "v3: rewrite created_at as 'YYYY-MM-DD HH:MM:SS' UTC",
		SQL: `
		UPDATE discord_messages
		SET created_at = strftime('%Y-%m-%d %H:%M:%S', created_at)
		WHERE created_at LIKE '%T%' AND strftime('%Y-%m-%d %H:%M:%S', created_at) IS NOT NULL
		`,
	},
}

// runMigrations applies all pending schema migrations inside one transaction each.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		for _, stmt := range splitSQL(m.SQL) {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration v%d statement failed: %w\nSQL: %s", m.Version, err, truncate(stmt, 200))
			}
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return v, nil
}

// splitSQL splits a multi-statement script on semicolons, dropping blanks.
func splitSQL(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
