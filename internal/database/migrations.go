package database

import (
	"database/sql"
	"strings"
)

type migration struct {
	name string
	stmt string
}

// Statements use {{serial}} and {{timestamp}} for the dialect-specific column types.
var migrations = []migration{
	{"create_users_table", `CREATE TABLE IF NOT EXISTS users (
		id {{serial}},
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		created_at {{timestamp}} DEFAULT CURRENT_TIMESTAMP,
		last_login {{timestamp}}
	)`},

	{"create_sessions_table", `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		expires_at {{timestamp}} NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at {{timestamp}} DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`},

	{"create_applications_table", `CREATE TABLE IF NOT EXISTS applications (
		id {{serial}},
		app_id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`},

	{"create_user_applications_table", `CREATE TABLE IF NOT EXISTS user_applications (
		user_id INTEGER NOT NULL,
		app_id TEXT NOT NULL,
		PRIMARY KEY (user_id, app_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (app_id) REFERENCES applications(app_id) ON DELETE CASCADE
	)`},

	{"create_audit_logs_table", `CREATE TABLE IF NOT EXISTS audit_logs (
		id {{serial}},
		user_id INTEGER,
		username TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		status INTEGER NOT NULL DEFAULT 0,
		created_at {{timestamp}} DEFAULT CURRENT_TIMESTAMP
	)`},

	{"index_sessions_user_id", `CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`},
	{"index_sessions_expires_at", `CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`},
	{"index_user_applications_app_id", `CREATE INDEX IF NOT EXISTS idx_user_applications_app_id ON user_applications(app_id)`},
	{"index_audit_logs_created_at", `CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`},
}

func (db *DB) dialectSQL(stmt string) string {
	serial, timestamp := "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"
	if db.Dialect == Postgres {
		serial, timestamp = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	}
	stmt = strings.ReplaceAll(stmt, "{{serial}}", serial)
	return strings.ReplaceAll(stmt, "{{timestamp}}", timestamp)
}

func runMigrations(db *DB) error {
	if err := createMigrationsTable(db); err != nil {
		return err
	}

	batch, err := nextBatch(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		ran, err := hasMigrationRun(db, m.name)
		if err != nil {
			return err
		}
		if ran {
			continue
		}
		if _, err := db.Exec(db.dialectSQL(m.stmt)); err != nil {
			return err
		}
		if err := recordMigration(db, m.name, batch); err != nil {
			return err
		}
	}
	return nil
}

func createMigrationsTable(db *DB) error {
	_, err := db.Exec(db.dialectSQL(`CREATE TABLE IF NOT EXISTS migrations (
		id {{serial}},
		migration TEXT UNIQUE NOT NULL,
		batch INTEGER NOT NULL,
		applied_at {{timestamp}} DEFAULT CURRENT_TIMESTAMP
	)`))
	return err
}

func nextBatch(db *DB) (int, error) {
	var batch sql.NullInt64
	if err := db.QueryRow("SELECT MAX(batch) FROM migrations").Scan(&batch); err != nil {
		return 0, err
	}
	return int(batch.Int64) + 1, nil
}

func hasMigrationRun(db *DB, name string) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM migrations WHERE migration = ?", name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func recordMigration(db *DB, name string, batch int) error {
	_, err := db.Exec("INSERT INTO migrations (migration, batch) VALUES (?, ?)", name, batch)
	return err
}
