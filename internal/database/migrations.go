package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	Up          func(*sql.Tx) error
}

// migrations is the ordered list of all database migrations
var migrations = []Migration{
	{Version: 1, Description: "Create schema_version table", Up: migration001Up},
	{Version: 2, Description: "Create accounts table", Up: migration002Up},
	{Version: 3, Description: "Create login_info and login_requests tables", Up: migration003Up},
	{Version: 4, Description: "Create mining_info table", Up: migration004Up},
	{Version: 5, Description: "Create upgrade_log and error_log tables", Up: migration005Up},
}

// LatestVersion is the schema version after all migrations
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

// RunMigrations runs all pending database migrations
func (db *DB) RunMigrations() error {
	currentVersion, err := db.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		err := db.ExecTx(func(tx *sql.Tx) error {
			if err := migration.Up(tx); err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}

			_, err := tx.Exec(`
				INSERT INTO schema_version (version, description, applied_at)
				VALUES (?, ?, ?)
			`, migration.Version, migration.Description, time.Now())
			return err
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) getCurrentVersion() (int, error) {
	var tableExists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return 0, err
	}
	if !tableExists {
		return 0, nil
	}

	var version int
	err = db.conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	return version, err
}

func migration001Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	return err
}

func migration002Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			phone TEXT NOT NULL UNIQUE,
			area_code TEXT NOT NULL DEFAULT '',
			login_param TEXT NOT NULL DEFAULT '',

			-- Credential and referral metadata
			access_token TEXT NOT NULL DEFAULT '',
			invite_link TEXT NOT NULL DEFAULT '',
			friends_count INTEGER NOT NULL DEFAULT 0,

			-- Last profile snapshot
			balance INTEGER NOT NULL DEFAULT 0,
			profit_per_hour INTEGER NOT NULL DEFAULT 0,
			league TEXT NOT NULL DEFAULT '',

			created_at DATETIME NOT NULL,
			updated_at DATETIME,
			last_authorized_at DATETIME,

			is_active BOOLEAN NOT NULL DEFAULT 1,
			is_banned BOOLEAN NOT NULL DEFAULT 0,
			notes TEXT
		);

		CREATE INDEX idx_accounts_active ON accounts(is_active);
	`)
	return err
}

func migration003Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE login_info (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			login_param TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			logged_in_at DATETIME NOT NULL
		);
		CREATE INDEX idx_login_info_account ON login_info(account_id, logged_in_at);

		CREATE TABLE login_requests (
			id TEXT PRIMARY KEY,
			account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			attempt INTEGER NOT NULL,
			requested_at DATETIME NOT NULL,
			fulfilled_at DATETIME
		);
		CREATE INDEX idx_login_requests_pending ON login_requests(fulfilled_at);
	`)
	return err
}

func migration004Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE mining_info (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			cycle_id TEXT NOT NULL,
			earn_per_tap INTEGER NOT NULL,
			count INTEGER NOT NULL,
			mined INTEGER NOT NULL,
			remaining_energy INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX idx_mining_info_account ON mining_info(account_id, created_at);
	`)
	return err
}

func migration005Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE upgrade_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			card_id INTEGER NOT NULL,
			card_name TEXT NOT NULL DEFAULT '',
			cost TEXT NOT NULL,
			ratio TEXT NOT NULL,
			balance_after INTEGER NOT NULL,
			purchased_at DATETIME NOT NULL
		);
		CREATE INDEX idx_upgrade_log_account ON upgrade_log(account_id, purchased_at);

		CREATE TABLE error_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER,
			error_type TEXT NOT NULL,
			error_severity TEXT NOT NULL,
			error_message TEXT NOT NULL,
			occurred_at DATETIME NOT NULL
		);
		CREATE INDEX idx_error_log_occurred ON error_log(occurred_at);
	`)
	return err
}
