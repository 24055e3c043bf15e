package repository

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates and initializes a SQLite database
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	// Timestamps are unix microseconds (see Clock); booleans are 0/1.
	schema := `
	-- Alarms table
	CREATE TABLE IF NOT EXISTS alarms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		time TEXT NOT NULL,
		days TEXT NOT NULL DEFAULT '[]',
		sound TEXT,
		vibration INTEGER NOT NULL DEFAULT 1,
		snooze_interval INTEGER NOT NULL DEFAULT 5,
		snooze_count INTEGER NOT NULL DEFAULT 3,
		is_active INTEGER NOT NULL DEFAULT 1,
		no_repeat INTEGER NOT NULL DEFAULT 0,
		device_id TEXT,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alarms_user_id ON alarms(user_id);
	CREATE INDEX IF NOT EXISTS idx_alarms_user_updated ON alarms(user_id, updated_at);

	-- Devices table (registry for sync watermarks and push tokens)
	CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		device_id TEXT NOT NULL,
		device_name TEXT NOT NULL,
		last_sync INTEGER,
		fcm_token TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(user_id, device_id)
	);

	CREATE INDEX IF NOT EXISTS idx_devices_user_id ON devices(user_id);
	CREATE INDEX IF NOT EXISTS idx_devices_fcm_token ON devices(fcm_token);
	`

	_, err := db.Exec(schema)
	return err
}
