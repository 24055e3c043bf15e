package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables
	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	// Timestamps are unix microseconds (see Clock).
	schema := `
	CREATE TABLE IF NOT EXISTS alarms (
		id BIGSERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		time TEXT NOT NULL,
		days TEXT NOT NULL DEFAULT '[]',
		sound TEXT,
		vibration BOOLEAN NOT NULL DEFAULT TRUE,
		snooze_interval INTEGER NOT NULL DEFAULT 5,
		snooze_count INTEGER NOT NULL DEFAULT 3,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		no_repeat BOOLEAN NOT NULL DEFAULT FALSE,
		device_id TEXT,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alarms_user_id ON alarms(user_id);
	CREATE INDEX IF NOT EXISTS idx_alarms_user_updated ON alarms(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS devices (
		id BIGSERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL,
		device_id TEXT NOT NULL,
		device_name TEXT NOT NULL,
		last_sync BIGINT,
		fcm_token TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE(user_id, device_id)
	);

	CREATE INDEX IF NOT EXISTS idx_devices_user_id ON devices(user_id);
	CREATE INDEX IF NOT EXISTS idx_devices_fcm_token ON devices(fcm_token);
	`

	_, err := db.Exec(schema)
	return err
}
