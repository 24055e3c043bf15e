package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/MaherMaker/TimelyBackend/internal/models"
)

const deviceColumns = `id, user_id, device_id, device_name, last_sync, fcm_token, created_at, updated_at`

// DeviceRepository implements DeviceRepo for PostgreSQL/SQLite.
type DeviceRepository struct {
	db    DBTX
	clock *Clock
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db DBTX, clock *Clock) *DeviceRepository {
	return &DeviceRepository{db: db, clock: clock}
}

func (r *DeviceRepository) Find(ctx context.Context, userID int, deviceID string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = $1 AND device_id = $2`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, userID, deviceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return device, nil
}

// Upsert registers a device or refreshes its name/token in a single statement,
// so two concurrent syncs from a brand-new device cannot race past each other.
// A nil fcmToken never clobbers a stored token: the push fallback depends on
// long-lived tokens surviving unrelated sync calls. New rows start with a null
// last_sync so the first sync delivers the user's entire alarm set; on conflict
// created_at and last_sync are left untouched.
func (r *DeviceRepository) Upsert(ctx context.Context, userID int, deviceID, deviceName string, fcmToken *string) (*models.Device, error) {
	now := r.clock.Now()

	var token sql.NullString
	if fcmToken != nil {
		token = sql.NullString{String: *fcmToken, Valid: true}
	}

	query := `INSERT INTO devices (user_id, device_id, device_name, last_sync, fcm_token, created_at, updated_at)
			  VALUES ($1, $2, $3, NULL, $4, $5, $6)
			  ON CONFLICT (user_id, device_id) DO UPDATE SET
				  device_name = CASE WHEN excluded.device_name = '' THEN devices.device_name ELSE excluded.device_name END,
				  fcm_token = COALESCE(excluded.fcm_token, devices.fcm_token),
				  updated_at = excluded.updated_at
			  RETURNING ` + deviceColumns

	device, err := scanDevice(r.db.QueryRowContext(ctx, query,
		userID, deviceID, deviceName, token, now.UnixMicro(), now.UnixMicro(),
	))
	if err != nil {
		return nil, err
	}
	return device, nil
}

// AdvanceWatermark sets last_sync. Callers pass the timestamp captured at the
// start of the sync, not the end, so concurrent writes from other devices stay
// above the watermark.
func (r *DeviceRepository) AdvanceWatermark(ctx context.Context, userID int, deviceID string, at time.Time) error {
	query := `UPDATE devices SET last_sync = $1, updated_at = $2 WHERE user_id = $3 AND device_id = $4`

	result, err := r.db.ExecContext(ctx, query, at.UnixMicro(), r.clock.Now().UnixMicro(), userID, deviceID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepository) ListByUser(ctx context.Context, userID int) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

func (r *DeviceRepository) UpdateFCMToken(ctx context.Context, userID int, deviceID, fcmToken string) (*models.Device, error) {
	query := `UPDATE devices SET fcm_token = $1, updated_at = $2 WHERE user_id = $3 AND device_id = $4`

	result, err := r.db.ExecContext(ctx, query, fcmToken, r.clock.Now().UnixMicro(), userID, deviceID)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, models.ErrDeviceNotFound
	}
	return r.Find(ctx, userID, deviceID)
}

// DeleteByFCMToken prunes every device row holding a token the provider
// reported as permanently invalid.
func (r *DeviceRepository) DeleteByFCMToken(ctx context.Context, fcmToken string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE fcm_token = $1`, fcmToken)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var device models.Device
	var lastSync sql.NullInt64
	var token sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&device.ID, &device.UserID, &device.DeviceID, &device.DeviceName,
		&lastSync, &token, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSync.Valid {
		t := time.UnixMicro(lastSync.Int64).UTC()
		device.LastSync = &t
	}
	if token.Valid {
		device.FCMToken = &token.String
	}
	device.CreatedAt = time.UnixMicro(createdAt).UTC()
	device.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &device, nil
}
