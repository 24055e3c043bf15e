package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MaherMaker/TimelyBackend/internal/models"
)

const alarmColumns = `id, user_id, title, time, days, sound, vibration, snooze_interval,
	snooze_count, is_active, no_repeat, device_id, sync_status, created_at, updated_at`

// AlarmRepository implements AlarmRepo for PostgreSQL/SQLite.
// Timestamps are stored as unix microseconds so delta comparisons behave
// identically on both backends.
type AlarmRepository struct {
	db    DBTX
	clock *Clock
}

// NewAlarmRepository creates a new AlarmRepository using the shared write clock.
func NewAlarmRepository(db DBTX, clock *Clock) *AlarmRepository {
	return &AlarmRepository{db: db, clock: clock}
}

func (r *AlarmRepository) Get(ctx context.Context, id int64, userID int) (*models.Alarm, error) {
	query := fmt.Sprintf(`SELECT %s FROM alarms WHERE id = $1 AND user_id = $2`, alarmColumns)

	alarm, err := scanAlarm(r.db.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return alarm, nil
}

func (r *AlarmRepository) ListByUser(ctx context.Context, userID int) ([]*models.Alarm, error) {
	query := fmt.Sprintf(`SELECT %s FROM alarms WHERE user_id = $1 ORDER BY time ASC`, alarmColumns)

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlarms(rows)
}

func (r *AlarmRepository) ListUpdatedSince(ctx context.Context, userID int, since time.Time) ([]*models.Alarm, error) {
	query := fmt.Sprintf(`SELECT %s FROM alarms WHERE user_id = $1 AND updated_at > $2 ORDER BY updated_at ASC`, alarmColumns)

	rows, err := r.db.QueryContext(ctx, query, userID, since.UnixMicro())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlarms(rows)
}

func (r *AlarmRepository) Create(ctx context.Context, alarm *models.Alarm) (int64, error) {
	days, err := json.Marshal(alarm.Days)
	if err != nil {
		return 0, err
	}

	now := r.clock.Now()
	alarm.CreatedAt = now
	alarm.UpdatedAt = now
	if alarm.SyncStatus == "" {
		alarm.SyncStatus = models.SyncStatusPending
	}

	query := `INSERT INTO alarms (user_id, title, time, days, sound, vibration, snooze_interval,
			  snooze_count, is_active, no_repeat, device_id, sync_status, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			  RETURNING id`

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		alarm.UserID, alarm.Title, alarm.Time, string(days), nullString(alarm.Sound),
		alarm.Vibration, alarm.SnoozeInterval, alarm.SnoozeCount, alarm.IsActive,
		alarm.NoRepeat, nullString(alarm.DeviceID), alarm.SyncStatus,
		now.UnixMicro(), now.UnixMicro(),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	alarm.ID = id
	return id, nil
}

// Update overwrites the supplied fields and always bumps updated_at, even when
// no other field changes, so the write stays observable to delta queries.
func (r *AlarmRepository) Update(ctx context.Context, id int64, userID int, update *models.AlarmUpdate) error {
	sets := []string{}
	args := []interface{}{}
	n := 0

	add := func(col string, val interface{}) {
		n++
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, val)
	}

	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Time != nil {
		add("time", *update.Time)
	}
	if update.Days != nil {
		days, err := json.Marshal(update.Days)
		if err != nil {
			return err
		}
		add("days", string(days))
	}
	if update.Sound != nil {
		add("sound", nullString(*update.Sound))
	}
	if update.Vibration != nil {
		add("vibration", *update.Vibration)
	}
	if update.SnoozeInterval != nil {
		add("snooze_interval", *update.SnoozeInterval)
	}
	if update.SnoozeCount != nil {
		add("snooze_count", *update.SnoozeCount)
	}
	if update.IsActive != nil {
		add("is_active", *update.IsActive)
	}
	if update.NoRepeat != nil {
		add("no_repeat", *update.NoRepeat)
	}
	if update.DeviceID != nil {
		add("device_id", *update.DeviceID)
	}
	if update.SyncStatus != nil {
		add("sync_status", *update.SyncStatus)
	}
	add("updated_at", r.clock.Now().UnixMicro())

	query := fmt.Sprintf(`UPDATE alarms SET %s WHERE id = $%d AND user_id = $%d`,
		strings.Join(sets, ", "), n+1, n+2)
	args = append(args, id, userID)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrAlarmNotFound
	}
	return nil
}

func (r *AlarmRepository) Delete(ctx context.Context, id int64, userID int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlarm(row rowScanner) (*models.Alarm, error) {
	var alarm models.Alarm
	var days string
	var sound, deviceID sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&alarm.ID, &alarm.UserID, &alarm.Title, &alarm.Time, &days, &sound,
		&alarm.Vibration, &alarm.SnoozeInterval, &alarm.SnoozeCount,
		&alarm.IsActive, &alarm.NoRepeat, &deviceID, &alarm.SyncStatus,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(days), &alarm.Days); err != nil {
		return nil, fmt.Errorf("corrupt days column for alarm %d: %w", alarm.ID, err)
	}
	alarm.Sound = sound.String
	alarm.DeviceID = deviceID.String
	alarm.CreatedAt = time.UnixMicro(createdAt).UTC()
	alarm.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &alarm, nil
}

func collectAlarms(rows *sql.Rows) ([]*models.Alarm, error) {
	var alarms []*models.Alarm
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		alarms = append(alarms, alarm)
	}
	return alarms, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
