package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/MaherMaker/TimelyBackend/internal/models"
)

// DBTX is the connection surface the repositories use. Both *sql.DB and the
// traced wrapper in observability satisfy it.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// AlarmRepo is the minimal persistence contract the sync engine needs.
// Lookups scoped to a user return (nil, nil) when no owned row exists.
type AlarmRepo interface {
	Get(ctx context.Context, id int64, userID int) (*models.Alarm, error)
	ListByUser(ctx context.Context, userID int) ([]*models.Alarm, error)
	ListUpdatedSince(ctx context.Context, userID int, since time.Time) ([]*models.Alarm, error)
	Create(ctx context.Context, alarm *models.Alarm) (int64, error)
	Update(ctx context.Context, id int64, userID int, update *models.AlarmUpdate) error
	Delete(ctx context.Context, id int64, userID int) (bool, error)
}

// DeviceRepo is the device registry contract. It exclusively owns last_sync
// and fcm_token mutation; the sync engine only reads the watermark and
// requests advancement.
type DeviceRepo interface {
	Find(ctx context.Context, userID int, deviceID string) (*models.Device, error)
	Upsert(ctx context.Context, userID int, deviceID, deviceName string, fcmToken *string) (*models.Device, error)
	AdvanceWatermark(ctx context.Context, userID int, deviceID string, at time.Time) error
	ListByUser(ctx context.Context, userID int) ([]*models.Device, error)
	UpdateFCMToken(ctx context.Context, userID int, deviceID, fcmToken string) (*models.Device, error)
	DeleteByFCMToken(ctx context.Context, fcmToken string) (bool, error)
}
