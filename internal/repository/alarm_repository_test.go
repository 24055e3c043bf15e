package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaherMaker/TimelyBackend/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testAlarm(userID int, title string) *models.Alarm {
	return &models.Alarm{
		UserID:         userID,
		Title:          title,
		Time:           "07:30",
		Days:           []int{1, 2, 3, 4, 5},
		Vibration:      true,
		SnoozeInterval: 5,
		SnoozeCount:    3,
		IsActive:       true,
		DeviceID:       "device-a",
		SyncStatus:     models.SyncStatusSynced,
	}
}

func TestAlarmRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAlarmRepository(db, NewClock())
	ctx := context.Background()

	alarm := testAlarm(1, "Morning")
	id, err := repo.Create(ctx, alarm)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	got, err := repo.Get(ctx, id, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Morning", got.Title)
	assert.Equal(t, "07:30", got.Time)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got.Days)
	assert.Equal(t, "device-a", got.DeviceID)
	assert.True(t, got.Vibration)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)

	t.Run("other user cannot see it", func(t *testing.T) {
		got, err := repo.Get(ctx, id, 2)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("missing id returns nil", func(t *testing.T) {
		got, err := repo.Get(ctx, 9999, 1)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestAlarmRepository_UpdatedAtStrictlyIncreases(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAlarmRepository(db, NewClock())
	ctx := context.Background()

	alarm := testAlarm(1, "Morning")
	id, err := repo.Create(ctx, alarm)
	require.NoError(t, err)

	// Successive writes to the same row must carry strictly increasing
	// updated_at values even when they land within the same microsecond.
	var last time.Time
	for i := 0; i < 5; i++ {
		title := "Morning"
		require.NoError(t, repo.Update(ctx, id, 1, &models.AlarmUpdate{Title: &title}))

		got, err := repo.Get(ctx, id, 1)
		require.NoError(t, err)
		assert.True(t, got.UpdatedAt.After(last), "updated_at did not advance on write %d", i)
		last = got.UpdatedAt
	}
}

func TestAlarmRepository_UpdateBumpsEvenWithoutChanges(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAlarmRepository(db, NewClock())
	ctx := context.Background()

	id, err := repo.Create(ctx, testAlarm(1, "Morning"))
	require.NoError(t, err)
	before, err := repo.Get(ctx, id, 1)
	require.NoError(t, err)

	require.NoError(t, repo.Update(ctx, id, 1, &models.AlarmUpdate{}))

	after, err := repo.Get(ctx, id, 1)
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestAlarmRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAlarmRepository(db, NewClock())
	ctx := context.Background()

	id, err := repo.Create(ctx, testAlarm(1, "Morning"))
	require.NoError(t, err)

	t.Run("partial update leaves other fields alone", func(t *testing.T) {
		newTime := "08:15"
		inactive := false
		require.NoError(t, repo.Update(ctx, id, 1, &models.AlarmUpdate{Time: &newTime, IsActive: &inactive}))

		got, err := repo.Get(ctx, id, 1)
		require.NoError(t, err)
		assert.Equal(t, "08:15", got.Time)
		assert.False(t, got.IsActive)
		assert.Equal(t, "Morning", got.Title)
		assert.Equal(t, []int{1, 2, 3, 4, 5}, got.Days)
	})

	t.Run("wrong owner gets not found", func(t *testing.T) {
		title := "Stolen"
		err := repo.Update(ctx, id, 2, &models.AlarmUpdate{Title: &title})
		assert.ErrorIs(t, err, models.ErrAlarmNotFound)
	})
}

func TestAlarmRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAlarmRepository(db, NewClock())
	ctx := context.Background()

	id, err := repo.Create(ctx, testAlarm(1, "Morning"))
	require.NoError(t, err)

	t.Run("wrong owner deletes nothing", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, id, 2)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("owner deletes", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, id, 1)
		require.NoError(t, err)
		assert.True(t, deleted)

		got, err := repo.Get(ctx, id, 1)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestAlarmRepository_ListUpdatedSince(t *testing.T) {
	db := setupTestDB(t)
	clock := NewClock()
	repo := NewAlarmRepository(db, clock)
	ctx := context.Background()

	first, err := repo.Create(ctx, testAlarm(1, "First"))
	require.NoError(t, err)
	firstRow, err := repo.Get(ctx, first, 1)
	require.NoError(t, err)

	cutoff := firstRow.UpdatedAt

	second, err := repo.Create(ctx, testAlarm(1, "Second"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, testAlarm(2, "Other user"))
	require.NoError(t, err)

	t.Run("returns only rows after the cutoff for the user", func(t *testing.T) {
		delta, err := repo.ListUpdatedSince(ctx, 1, cutoff)
		require.NoError(t, err)
		require.Len(t, delta, 1)
		assert.Equal(t, second, delta[0].ID)
	})

	t.Run("epoch cutoff returns everything ordered by updated_at", func(t *testing.T) {
		delta, err := repo.ListUpdatedSince(ctx, 1, time.Unix(0, 0))
		require.NoError(t, err)
		require.Len(t, delta, 2)
		assert.Equal(t, "First", delta[0].Title)
		assert.Equal(t, "Second", delta[1].Title)
	})

	t.Run("cutoff equal to the newest row returns nothing", func(t *testing.T) {
		secondRow, err := repo.Get(ctx, second, 1)
		require.NoError(t, err)

		delta, err := repo.ListUpdatedSince(ctx, 1, secondRow.UpdatedAt)
		require.NoError(t, err)
		assert.Empty(t, delta)
	})
}

func TestAlarmRepository_ListByUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAlarmRepository(db, NewClock())
	ctx := context.Background()

	late := testAlarm(1, "Late")
	late.Time = "22:00"
	_, err := repo.Create(ctx, late)
	require.NoError(t, err)
	early := testAlarm(1, "Early")
	early.Time = "05:00"
	_, err = repo.Create(ctx, early)
	require.NoError(t, err)

	alarms, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, alarms, 2)
	assert.Equal(t, "Early", alarms[0].Title)
	assert.Equal(t, "Late", alarms[1].Title)
}
