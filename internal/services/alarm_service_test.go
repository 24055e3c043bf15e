package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaherMaker/TimelyBackend/internal/models"
	"github.com/MaherMaker/TimelyBackend/internal/repository"
)

type alarmHarness struct {
	svc      *AlarmService
	alarms   *repository.AlarmRepository
	hub      *WebSocketHub
	notifier *fakeNotifier
}

func newAlarmHarness(t *testing.T) *alarmHarness {
	t.Helper()
	db := openTestDB(t)
	clock := repository.NewClock()
	alarms := repository.NewAlarmRepository(db, clock)
	hub := NewWebSocketHub()
	notifier := newFakeNotifier()

	return &alarmHarness{
		svc:      NewAlarmService(alarms, hub, notifier, nil),
		alarms:   alarms,
		hub:      hub,
		notifier: notifier,
	}
}

func TestAlarmService_Create(t *testing.T) {
	h := newAlarmHarness(t)
	ctx := context.Background()

	sibling := h.hub.NewClient("conn-2", 1, "phone-2", nil)
	h.hub.Connect(sibling)

	alarm, err := h.svc.Create(ctx, 1, &models.AlarmDraft{
		Title: "Wake up",
		Time:  "06:30",
		Days:  []int{1, 2, 3, 4, 5},
	}, "phone-1", "conn-1")
	require.NoError(t, err)
	assert.Greater(t, alarm.ID, int64(0))
	assert.Equal(t, models.SyncStatusSynced, alarm.SyncStatus)
	assert.Equal(t, "phone-1", alarm.DeviceID)

	msg := receiveMessage(t, sibling)
	assert.Equal(t, EventAlarmCreated, msg.Event)

	call := h.notifier.waitForCall(t)
	assert.Equal(t, "create", call.operation)
	assert.Equal(t, alarm.ID, call.entityID)
	assert.Equal(t, "phone-1", call.exclude)

	t.Run("rejects invalid draft", func(t *testing.T) {
		_, err := h.svc.Create(ctx, 1, &models.AlarmDraft{Title: "", Time: "06:30"}, "phone-1", "")
		assert.True(t, models.IsValidationError(err))
	})
}

func TestAlarmService_GetAndList(t *testing.T) {
	h := newAlarmHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, 1, &models.AlarmDraft{Title: "Wake up", Time: "06:30"}, "phone-1", "")
	require.NoError(t, err)

	t.Run("owner reads it back", func(t *testing.T) {
		got, err := h.svc.Get(ctx, created.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, "Wake up", got.Title)
	})

	t.Run("other user gets not found", func(t *testing.T) {
		_, err := h.svc.Get(ctx, created.ID, 2)
		assert.ErrorIs(t, err, models.ErrAlarmNotFound)
	})

	t.Run("list is scoped to the user", func(t *testing.T) {
		mine, err := h.svc.List(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		theirs, err := h.svc.List(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, theirs)
	})
}

func TestAlarmService_Update(t *testing.T) {
	h := newAlarmHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, 1, &models.AlarmDraft{Title: "Wake up", Time: "06:30"}, "phone-1", "")
	require.NoError(t, err)
	h.notifier.waitForCall(t)

	sibling := h.hub.NewClient("conn-2", 1, "phone-2", nil)
	h.hub.Connect(sibling)

	newTime := "07:00"
	updated, err := h.svc.Update(ctx, created.ID, 1, &models.AlarmUpdate{Time: &newTime}, "phone-2", "conn-2")
	require.NoError(t, err)
	assert.Equal(t, "07:00", updated.Time)
	assert.Equal(t, "phone-2", updated.DeviceID)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	t.Run("originating connection is excluded from fan-out", func(t *testing.T) {
		assertNoMessage(t, sibling)
	})

	call := h.notifier.waitForCall(t)
	assert.Equal(t, "update", call.operation)
	assert.Equal(t, "phone-2", call.exclude)

	t.Run("other user cannot update", func(t *testing.T) {
		title := "Hijacked"
		_, err := h.svc.Update(ctx, created.ID, 2, &models.AlarmUpdate{Title: &title}, "phone-9", "")
		assert.ErrorIs(t, err, models.ErrAlarmNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		title := "Nothing"
		_, err := h.svc.Update(ctx, 9999, 1, &models.AlarmUpdate{Title: &title}, "phone-1", "")
		assert.ErrorIs(t, err, models.ErrAlarmNotFound)
	})
}

func TestAlarmService_Delete(t *testing.T) {
	h := newAlarmHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, 1, &models.AlarmDraft{Title: "Wake up", Time: "06:30"}, "phone-1", "")
	require.NoError(t, err)
	h.notifier.waitForCall(t)

	sibling := h.hub.NewClient("conn-2", 1, "phone-2", nil)
	h.hub.Connect(sibling)

	t.Run("other user cannot delete", func(t *testing.T) {
		err := h.svc.Delete(ctx, created.ID, 2, "phone-9", "")
		assert.ErrorIs(t, err, models.ErrAlarmNotFound)
	})

	require.NoError(t, h.svc.Delete(ctx, created.ID, 1, "phone-1", "conn-1"))

	msg := receiveMessage(t, sibling)
	assert.Equal(t, EventAlarmDeleted, msg.Event)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(created.ID), payload["id"])

	_, err = h.svc.Get(ctx, created.ID, 1)
	assert.ErrorIs(t, err, models.ErrAlarmNotFound)

	t.Run("deleting again", func(t *testing.T) {
		err := h.svc.Delete(ctx, created.ID, 1, "phone-1", "")
		assert.ErrorIs(t, err, models.ErrAlarmNotFound)
	})
}

func TestAlarmService_Toggle(t *testing.T) {
	h := newAlarmHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, 1, &models.AlarmDraft{Title: "Wake up", Time: "06:30"}, "phone-1", "")
	require.NoError(t, err)
	require.True(t, created.IsActive)

	sibling := h.hub.NewClient("conn-2", 1, "phone-2", nil)
	h.hub.Connect(sibling)

	toggled, err := h.svc.Toggle(ctx, created.ID, 1, false, "phone-1", "conn-1")
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	t.Run("other sessions see a plain update", func(t *testing.T) {
		msg := receiveMessage(t, sibling)
		assert.Equal(t, EventAlarmUpdated, msg.Event)
	})
}
