package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaherMaker/TimelyBackend/internal/models"
	"github.com/MaherMaker/TimelyBackend/internal/repository"
)

type notifyCall struct {
	userID    int
	operation string
	entityID  int64
	exclude   string
}

// fakeNotifier records push fallback requests on a channel so tests can wait
// for the async call without sleeping.
type fakeNotifier struct {
	calls chan notifyCall
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{calls: make(chan notifyCall, 16)}
}

func (f *fakeNotifier) NotifyOtherDevices(ctx context.Context, userID int, operation string, entityID int64, excludeDeviceID string) {
	f.calls <- notifyCall{userID: userID, operation: operation, entityID: entityID, exclude: excludeDeviceID}
}

func (f *fakeNotifier) waitForCall(t *testing.T) notifyCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(time.Second):
		t.Fatal("expected a push fallback call")
		return notifyCall{}
	}
}

func (f *fakeNotifier) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case call := <-f.calls:
		t.Fatalf("unexpected push fallback call: %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}

type syncHarness struct {
	svc      *SyncService
	alarms   *repository.AlarmRepository
	devices  *repository.DeviceRepository
	hub      *WebSocketHub
	notifier *fakeNotifier
	clock    *repository.Clock
}

func newSyncHarness(t *testing.T) *syncHarness {
	t.Helper()
	db := openTestDB(t)
	clock := repository.NewClock()
	alarms := repository.NewAlarmRepository(db, clock)
	devices := repository.NewDeviceRepository(db, clock)
	hub := NewWebSocketHub()
	notifier := newFakeNotifier()

	return &syncHarness{
		svc:      NewSyncService(alarms, devices, hub, notifier, clock, nil),
		alarms:   alarms,
		devices:  devices,
		hub:      hub,
		notifier: notifier,
		clock:    clock,
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func draft(title, at string) models.AlarmDraft {
	return models.AlarmDraft{Title: title, Time: at, Days: []int{1, 2, 3}}
}

func TestSyncService_FirstSyncDeliversEverything(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	_, err := h.alarms.Create(ctx, draft("Existing A", "06:00").ToAlarm(1, "phone-old"))
	require.NoError(t, err)
	_, err = h.alarms.Create(ctx, draft("Existing B", "07:00").ToAlarm(1, "phone-old"))
	require.NoError(t, err)

	delta, err := h.svc.Sync(ctx, 1, "phone-new", nil, "")
	require.NoError(t, err)
	require.Len(t, delta, 2)
	assert.Equal(t, "Existing A", delta[0].Title)
	assert.Equal(t, "Existing B", delta[1].Title)

	t.Run("device was registered implicitly", func(t *testing.T) {
		device, err := h.devices.Find(ctx, 1, "phone-new")
		require.NoError(t, err)
		require.NotNil(t, device)
		assert.Equal(t, "Device phone-", device.DeviceName)
		assert.NotNil(t, device.LastSync)
	})

	t.Run("empty batch sends no events", func(t *testing.T) {
		h.notifier.assertNoCall(t)
	})
}

func TestSyncService_EmptySyncIsIdempotent(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	_, err := h.alarms.Create(ctx, draft("Existing", "06:00").ToAlarm(1, "phone-old"))
	require.NoError(t, err)

	first, err := h.svc.Sync(ctx, 1, "phone-1", nil, "")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := h.svc.Sync(ctx, 1, "phone-1", nil, "")
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.NotNil(t, second)
}

func TestSyncService_AppliesClientBatch(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	delta, err := h.svc.Sync(ctx, 1, "phone-1", []models.AlarmDraft{
		draft("Wake up", "06:30"),
		draft("Gym", "18:00"),
	}, "")
	require.NoError(t, err)

	// The delta redelivers the rows this sync just wrote; the client applies
	// them as no-ops.
	require.Len(t, delta, 2)
	for _, alarm := range delta {
		assert.Equal(t, "phone-1", alarm.DeviceID)
		assert.Equal(t, models.SyncStatusSynced, alarm.SyncStatus)
	}

	call := h.notifier.waitForCall(t)
	assert.Equal(t, "sync", call.operation)
	assert.Equal(t, "phone-1", call.exclude)
}

func TestSyncService_OwnWritesNotRedelivered(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	delta, err := h.svc.Sync(ctx, 1, "phone-1", []models.AlarmDraft{draft("Mine", "06:30")}, "")
	require.NoError(t, err)
	require.Len(t, delta, 1)

	t.Run("created rows stay below the advanced watermark", func(t *testing.T) {
		next, err := h.svc.Sync(ctx, 1, "phone-1", nil, "")
		require.NoError(t, err)
		assert.Empty(t, next)
	})

	t.Run("updated rows too", func(t *testing.T) {
		id := delta[0].ID
		moved := draft("Mine", "07:00")
		moved.ID = &id

		during, err := h.svc.Sync(ctx, 1, "phone-1", []models.AlarmDraft{moved}, "")
		require.NoError(t, err)
		require.Len(t, during, 1)

		next, err := h.svc.Sync(ctx, 1, "phone-1", nil, "")
		require.NoError(t, err)
		assert.Empty(t, next)
	})
}

func TestSyncService_UpdateByID(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	id, err := h.alarms.Create(ctx, draft("Original", "06:00").ToAlarm(1, "phone-1"))
	require.NoError(t, err)

	_, err = h.svc.Sync(ctx, 1, "phone-1", nil, "")
	require.NoError(t, err)

	updated := draft("Original", "09:15")
	updated.ID = &id
	_, err = h.svc.Sync(ctx, 1, "phone-1", []models.AlarmDraft{updated}, "")
	require.NoError(t, err)

	alarm, err := h.alarms.Get(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "09:15", alarm.Time)
}

func TestSyncService_MissingIDRecreates(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	ghost := int64(424242)
	d := draft("Ghost", "06:00")
	d.ID = &ghost

	delta, err := h.svc.Sync(ctx, 1, "phone-1", []models.AlarmDraft{d}, "")
	require.NoError(t, err)
	require.Len(t, delta, 1)
	assert.Equal(t, "Ghost", delta[0].Title)
	assert.NotEqual(t, ghost, delta[0].ID)
}

func TestSyncService_PartialBatchFailureSkips(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	delta, err := h.svc.Sync(ctx, 1, "phone-1", []models.AlarmDraft{
		draft("Good", "06:30"),
		draft("Bad", "99:99"),
		draft("Also good", "07:45"),
	}, "")
	require.NoError(t, err)
	require.Len(t, delta, 2)
	assert.Equal(t, "Good", delta[0].Title)
	assert.Equal(t, "Also good", delta[1].Title)
}

func TestSyncService_TwoDeviceConvergence(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	// Device 1 uploads an alarm, device 2 picks it up on its next sync.
	deltaA, err := h.svc.Sync(ctx, 1, "phone-1", []models.AlarmDraft{draft("Shared", "06:30")}, "")
	require.NoError(t, err)
	require.Len(t, deltaA, 1)
	id := deltaA[0].ID

	deltaB, err := h.svc.Sync(ctx, 1, "phone-2", nil, "")
	require.NoError(t, err)
	require.Len(t, deltaB, 1)
	assert.Equal(t, id, deltaB[0].ID)

	// Device 2 moves the alarm, device 1 sees the new time.
	moved := draft("Shared", "07:00")
	moved.ID = &id
	_, err = h.svc.Sync(ctx, 1, "phone-2", []models.AlarmDraft{moved}, "")
	require.NoError(t, err)

	deltaA2, err := h.svc.Sync(ctx, 1, "phone-1", nil, "")
	require.NoError(t, err)
	require.Len(t, deltaA2, 1)
	assert.Equal(t, "07:00", deltaA2[0].Time)
	assert.Equal(t, "phone-2", deltaA2[0].DeviceID)

	// Both converged: nothing left to deliver.
	deltaB2, err := h.svc.Sync(ctx, 1, "phone-2", nil, "")
	require.NoError(t, err)
	assert.Empty(t, deltaB2)
}

func TestSyncService_UserIsolation(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	_, err := h.svc.Sync(ctx, 1, "phone-1", []models.AlarmDraft{draft("Mine", "06:30")}, "")
	require.NoError(t, err)

	delta, err := h.svc.Sync(ctx, 2, "phone-2", nil, "")
	require.NoError(t, err)
	assert.Empty(t, delta)
}

func TestSyncService_BroadcastExcludesOriginator(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	originator := h.hub.NewClient("conn-1", 1, "phone-1", nil)
	sibling := h.hub.NewClient("conn-2", 1, "phone-2", nil)
	h.hub.Connect(originator)
	h.hub.Connect(sibling)

	_, err := h.svc.Sync(ctx, 1, "phone-1", []models.AlarmDraft{draft("New", "06:30")}, "conn-1")
	require.NoError(t, err)

	msg := receiveMessage(t, sibling)
	assert.Equal(t, EventSyncCompleted, msg.Event)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "phone-1", payload["deviceId"])
	assert.Equal(t, float64(1), payload["count"])

	assertNoMessage(t, originator)
}
