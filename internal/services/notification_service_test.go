package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaherMaker/TimelyBackend/internal/repository"
)

// fakePushSender records sends and fails selected tokens.
type fakePushSender struct {
	mu     sync.Mutex
	sends  []string
	data   []map[string]string
	errFor map[string]error
}

func (f *fakePushSender) SendData(ctx context.Context, token string, data map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, token)
	f.data = append(f.data, data)
	if err, ok := f.errFor[token]; ok {
		return err
	}
	return nil
}

func (f *fakePushSender) sentTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends...)
}

func TestNotificationService_NotifyOtherDevices(t *testing.T) {
	db := openTestDB(t)
	devices := repository.NewDeviceRepository(db, repository.NewClock())
	ctx := context.Background()

	tokenA := "token-a"
	tokenB := "token-b"
	_, err := devices.Upsert(ctx, 1, "phone-1", "Originator", &tokenA)
	require.NoError(t, err)
	_, err = devices.Upsert(ctx, 1, "phone-2", "Other", &tokenB)
	require.NoError(t, err)
	_, err = devices.Upsert(ctx, 1, "phone-3", "No token", nil)
	require.NoError(t, err)

	t.Run("skips originator and tokenless devices", func(t *testing.T) {
		sender := &fakePushSender{}
		svc := NewNotificationService(devices, sender, nil)

		svc.NotifyOtherDevices(ctx, 1, "create", 42, "phone-1")

		assert.Equal(t, []string{"token-b"}, sender.sentTokens())
	})

	t.Run("payload is data-only with resync marker", func(t *testing.T) {
		sender := &fakePushSender{}
		svc := NewNotificationService(devices, sender, nil)

		svc.NotifyOtherDevices(ctx, 1, "update", 42, "phone-1")

		require.Len(t, sender.data, 1)
		data := sender.data[0]
		assert.Equal(t, "ALARM_SYNC_REQUEST", data["type"])
		assert.Equal(t, "update", data["operation"])
		assert.Equal(t, "42", data["entityId"])
		assert.NotEmpty(t, data["timestamp"])
	})

	t.Run("nil sender is a no-op", func(t *testing.T) {
		svc := NewNotificationService(devices, nil, nil)
		svc.NotifyOtherDevices(ctx, 1, "create", 42, "phone-1")
	})

	t.Run("transient failure keeps the device", func(t *testing.T) {
		sender := &fakePushSender{errFor: map[string]error{"token-b": errors.New("unavailable")}}
		svc := NewNotificationService(devices, sender, nil)

		svc.NotifyOtherDevices(ctx, 1, "create", 42, "phone-1")

		kept, err := devices.Find(ctx, 1, "phone-2")
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})

	t.Run("invalid token prunes the device", func(t *testing.T) {
		sender := &fakePushSender{errFor: map[string]error{"token-b": ErrInvalidToken}}
		svc := NewNotificationService(devices, sender, nil)

		svc.NotifyOtherDevices(ctx, 1, "create", 42, "phone-1")

		pruned, err := devices.Find(ctx, 1, "phone-2")
		require.NoError(t, err)
		assert.Nil(t, pruned)

		others, err := devices.ListByUser(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, others, 2)
	})
}
