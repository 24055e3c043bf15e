package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveMessage(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-client.Send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message queued for connection %s", client.ID)
		return WSMessage{}
	}
}

func assertNoMessage(t *testing.T, client *WSClient) {
	t.Helper()
	select {
	case data := <-client.Send:
		t.Fatalf("unexpected message queued for connection %s: %s", client.ID, data)
	default:
	}
}

func TestWebSocketHub_ConnectDisconnect(t *testing.T) {
	hub := NewWebSocketHub()

	c1 := hub.NewClient("conn-1", 1, "phone-1", nil)
	c2 := hub.NewClient("conn-2", 1, "phone-2", nil)
	c3 := hub.NewClient("conn-3", 2, "phone-3", nil)

	hub.Connect(c1)
	hub.Connect(c2)
	hub.Connect(c3)

	assert.Equal(t, 3, hub.ConnectionCount())
	assert.Equal(t, 2, hub.UserConnectionCount(1))
	assert.Equal(t, 1, hub.UserConnectionCount(2))

	hub.Disconnect("conn-1")
	assert.Equal(t, 2, hub.ConnectionCount())
	assert.Equal(t, 1, hub.UserConnectionCount(1))

	t.Run("disconnecting twice is a no-op", func(t *testing.T) {
		hub.Disconnect("conn-1")
		assert.Equal(t, 2, hub.ConnectionCount())
	})

	t.Run("last disconnect drops the user entry", func(t *testing.T) {
		hub.Disconnect("conn-2")
		assert.Equal(t, 0, hub.UserConnectionCount(1))
	})
}

func TestWebSocketHub_EmitToUser(t *testing.T) {
	hub := NewWebSocketHub()

	originator := hub.NewClient("conn-1", 1, "phone-1", nil)
	sibling := hub.NewClient("conn-2", 1, "phone-2", nil)
	stranger := hub.NewClient("conn-3", 2, "phone-3", nil)

	hub.Connect(originator)
	hub.Connect(sibling)
	hub.Connect(stranger)

	t.Run("delivers to other connections of the same user", func(t *testing.T) {
		sent := hub.EmitToUser(1, EventAlarmCreated, map[string]int{"id": 42}, "conn-1")
		assert.Equal(t, 1, sent)

		msg := receiveMessage(t, sibling)
		assert.Equal(t, EventAlarmCreated, msg.Event)

		assertNoMessage(t, originator)
		assertNoMessage(t, stranger)
	})

	t.Run("no-op when only the originator is connected", func(t *testing.T) {
		hub.Disconnect("conn-2")
		sent := hub.EmitToUser(1, EventAlarmUpdated, nil, "conn-1")
		assert.Equal(t, 0, sent)
		assertNoMessage(t, originator)
	})

	t.Run("no-op for a user with no connections", func(t *testing.T) {
		sent := hub.EmitToUser(99, EventAlarmDeleted, nil, "")
		assert.Equal(t, 0, sent)
	})

	t.Run("empty exclusion delivers to every connection", func(t *testing.T) {
		sent := hub.EmitToUser(1, EventSyncCompleted, nil, "")
		assert.Equal(t, 1, sent)
		msg := receiveMessage(t, originator)
		assert.Equal(t, EventSyncCompleted, msg.Event)
	})
}

func TestWebSocketHub_PayloadRoundTrip(t *testing.T) {
	hub := NewWebSocketHub()
	client := hub.NewClient("conn-1", 1, "phone-1", nil)
	hub.Connect(client)

	hub.EmitToUser(1, EventSyncCompleted, map[string]interface{}{
		"deviceId": "phone-2",
		"count":    3,
	}, "")

	msg := receiveMessage(t, client)
	assert.Equal(t, EventSyncCompleted, msg.Event)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "phone-2", payload["deviceId"])
	assert.Equal(t, float64(3), payload["count"])
}
