package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_Fields(t *testing.T) {
	type LinkedData struct {
		LocalID      string `json:"local_id"`
		RemoteLineID int64  `json:"remote_line_id"`
	}

	data := LinkedData{LocalID: "li-1", RemoteLineID: 42}
	event, err := NewEvent("cart.item.linked", "user-1", "cart", "cartsync", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "cart.item.linked", event.EventType)
	assert.Equal(t, "user-1", event.AggregateID)
	assert.Equal(t, "cart", event.AggregateType)
	assert.Equal(t, "cartsync", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var roundTripped LinkedData
	require.NoError(t, json.Unmarshal(event.Data, &roundTripped))
	assert.Equal(t, data, roundTripped)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("cart.updated", "user-1", "cart", "cartsync", make(chan int))
	require.Error(t, err)
}

func TestEvent_MarshalUnmarshal(t *testing.T) {
	original, err := NewEvent("cart.reconciled", "user-2", "cart", "cartsync", map[string]int{"items": 3})
	require.NoError(t, err)
	original.WithCorrelationID("corr-abc")

	bytes, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(bytes)
	require.NoError(t, err)

	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, original.CorrelationID, restored.CorrelationID)
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

func TestEvent_UnmarshalData(t *testing.T) {
	event, err := NewEvent("cart.updated", "user-3", "cart", "cartsync", map[string]any{"item_count": 2})
	require.NoError(t, err)

	var payload struct {
		ItemCount int `json:"item_count"`
	}
	require.NoError(t, event.UnmarshalData(&payload))
	assert.Equal(t, 2, payload.ItemCount)
}
