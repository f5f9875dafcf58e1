package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		id      uint32
		event   string
		payload any
	}{
		{"hello-ack without map", 7, EventHelloAck, HelloAckPayload{HeartbeatInterval: 15, Map: nil}},
		{"player-join-ack", 42, EventPlayerJoinAck, PlayerJoinAckPayload{IsBanned: true, Preferences: map[string]any{"hud": "minimal"}}},
		{"new-record-ack", 9001, EventNewRecordAck, NewRecordAckPayload{RecordID: 5, PlayerRating: 0.87, NubLeaderboardSize: 3}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := encodeEnvelope(tc.id, tc.event, tc.payload)
			require.NoError(t, err)

			env, err := decodeEnvelope(frame)
			require.NoError(t, err)

			assert.Equal(t, tc.id, env.ID)
			assert.Equal(t, tc.event, env.Event)
		})
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := decodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestErrorFrameCarriesMessage(t *testing.T) {
	frame := errorFrame("boom")

	env, err := decodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), env.ID)
	assert.Equal(t, EventError, env.Event)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "boom", payload.Message)
}
