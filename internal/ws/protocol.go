// Package ws implements the game-server WebSocket protocol: the hub that
// accepts authenticated upgrades, one ServerConnection per socket, and the
// JSON message framing and routing described for the /auth/cs2 endpoint.
package ws

import "encoding/json"

// Event names. Server-to-API events are requests; API-to-server events are
// either direct replies (same id as the request they answer) or, for
// error, spontaneous (id 0).
const (
	EventHello              = "hello"
	EventHelloAck           = "hello-ack"
	EventMapChange          = "map-change"
	EventWantMapInfo        = "want-map-info"
	EventMapInfo            = "map-info"
	EventPlayerJoin         = "player-join"
	EventPlayerJoinAck      = "player-join-ack"
	EventPlayerLeave        = "player-leave"
	EventWantPreferences    = "want-preferences"
	EventPlayerPreferences  = "player-preferences"
	EventWantWorldRecords   = "want-world-records"
	EventWorldRecords       = "world-records"
	EventWantPlayerRecords  = "want-player-records"
	EventPlayerRecords      = "player-records"
	EventNewRecord          = "new-record"
	EventNewRecordAck       = "new-record-ack"
	EventError              = "error"
)

// Envelope is the wire shape of every frame: an id chosen by the sender
// (replies echo it back so the sender can correlate), an event tag, and a
// data object whose shape the event tag discriminates.
type Envelope struct {
	ID    uint32          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// decodeEnvelope parses one inbound text frame.
func decodeEnvelope(raw []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(raw, &e)
	return e, err
}

// encodeEnvelope serializes a reply or spontaneous message with the given
// id and event tag.
func encodeEnvelope(id uint32, event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{ID: id, Event: event, Data: data})
}

// errorFrame builds the spontaneous id=0 error message sent on any decode
// or handler failure.
func errorFrame(message string) []byte {
	frame, err := encodeEnvelope(0, EventError, ErrorPayload{Message: message})
	if err != nil {
		// ErrorPayload always marshals; this is unreachable.
		return []byte(`{"id":0,"event":"error","data":{"message":"internal error"}}`)
	}
	return frame
}
