package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cs2kz-api/cs2kz-api/internal/ingest"
	"github.com/cs2kz-api/cs2kz-api/internal/models"

	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
)

// MessageRouter dispatches a decoded frame from an already-handshaken
// ServerConnection to the handler for its event, and reports the event name
// and payload (if any) to reply with.
type MessageRouter struct {
	db       *kzdb.Database
	ingestor *ingest.Ingest
}

// NewMessageRouter constructs a MessageRouter.
func NewMessageRouter(db *kzdb.Database, ingestor *ingest.Ingest) *MessageRouter {
	return &MessageRouter{db: db, ingestor: ingestor}
}

// Handle dispatches one frame. A non-nil error means the caller should send
// an error frame and continue; the connection is never closed for this
// reason alone (spec.md's "decode error / handler error: send error,
// continue"). An empty event string means no reply is warranted.
func (r *MessageRouter) Handle(ctx context.Context, conn *ServerConnection, env Envelope) (event string, payload any, err error) {
	switch env.Event {
	case EventMapChange:
		var p MapChangePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return "", nil, err
		}
		conn.setMap(p.NewMap)
		return "", nil, nil

	case EventWantMapInfo:
		var p WantMapInfoPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return "", nil, err
		}
		m, err := r.db.MapByIdentifier(ctx, p.Map)
		if errors.Is(err, kzdb.ErrNotFound) {
			return EventMapInfo, MapInfoPayload{Map: nil}, nil
		}
		if err != nil {
			return "", nil, err
		}
		return EventMapInfo, MapInfoPayload{Map: m}, nil

	case EventPlayerJoin:
		var p PlayerJoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return "", nil, err
		}
		if err := r.db.UpsertPlayer(ctx, p.ID, p.Name); err != nil {
			return "", nil, err
		}
		banned, err := r.db.IsPlayerBanned(ctx, p.ID)
		if err != nil {
			return "", nil, err
		}
		prefs, err := r.db.PlayerPreferences(ctx, p.ID)
		if errors.Is(err, kzdb.ErrNotFound) {
			prefs = models.Preferences{}
		} else if err != nil {
			return "", nil, err
		}
		return EventPlayerJoinAck, PlayerJoinAckPayload{IsBanned: banned, Preferences: prefs}, nil

	case EventPlayerLeave:
		var p PlayerLeavePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return "", nil, err
		}
		if err := r.db.UpsertPlayerPreferences(ctx, p.ID, p.Preferences); err != nil {
			return "", nil, err
		}
		return "", nil, nil

	case EventWantPreferences:
		var p WantPreferencesPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return "", nil, err
		}
		prefs, err := r.db.PlayerPreferences(ctx, p.PlayerID)
		if errors.Is(err, kzdb.ErrNotFound) {
			return EventPlayerPreferences, PlayerPreferencesPayload{Preferences: nil}, nil
		}
		if err != nil {
			return "", nil, err
		}
		return EventPlayerPreferences, PlayerPreferencesPayload{Preferences: prefs}, nil

	case EventWantWorldRecords:
		var p WantWorldRecordsPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return "", nil, err
		}
		filterID, err := r.db.PrimaryFilterForMap(ctx, p.MapID)
		if errors.Is(err, kzdb.ErrNotFound) {
			return EventWorldRecords, WorldRecordsPayload{Records: nil}, nil
		}
		if err != nil {
			return "", nil, err
		}
		rows, err := r.db.WorldRecords(ctx, filterID)
		if err != nil {
			return "", nil, err
		}
		return EventWorldRecords, WorldRecordsPayload{Records: toRecordEntries(rows)}, nil

	case EventWantPlayerRecords:
		var p WantPlayerRecordsPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return "", nil, err
		}
		filterID, err := r.db.PrimaryFilterForMap(ctx, p.MapID)
		if errors.Is(err, kzdb.ErrNotFound) {
			return EventPlayerRecords, PlayerRecordsPayload{Records: nil}, nil
		}
		if err != nil {
			return "", nil, err
		}
		rows, err := r.db.PlayerRecords(ctx, filterID, p.PlayerID)
		if err != nil {
			return "", nil, err
		}
		return EventPlayerRecords, PlayerRecordsPayload{Records: toRecordEntries(rows)}, nil

	case EventNewRecord:
		var p NewRecordPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return "", nil, err
		}
		result, err := r.ingestor.Submit(ctx, ingest.Submission{
			PlayerID:        p.PlayerID,
			ServerID:        conn.serverID,
			FilterID:        p.FilterID,
			Styles:          p.Styles,
			Teleports:       p.Teleports,
			Time:            p.Time,
			PluginVersionID: conn.pluginVersionID,
		})
		if err != nil {
			return "", nil, err
		}
		return EventNewRecordAck, NewRecordAckPayload{
			RecordID:           result.RecordID,
			PlayerRating:       result.PlayerRating,
			IsFirstNubRecord:   result.IsFirstNubRecord,
			NubRank:            result.NubRank,
			NubPoints:          result.NubPoints,
			NubLeaderboardSize: result.NubLeaderboardSize,
			IsFirstProRecord:   result.IsFirstProRecord,
			ProRank:            result.ProRank,
			ProPoints:          result.ProPoints,
			ProLeaderboardSize: result.ProLeaderboardSize,
		}, nil

	default:
		return "", nil, fmt.Errorf("unknown event %q", env.Event)
	}
}

func toRecordEntries(rows []kzdb.RecordSummary) []RecordEntry {
	out := make([]RecordEntry, len(rows))
	for i, r := range rows {
		out[i] = RecordEntry{PlayerID: r.PlayerID, Time: r.Time, Teleports: r.Teleports, Points: r.Points}
	}
	return out
}
