package ws

import "github.com/cs2kz-api/cs2kz-api/internal/models"

// HelloPlayer is one entry of hello's players map, keyed by steam id.
type HelloPlayer struct {
	Name string `json:"name"`
}

// HelloPayload is the handshake message every server must send first.
type HelloPayload struct {
	PluginVersion string                 `json:"plugin_version"`
	Map           string                 `json:"map"`
	Players       map[string]HelloPlayer `json:"players"`
}

// HelloAckPayload is the API's reply to Hello.
type HelloAckPayload struct {
	HeartbeatInterval float64            `json:"heartbeat_interval"`
	Map               *models.MapDetails `json:"map"`
}

// MapChangePayload reports a map change; no reply is sent.
type MapChangePayload struct {
	NewMap string `json:"new_map"`
}

// WantMapInfoPayload asks for a map by id or name.
type WantMapInfoPayload struct {
	Map string `json:"map"`
}

// MapInfoPayload answers WantMapInfo.
type MapInfoPayload struct {
	Map *models.MapDetails `json:"map"`
}

// PlayerJoinPayload reports a player joining the server.
type PlayerJoinPayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
}

// PlayerJoinAckPayload answers PlayerJoin.
type PlayerJoinAckPayload struct {
	IsBanned    bool               `json:"is_banned"`
	Preferences models.Preferences `json:"preferences"`
}

// PlayerLeavePayload reports a player leaving, carrying the preferences the
// server wants persisted.
type PlayerLeavePayload struct {
	ID          int64              `json:"id"`
	Preferences models.Preferences `json:"preferences"`
}

// WantPreferencesPayload asks for a player's stored preferences.
type WantPreferencesPayload struct {
	PlayerID int64 `json:"player_id"`
}

// PlayerPreferencesPayload answers WantPreferences. Preferences is nil if
// none have ever been stored.
type PlayerPreferencesPayload struct {
	Preferences models.Preferences `json:"preferences"`
}

// WantWorldRecordsPayload asks for the top of a map's leaderboard.
type WantWorldRecordsPayload struct {
	MapID int64 `json:"map_id"`
}

// WantPlayerRecordsPayload asks for one player's bests on a map.
type WantPlayerRecordsPayload struct {
	MapID    int64 `json:"map_id"`
	PlayerID int64 `json:"player_id"`
}

// RecordEntry is one row of a records[] listing.
type RecordEntry struct {
	PlayerID  int64   `json:"player_id"`
	Time      float64 `json:"time"`
	Teleports int     `json:"teleports"`
	Points    float64 `json:"points"`
}

// WorldRecordsPayload answers WantWorldRecords.
type WorldRecordsPayload struct {
	Records []RecordEntry `json:"records"`
}

// PlayerRecordsPayload answers WantPlayerRecords.
type PlayerRecordsPayload struct {
	Records []RecordEntry `json:"records"`
}

// NewRecordPayload is a run submission.
type NewRecordPayload struct {
	PlayerID  int64            `json:"player_id"`
	FilterID  int64            `json:"filter_id"`
	Styles    models.StyleSet  `json:"styles"`
	Teleports int              `json:"teleports"`
	Time      float64          `json:"time"`
}

// NewRecordAckPayload answers NewRecord with the computed rank and points.
type NewRecordAckPayload struct {
	RecordID           int64    `json:"record_id"`
	PlayerRating       float64  `json:"player_rating"`
	IsFirstNubRecord   bool     `json:"is_first_nub_record"`
	NubRank            *int     `json:"nub_rank,omitempty"`
	NubPoints          *float64 `json:"nub_points,omitempty"`
	NubLeaderboardSize int      `json:"nub_leaderboard_size"`
	IsFirstProRecord   bool     `json:"is_first_pro_record"`
	ProRank            *int     `json:"pro_rank,omitempty"`
	ProPoints          *float64 `json:"pro_points,omitempty"`
	ProLeaderboardSize int      `json:"pro_leaderboard_size"`
}

// ErrorPayload is the spontaneous id=0 message sent on any protocol or
// processing failure; the server is expected to log and continue.
type ErrorPayload struct {
	Message string `json:"message"`
}
