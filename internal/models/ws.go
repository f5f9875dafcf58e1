package models

import "time"

// Preferences is a player's opaque, client-defined settings blob: the API
// persists and returns it verbatim, never interpreting its keys.
type Preferences map[string]any

// MapDetails is the information the hub can tell a game server about a map,
// in reply to want-map-info or folded into hello-ack.
type MapDetails struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
}

// ServerAddress is the network location of an approved game server, the unit
// the A2S poller sweeps.
type ServerAddress struct {
	ID   int64
	Host string
	Port int
}

// A2SInfo is the last known live state of a game server, as answered by an
// A2S_INFO query against its UDP address. The query itself is an external
// collaborator; this is just the shape the API caches and serves.
type A2SInfo struct {
	ServerID   int64     `json:"server_id"`
	Name       string    `json:"name"`
	Map        string    `json:"map"`
	Players    int       `json:"players"`
	MaxPlayers int       `json:"max_players"`
	UpdatedAt  time.Time `json:"updated_at"`
}
