// Package steamapi is the thin, opaque port onto Steam's Web API that the
// browser auth callback uses to resolve a profile right after OpenID
// verification succeeds. It is deliberately narrow: one call, one shape.
package steamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cs2kz-api/cs2kz-api/internal/apperr"
)

const getPlayerSummariesURL = "https://api.steampowered.com/ISteamUser/GetPlayerSummaries/v0002"

// User is the subset of a Steam profile the rest of the API cares about.
type User struct {
	SteamID    int64
	Username   string
	RealName   string
	Country    string
	ProfileURL string
	AvatarURL  string
}

// Client fetches public profile data from Steam's Web API.
type Client struct {
	apiKey     string
	httpClient *http.Client
}

// New constructs a Client bound to a Steam Web API key.
func New(apiKey string) *Client {
	return &Client{apiKey: apiKey, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

type summariesResponse struct {
	Response struct {
		Players []struct {
			SteamID        string `json:"steamid"`
			PersonaName    string `json:"personaname"`
			RealName       string `json:"realname"`
			LocCountryCode string `json:"loccountrycode"`
			ProfileURL     string `json:"profileurl"`
			Avatar         string `json:"avatar"`
		} `json:"players"`
	} `json:"response"`
}

// FetchUser resolves a Steam64 id to a public profile. Any failure to reach
// or parse Steam's response is surfaced as an Upstream error.
func (c *Client) FetchUser(ctx context.Context, steamID int64) (*User, error) {
	u, _ := url.Parse(getPlayerSummariesURL)
	q := u.Query()
	q.Set("key", c.apiKey)
	q.Set("steamids", fmt.Sprintf("%d", steamID))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.Internal("building steam api request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Upstream("steam web api", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream("steam web api", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var parsed summariesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.Upstream("steam web api", err)
	}
	if len(parsed.Response.Players) == 0 {
		return nil, apperr.Upstream("steam web api", fmt.Errorf("no player returned for steamid %d", steamID))
	}

	p := parsed.Response.Players[0]
	return &User{
		SteamID:    steamID,
		Username:   p.PersonaName,
		RealName:   p.RealName,
		Country:    p.LocCountryCode,
		ProfileURL: p.ProfileURL,
		AvatarURL:  p.Avatar,
	}, nil
}
