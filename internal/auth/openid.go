// This file implements verification against Steam's OpenID 2.0 provider,
// the upstream identity source for browser sessions. Steam never adopted
// OIDC; the protocol here is the older OpenID 2.0 indirect identifier
// exchange, verified with a single check_authentication callback.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cs2kz-api/cs2kz-api/internal/apperr"
)

const (
	steamOpenIDEndpoint = "https://steamcommunity.com/openid/login"
	claimedIDPrefix     = "https://steamcommunity.com/openid/id/"
)

// SteamOpenID builds login redirects and verifies callbacks against Steam's
// OpenID 2.0 provider.
type SteamOpenID struct {
	realm      string
	returnURL  string
	httpClient *http.Client
}

// NewSteamOpenID constructs a verifier. realm and returnURL are this
// service's own origin and callback path; Steam echoes them back on the
// callback and check_authentication confirms they weren't tampered with.
func NewSteamOpenID(realm, returnURL string) *SteamOpenID {
	return &SteamOpenID{realm: realm, returnURL: returnURL, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// LoginURL builds the redirect target for GET /auth/web/login: a 303 to
// Steam's identifier-select flow, with redirectTo folded into the return
// URL so the callback can bounce the browser back to where it started.
func (s *SteamOpenID) LoginURL(redirectTo string) string {
	returnTo := s.returnURL
	if redirectTo != "" {
		u, err := url.Parse(s.returnURL)
		if err == nil {
			q := u.Query()
			q.Set("redirect_to", redirectTo)
			u.RawQuery = q.Encode()
			returnTo = u.String()
		}
	}

	q := url.Values{}
	q.Set("openid.ns", "http://specs.openid.net/auth/2.0")
	q.Set("openid.mode", "checkid_setup")
	q.Set("openid.return_to", returnTo)
	q.Set("openid.realm", s.realm)
	q.Set("openid.identity", "http://specs.openid.net/auth/2.0/identifier_select")
	q.Set("openid.claimed_id", "http://specs.openid.net/auth/2.0/identifier_select")
	return steamOpenIDEndpoint + "?" + q.Encode()
}

// Verify checks a callback's query parameters against Steam via
// check_authentication and extracts the authenticated SteamID64 from the
// claimed_id on success.
func (s *SteamOpenID) Verify(ctx context.Context, query url.Values) (steamID int64, err error) {
	claimedID := query.Get("openid.claimed_id")
	if claimedID == "" || !strings.HasPrefix(claimedID, claimedIDPrefix) {
		return 0, apperr.AuthInvalid("missing or malformed openid.claimed_id")
	}

	verify := url.Values{}
	for k, v := range query {
		if len(v) > 0 {
			verify.Set(k, v[0])
		}
	}
	verify.Set("openid.mode", "check_authentication")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, steamOpenIDEndpoint, strings.NewReader(verify.Encode()))
	if err != nil {
		return 0, apperr.Internal("building openid verification request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, apperr.Upstream("steam openid provider", err)
	}
	defer resp.Body.Close()

	body := make([]byte, 4096)
	n, _ := resp.Body.Read(body)
	if !strings.Contains(string(body[:n]), "is_valid:true") {
		return 0, apperr.AuthInvalid("steam openid verification rejected")
	}

	idStr := strings.TrimPrefix(claimedID, claimedIDPrefix)
	steamID, err = strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, apperr.AuthInvalid(fmt.Sprintf("malformed steam id in claimed_id: %s", idStr))
	}
	return steamID, nil
}
