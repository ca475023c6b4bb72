package session

import (
	"net/url"
	"strings"
)

// MagicLinkTokens is the token pair the identity provider appends to the
// redirect URL fragment when a magic link is followed.
type MagicLinkTokens struct {
	AccessToken  string
	RefreshToken string
}

// ConsumeFragment extracts the magic link token pair from a redirect URL.
// Hash based routing produces two fragment shapes in the wild:
//
//	https://portal/#access_token=...&refresh_token=...
//	https://portal/#/login#access_token=...&refresh_token=...
//
// Both are handled. The second return value is the URL with the token
// fragment stripped, safe to show or navigate to; ok is false when no
// complete token pair is present.
func ConsumeFragment(rawURL string) (MagicLinkTokens, string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return MagicLinkTokens{}, rawURL, false
	}

	fragment := u.Fragment
	route := ""

	// Doubled fragment: a route part before a second '#'.
	if idx := strings.Index(fragment, "#"); idx >= 0 {
		route, fragment = fragment[:idx], fragment[idx+1:]
	}

	params, err := url.ParseQuery(fragment)
	if err != nil {
		return MagicLinkTokens{}, rawURL, false
	}

	tokens := MagicLinkTokens{
		AccessToken:  params.Get("access_token"),
		RefreshToken: params.Get("refresh_token"),
	}

	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return MagicLinkTokens{}, rawURL, false
	}

	u.Fragment = route

	return tokens, u.String(), true
}
