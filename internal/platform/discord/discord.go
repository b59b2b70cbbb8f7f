// Package discord checks Discord handles: new-style unique usernames
// through the anonymous availability endpoint, and legacy name#discriminator
// pairs through an authenticated profile change attempt.
package discord

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tdh8316/handlescout/internal/check"
	"github.com/tdh8316/handlescout/internal/httpx"
)

const (
	DefaultBaseURL = "https://discord.com/api/v9"

	pomeloPath = "/unique-username/username-attempt-unauthed"
	legacyPath = "/users/@me"

	maxBodyBytes = 1 << 20
)

// Defaults is the pacing used for both check modes.
func Defaults() check.Profile {
	return check.Profile{
		Concurrency:       5,
		DirectConcurrency: 1,
		Delay:             1 * time.Second,
		DirectDelay:       3 * time.Second,
		ProbeTimeout:      15 * time.Second,
	}
}

// KnownPairs feed the self-test for new-style handles.
var KnownPairs = []check.KnownPair{
	{Taken: "discord", Free: "zq7xv9k2m4w8p1"},
}

type base struct {
	clients   httpx.Source
	userAgent string
	baseURL   string
}

func newBase(clients httpx.Source, userAgent string) base {
	if userAgent == "" {
		userAgent = httpx.DefaultUserAgent
	}
	return base{clients: clients, userAgent: userAgent, baseURL: DefaultBaseURL}
}

func (b *base) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://discord.com")
	req.Header.Set("Referer", "https://discord.com/channels/@me")
	req.Header.Set("X-Super-Properties", superProperties(b.userAgent))
}

type clientProperties struct {
	OS                     string  `json:"os"`
	Browser                string  `json:"browser"`
	Device                 string  `json:"device"`
	SystemLocale           string  `json:"system_locale"`
	BrowserUserAgent       string  `json:"browser_user_agent"`
	BrowserVersion         string  `json:"browser_version"`
	OSVersion              string  `json:"os_version"`
	Referrer               string  `json:"referrer"`
	ReferringDomain        string  `json:"referring_domain"`
	ReferrerCurrent        string  `json:"referrer_current"`
	ReferringDomainCurrent string  `json:"referring_domain_current"`
	ReleaseChannel         string  `json:"release_channel"`
	ClientBuildNumber      int     `json:"client_build_number"`
	ClientEventSource      *string `json:"client_event_source"`
}

// superProperties is the base64 client fingerprint the web client sends.
func superProperties(userAgent string) string {
	b, _ := json.Marshal(clientProperties{
		OS:                "Windows",
		Browser:           "Chrome",
		SystemLocale:      "en-US",
		BrowserUserAgent:  userAgent,
		BrowserVersion:    "120.0.0.0",
		OSVersion:         "10",
		ReleaseChannel:    "stable",
		ClientBuildNumber: 250710,
	})
	return base64.StdEncoding.EncodeToString(b)
}
