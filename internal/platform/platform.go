// Package platform maps platform names to their check adapters, pacing
// profiles and self-test handles.
package platform

import (
	"sort"
	"strings"

	"github.com/tdh8316/handlescout/internal/check"
	"github.com/tdh8316/handlescout/internal/httpx"
	"github.com/tdh8316/handlescout/internal/platform/discord"
	"github.com/tdh8316/handlescout/internal/platform/instagram"
	"github.com/tdh8316/handlescout/internal/platform/roblox"
)

// Credential names a secret a platform needs before it can run.
type Credential string

const (
	CredentialNone      Credential = ""
	CredentialToken     Credential = "discord token"
	CredentialSessionID Credential = "instagram sessionid"
)

// Settings carry what adapters need beyond an HTTP client source.
type Settings struct {
	UserAgent string
	Token     string
	SessionID string
	Rules     instagram.Rules
	// BaseURL replaces the platform's API root, e.g. for a mirror.
	BaseURL string
}

// Has reports whether s supplies c.
func (s Settings) Has(c Credential) bool {
	switch c {
	case CredentialToken:
		return strings.TrimSpace(s.Token) != ""
	case CredentialSessionID:
		return strings.TrimSpace(s.SessionID) != ""
	default:
		return true
	}
}

type Entry struct {
	Name       string
	Display    string
	Profile    check.Profile
	KnownPairs []check.KnownPair
	Credential Credential
	// ProfileURL renders the public page of a handle, used in notifications.
	ProfileURL func(candidate string) string
	// Normalize cleans one input line; false drops it.
	Normalize func(line string) (string, bool)

	build func(httpx.Source, Settings) check.Adapter
}

// New builds the adapter. The caller is expected to have checked the
// credential with Settings.Has.
func (e Entry) New(clients httpx.Source, s Settings) check.Adapter {
	return e.build(clients, s)
}

// Entries is keyed by lowercase platform name.
var Entries = map[string]Entry{
	"discord": {
		Name:       "discord",
		Display:    "Discord",
		Profile:    discord.Defaults(),
		KnownPairs: discord.KnownPairs,
		ProfileURL: func(string) string { return "https://discord.com/app" },
		Normalize:  trimmed,
		build: func(c httpx.Source, s Settings) check.Adapter {
			a := discord.NewPomelo(c, s.UserAgent)
			if s.BaseURL != "" {
				a.WithBaseURL(s.BaseURL)
			}
			return a
		},
	},
	"discord-legacy": {
		Name:       "discord-legacy",
		Display:    "Discord",
		Profile:    discord.Defaults(),
		Credential: CredentialToken,
		ProfileURL: func(string) string { return "https://discord.com/app" },
		Normalize:  trimmed,
		build: func(c httpx.Source, s Settings) check.Adapter {
			a := discord.NewLegacy(c, s.UserAgent, s.Token)
			if s.BaseURL != "" {
				a.WithBaseURL(s.BaseURL)
			}
			return a
		},
	},
	"instagram": {
		Name:       "instagram",
		Display:    "Instagram",
		Profile:    instagram.Defaults(),
		KnownPairs: instagram.KnownPairs,
		Credential: CredentialSessionID,
		ProfileURL: func(c string) string { return instagram.DefaultBaseURL + "/" + c + "/" },
		Normalize:  instagram.Normalize,
		build: func(c httpx.Source, s Settings) check.Adapter {
			a := instagram.New(c, s.UserAgent, s.SessionID, s.Rules)
			if s.BaseURL != "" {
				a.WithBaseURL(s.BaseURL)
			}
			return a
		},
	},
	"roblox": {
		Name:       "roblox",
		Display:    "Roblox",
		Profile:    roblox.Defaults(),
		KnownPairs: roblox.KnownPairs,
		ProfileURL: func(c string) string { return "https://www.roblox.com/search/users?keyword=" + c },
		Normalize:  roblox.Normalize,
		build: func(c httpx.Source, s Settings) check.Adapter {
			a := roblox.New(c, s.UserAgent)
			if s.BaseURL != "" {
				a.WithBaseURL(s.BaseURL)
			}
			return a
		},
	},
}

func trimmed(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Lookup is case-insensitive.
func Lookup(name string) (Entry, bool) {
	e, ok := Entries[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

func Names() []string {
	names := make([]string, 0, len(Entries))
	for n := range Entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
