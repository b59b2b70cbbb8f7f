// Package roblox checks handles against the anonymous bulk username lookup.
package roblox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/tdh8316/handlescout/internal/check"
	"github.com/tdh8316/handlescout/internal/httpx"
)

const (
	DefaultBaseURL = "https://users.roblox.com"

	lookupPath        = "/v1/usernames/users"
	rateLimitFallback = 5 * time.Second
	maxBodyBytes      = 1 << 20
)

func Defaults() check.Profile {
	return check.Profile{
		Concurrency:       1,
		DirectConcurrency: 1,
		ProbeTimeout:      10 * time.Second,
	}
}

var KnownPairs = []check.KnownPair{
	{Taken: "Roblox", Free: "zq7xv9k2m4w8p1qq"},
}

// Normalize accepts handles made of letters, digits and "_".
func Normalize(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return "", false
		}
	}
	return s, true
}

type Adapter struct {
	clients   httpx.Source
	userAgent string
	baseURL   string
}

func New(clients httpx.Source, userAgent string) *Adapter {
	if userAgent == "" {
		userAgent = httpx.DefaultUserAgent
	}
	return &Adapter{clients: clients, userAgent: userAgent, baseURL: DefaultBaseURL}
}

// WithBaseURL points the adapter at another host.
func (a *Adapter) WithBaseURL(u string) *Adapter {
	a.baseURL = u
	return a
}

func (a *Adapter) Name() string { return "roblox" }

type lookupRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

func (a *Adapter) Probe(ctx context.Context, candidate string, proxy *url.URL, trace check.Tracer) (check.Outcome, error) {
	client, err := a.clients.For(proxy)
	if err != nil {
		return check.Outcome{}, err
	}

	payload, err := json.Marshal(lookupRequest{Usernames: []string{candidate}})
	if err != nil {
		return check.Outcome{}, errors.Wrap(err, "marshal payload")
	}
	req, err := httpx.NewRequest(ctx, http.MethodPost, a.baseURL+lookupPath, bytes.NewReader(payload), a.userAgent)
	if err != nil {
		return check.Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return check.Outcome{}, errors.Wrap(err, "username lookup")
	}
	defer resp.Body.Close()

	body, err := httpx.ReadBody(resp.Body, maxBodyBytes)
	if err != nil {
		return check.Outcome{}, errors.Wrap(err, "read response")
	}
	trace("Checking: %s", candidate)
	trace("Status Code: %d", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK:
		trace("Response: %s", body)
		if !gjson.ValidBytes(body) {
			return check.Outcome{}, errors.New("malformed JSON response")
		}
		user := gjson.GetBytes(body, "data.0")
		if id := user.Get("id"); id.Exists() && id.Type != gjson.Null {
			return check.Outcome{
				Verdict: check.Taken,
				Detail:  fmt.Sprintf("ID: %s, Display: %s", id.String(), user.Get("displayName").String()),
			}, nil
		}
		return check.Outcome{Verdict: check.Available}, nil

	case http.StatusTooManyRequests:
		return check.Outcome{
			Verdict:    check.RateLimited,
			RetryAfter: httpx.RetryAfter(resp.Header, rateLimitFallback),
		}, nil

	case http.StatusUnauthorized, http.StatusForbidden:
		return check.Outcome{Verdict: check.AuthError, Detail: fmt.Sprintf("Status %d", resp.StatusCode)}, nil

	default:
		return check.Outcome{Verdict: check.TransientError, Detail: fmt.Sprintf("Status %d", resp.StatusCode)}, nil
	}
}
