// Package instagram checks handles by fetching the public profile page and
// scoring what it contains. There is no clean API answer; see Classify.
package instagram

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/k0kubun/pp/v3"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"

	"github.com/tdh8316/handlescout/internal/check"
	"github.com/tdh8316/handlescout/internal/httpx"
)

const (
	DefaultBaseURL = "https://www.instagram.com"

	maxBodyBytes = 4 << 20
)

func Defaults() check.Profile {
	return check.Profile{
		Concurrency:       2,
		DirectConcurrency: 2,
		Delay:             2 * time.Second,
		DirectDelay:       2 * time.Second,
		ProbeTimeout:      20 * time.Second,
		Serialize:         true,
	}
}

var KnownPairs = []check.KnownPair{
	{Taken: "instagram", Free: "zq7xv9k2m4w8p1qq"},
}

// Normalize lowercases a handle and drops a leading "@". Handles may hold
// letters, digits, "_" and ".".
func Normalize(s string) (string, bool) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "@")
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r != '_' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return "", false
		}
	}
	return s, true
}

type Adapter struct {
	clients   httpx.Source
	userAgent string
	sessionID string
	baseURL   string
	rules     Rules
	dump      *pp.PrettyPrinter
}

func New(clients httpx.Source, userAgent, sessionID string, rules Rules) *Adapter {
	if userAgent == "" {
		userAgent = httpx.DefaultUserAgent
	}
	dump := pp.New()
	dump.SetColoringEnabled(false)
	return &Adapter{
		clients:   clients,
		userAgent: userAgent,
		sessionID: sessionID,
		baseURL:   DefaultBaseURL,
		rules:     rules,
		dump:      dump,
	}
}

// WithBaseURL points the adapter at another host.
func (a *Adapter) WithBaseURL(u string) *Adapter {
	a.baseURL = u
	return a
}

func (a *Adapter) Name() string { return "instagram" }

func (a *Adapter) Probe(ctx context.Context, candidate string, proxy *url.URL, trace check.Tracer) (check.Outcome, error) {
	client, err := a.clients.For(proxy)
	if err != nil {
		return check.Outcome{}, err
	}

	profileURL := a.baseURL + "/" + url.PathEscape(candidate) + "/"
	req, err := httpx.NewRequest(ctx, http.MethodGet, profileURL, nil, a.userAgent)
	if err != nil {
		return check.Outcome{}, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if a.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: a.sessionID})
	}

	resp, err := client.Do(req)
	if err != nil {
		return check.Outcome{}, errors.Wrap(err, "profile request")
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return check.Outcome{}, errors.Wrap(err, "could not read response")
	}

	page := Page{
		Status:     resp.StatusCode,
		RequestURL: profileURL,
		FinalURL:   resp.Request.URL.String(),
		Body:       body,
		RetryAfter: httpx.RetryAfter(resp.Header, rateLimitFallback),
	}
	trace("Checking: %s", candidate)
	trace("Status Code: %d", page.Status)
	trace("Final URL: %s", page.FinalURL)
	trace("Body Length: %d chars", len(page.Body))

	as := Classify(page, candidate, a.rules)
	for _, n := range as.Notes {
		trace("%s", n)
	}
	if as.Outcome.Verdict == check.Unclear {
		trace("Signals: %s", a.dump.Sprint(as.Signals))
		trace("URL for manual check: %s", profileURL)
	}
	return as.Outcome, nil
}

func decodeBody(resp *http.Response) (string, error) {
	r, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
