package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/tdh8316/handlescout/internal/check"
	"github.com/tdh8316/handlescout/internal/httpx"
)

const legacyRetryFallback = 5 * time.Second

// Legacy checks name#discriminator pairs by attempting to change the
// authenticated account's profile to them.
type Legacy struct {
	base
	token string
}

func NewLegacy(clients httpx.Source, userAgent, token string) *Legacy {
	return &Legacy{base: newBase(clients, userAgent), token: token}
}

// WithBaseURL points the adapter at another API root.
func (l *Legacy) WithBaseURL(u string) *Legacy {
	l.baseURL = u
	return l
}

func (l *Legacy) Name() string { return "discord-legacy" }

// SplitTag splits "name#1234" into its parts.
func SplitTag(candidate string) (name, discriminator string, ok bool) {
	name, discriminator, ok = strings.Cut(candidate, "#")
	if !ok || name == "" || discriminator == "" {
		return "", "", false
	}
	return name, discriminator, true
}

func (l *Legacy) Probe(ctx context.Context, candidate string, proxy *url.URL, trace check.Tracer) (check.Outcome, error) {
	name, disc, ok := SplitTag(candidate)
	if !ok {
		return check.Outcome{Verdict: check.TransientError, Detail: "Legacy mode requires format username#1234"}, nil
	}

	client, err := l.clients.For(proxy)
	if err != nil {
		return check.Outcome{}, err
	}

	payload, err := json.Marshal(map[string]string{"username": name, "discriminator": disc})
	if err != nil {
		return check.Outcome{}, errors.Wrap(err, "marshal payload")
	}
	req, err := httpx.NewRequest(ctx, http.MethodPatch, l.baseURL+legacyPath, bytes.NewReader(payload), l.userAgent)
	if err != nil {
		return check.Outcome{}, err
	}
	l.setHeaders(req)
	req.Header.Set("Authorization", l.token)

	resp, err := client.Do(req)
	if err != nil {
		return check.Outcome{}, errors.Wrap(err, "profile change")
	}
	defer resp.Body.Close()

	body, err := httpx.ReadBody(resp.Body, maxBodyBytes)
	if err != nil {
		return check.Outcome{}, errors.Wrap(err, "read response")
	}
	trace("Checking: %s#%s", name, disc)
	trace("Status Code: %d", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK:
		return check.Outcome{Verdict: check.Available}, nil

	case http.StatusBadRequest:
		trace("Response: %s", body)
		if !gjson.ValidBytes(body) {
			return check.Outcome{}, errors.New("malformed JSON response")
		}
		errs := gjson.GetBytes(body, "errors")
		if errs.Get("username").Exists() {
			return check.Outcome{Verdict: check.Taken, Detail: "taken/invalid"}, nil
		}
		return check.Outcome{Verdict: check.Unclear, Detail: "rejected: " + fieldNames(errs)}, nil

	case http.StatusTooManyRequests:
		return check.Outcome{
			Verdict:    check.RateLimited,
			RetryAfter: httpx.RetryAfter(resp.Header, legacyRetryFallback),
		}, nil

	case http.StatusUnauthorized, http.StatusForbidden:
		return check.Outcome{Verdict: check.AuthError, Detail: "Invalid token"}, nil

	default:
		return check.Outcome{Verdict: check.TransientError, Detail: fmt.Sprintf("Status %d", resp.StatusCode)}, nil
	}
}

func fieldNames(errs gjson.Result) string {
	var keys []string
	errs.ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	if len(keys) == 0 {
		return "no field errors"
	}
	return strings.Join(keys, ", ")
}
