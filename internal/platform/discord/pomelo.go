package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/tdh8316/handlescout/internal/check"
	"github.com/tdh8316/handlescout/internal/httpx"
)

const pomeloRetryFallback = 60 * time.Second

// Pomelo checks new-style handles. No credential is needed.
type Pomelo struct {
	base
}

func NewPomelo(clients httpx.Source, userAgent string) *Pomelo {
	return &Pomelo{base: newBase(clients, userAgent)}
}

// WithBaseURL points the adapter at another API root.
func (p *Pomelo) WithBaseURL(u string) *Pomelo {
	p.baseURL = u
	return p
}

func (p *Pomelo) Name() string { return "discord" }

func (p *Pomelo) Probe(ctx context.Context, candidate string, proxy *url.URL, trace check.Tracer) (check.Outcome, error) {
	client, err := p.clients.For(proxy)
	if err != nil {
		return check.Outcome{}, err
	}

	payload, err := json.Marshal(map[string]string{"username": candidate})
	if err != nil {
		return check.Outcome{}, errors.Wrap(err, "marshal payload")
	}
	req, err := httpx.NewRequest(ctx, http.MethodPost, p.baseURL+pomeloPath, bytes.NewReader(payload), p.userAgent)
	if err != nil {
		return check.Outcome{}, err
	}
	p.setHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return check.Outcome{}, errors.Wrap(err, "username attempt")
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
		taken := gjson.GetBytes(body, "taken")
		// A missing field is read as taken.
		if !taken.Exists() || taken.Bool() {
			return check.Outcome{Verdict: check.Taken}, nil
		}
		return check.Outcome{Verdict: check.Available}, nil

	case http.StatusTooManyRequests:
		return check.Outcome{
			Verdict:    check.RateLimited,
			RetryAfter: httpx.RetryAfter(resp.Header, pomeloRetryFallback),
		}, nil

	case http.StatusUnauthorized, http.StatusForbidden:
		return check.Outcome{Verdict: check.AuthError, Detail: "Invalid token"}, nil

	default:
		return check.Outcome{Verdict: check.TransientError, Detail: fmt.Sprintf("Status %d", resp.StatusCode)}, nil
	}
}
