// Package notify posts available handles to a Discord channel webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tdh8316/handlescout/internal/check"
	"github.com/tdh8316/handlescout/internal/httpx"
)

const (
	colorFound = 3447003
	colorTest  = 5763719
)

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      embedFooter  `json:"footer"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type message struct {
	Embeds []embed `json:"embeds"`
}

// Webhook POSTs embeds with retry and exponential backoff. Posts are paced
// so a burst of hits stays under the channel's rate limit.
type Webhook struct {
	url        string
	client     httpx.Doer
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	log        *logrus.Entry

	// Display is the platform name shown in titles, e.g. "Roblox".
	Display string
	// Link renders the URL put in the embed's link field.
	Link func(candidate string) string
}

type Option func(*Webhook)

// WithRetries sets the maximum number of retries. Default: 3. Negative
// values mean no retries; the first attempt is always made.
func WithRetries(n int) Option {
	return func(w *Webhook) { w.maxRetries = max(n, 0) }
}

// WithBackoff sets the first retry delay; it doubles per attempt.
func WithBackoff(d time.Duration) Option {
	return func(w *Webhook) { w.backoff = d }
}

func WithLimiter(l *rate.Limiter) Option {
	return func(w *Webhook) { w.limiter = l }
}

func WithClient(c httpx.Doer) Option {
	return func(w *Webhook) { w.client = c }
}

func WithLogger(l *logrus.Entry) Option {
	return func(w *Webhook) { w.log = l }
}

func New(url, display string, link func(string) string, opts ...Option) *Webhook {
	w := &Webhook{
		url:        url,
		client:     &http.Client{Timeout: 5 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
		maxRetries: 3,
		backoff:    time.Second,
		log:        logrus.NewEntry(logrus.StandardLogger()),
		Display:    display,
		Link:       link,
	}
	for _, o := range opts {
		o(w)
	}
	w.maxRetries = max(w.maxRetries, 0)
	return w
}

// Hook adapts the webhook to the engine's available-hook signature.
func (w *Webhook) Hook() check.Hook {
	return w.Found
}

// Found announces one available handle.
func (w *Webhook) Found(ctx context.Context, hit check.Hit) error {
	e := embed{
		Title:       fmt.Sprintf("Available %s Username Found!", w.Display),
		Description: fmt.Sprintf("**Username:** `%s`", hit.Candidate),
		Color:       colorFound,
		Footer:      embedFooter{Text: w.Display + " Username Checker"},
	}
	if w.Link != nil {
		e.Fields = []embedField{{Name: "Direct Link", Value: w.Link(hit.Candidate)}}
	}
	if !hit.Time.IsZero() {
		e.Timestamp = hit.Time.UTC().Format(time.RFC3339)
	}
	return w.post(ctx, message{Embeds: []embed{e}})
}

// Test sends a fixed message so the user can confirm the URL works.
func (w *Webhook) Test(ctx context.Context) error {
	return w.post(ctx, message{Embeds: []embed{{
		Title:       "Test Message",
		Description: "Your webhook is working correctly!",
		Color:       colorTest,
		Footer:      embedFooter{Text: w.Display + " Username Checker - Webhook Test"},
	}}})
}

func (w *Webhook) post(ctx context.Context, msg message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "webhook: marshal")
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.backoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "webhook: pacing")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return errors.Wrap(err, "webhook: new request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			w.log.WithError(err).WithField("attempt", attempt+1).Warn("webhook: request failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = errors.Errorf("webhook: status %d", resp.StatusCode)
		w.log.WithFields(logrus.Fields{"attempt": attempt + 1, "status": resp.StatusCode}).Warn("webhook: bad status")
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return lastErr
		}
	}
	return errors.Wrap(lastErr, "webhook: all retries exhausted")
}
