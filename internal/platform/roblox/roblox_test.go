package roblox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tdh8316/handlescout/internal/check"
	"github.com/tdh8316/handlescout/internal/httpx"
)

func TestAdapter_Probe(t *testing.T) {
	cases := []struct {
		name   string
		status int
		header map[string]string
		body   string
		want   check.Outcome
	}{
		{"taken", 200, nil, `{"data":[{"requestedUsername":"Roblox","hasVerifiedBadge":true,"id":1,"name":"Roblox","displayName":"Roblox"}]}`,
			check.Outcome{Verdict: check.Taken, Detail: "ID: 1, Display: Roblox"}},
		{"available", 200, nil, `{"data":[]}`, check.Outcome{Verdict: check.Available}},
		{"null id", 200, nil, `{"data":[{"id":null}]}`, check.Outcome{Verdict: check.Available}},
		{"rate limited", 429, map[string]string{"Retry-After": "7"}, `{}`,
			check.Outcome{Verdict: check.RateLimited, RetryAfter: 7 * time.Second}},
		{"rate limited fallback", 429, nil, `{}`,
			check.Outcome{Verdict: check.RateLimited, RetryAfter: 5 * time.Second}},
		{"forbidden", 403, nil, `{}`, check.Outcome{Verdict: check.AuthError, Detail: "Status 403"}},
		{"server error", 503, nil, ``, check.Outcome{Verdict: check.TransientError, Detail: "Status 503"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got lookupRequest
			var method, path string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				method, path = r.Method, r.URL.Path
				raw, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(raw, &got)
				for k, v := range tc.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			a := New(httpx.NewPool(httpx.ClientConfig{Timeout: 5 * time.Second}), "").WithBaseURL(srv.URL)
			out, err := a.Probe(context.Background(), "Roblox", nil, check.NopTracer)
			if err != nil {
				t.Fatalf("probe: %v", err)
			}
			if out != tc.want {
				t.Fatalf("got %+v, want %+v", out, tc.want)
			}
			if method != http.MethodPost || path != lookupPath {
				t.Fatalf("request %s %s", method, path)
			}
			if len(got.Usernames) != 1 || got.Usernames[0] != "Roblox" {
				t.Fatalf("usernames = %v", got.Usernames)
			}
		})
	}
}

func TestAdapter_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	a := New(httpx.NewPool(httpx.ClientConfig{Timeout: 5 * time.Second}), "").WithBaseURL(srv.URL)
	if _, err := a.Probe(context.Background(), "Roblox", nil, check.NopTracer); err == nil {
		t.Fatal("expected error")
	}
}
