// Package proxypool parses egress proxy endpoints and hands them out in
// round-robin order.
package proxypool

import (
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrBadScheme is returned for endpoints that are not http, https or socks5.
var ErrBadScheme = errors.New("unsupported proxy scheme")

// Parse turns raw endpoint lines into URLs. Blank lines and lines starting
// with '#' are skipped; a bare host:port is read as http.
func Parse(lines []string) ([]*url.URL, error) {
	out := make([]*url.URL, 0, len(lines))
	for i, raw := range lines {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}

		u, err := url.Parse(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "proxy line %d", i+1)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, errors.Wrapf(ErrBadScheme, "proxy line %d: %q", i+1, u.Scheme)
		}
		if u.Host == "" {
			return nil, errors.Errorf("proxy line %d: missing host", i+1)
		}
		out = append(out, u)
	}
	return out, nil
}

// Rotator hands out endpoints in insertion order, wrapping at the end. It is
// safe for concurrent use. An empty Rotator means direct connections.
type Rotator struct {
	pool   []*url.URL
	cursor atomic.Uint64
}

func NewRotator(pool []*url.URL) *Rotator {
	cp := make([]*url.URL, len(pool))
	copy(cp, pool)
	return &Rotator{pool: cp}
}

// Next returns the endpoint at the cursor and advances it, or nil when the
// pool is empty.
func (r *Rotator) Next() *url.URL {
	if r == nil || len(r.pool) == 0 {
		return nil
	}
	n := r.cursor.Add(1) - 1
	return r.pool[n%uint64(len(r.pool))]
}

func (r *Rotator) Len() int {
	if r == nil {
		return 0
	}
	return len(r.pool)
}

// Endpoints returns a copy of the pool.
func (r *Rotator) Endpoints() []*url.URL {
	if r == nil {
		return nil
	}
	cp := make([]*url.URL, len(r.pool))
	copy(cp, r.pool)
	return cp
}

// Redact renders u without its password, for logs.
func Redact(u *url.URL) string {
	if u == nil {
		return "direct"
	}
	return u.Redacted()
}
