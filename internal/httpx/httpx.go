package httpx

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Doer lets us accept *http.Client or a test double.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source hands out a client for an egress endpoint; nil means direct.
type Source interface {
	For(proxyURL *url.URL) (Doer, error)
}

type ClientConfig struct {
	Timeout time.Duration
}

// NewClient builds a client that egresses through proxyURL, or directly when
// it is nil. http and https proxies use the transport's CONNECT support;
// socks5 goes through x/net/proxy.
func NewClient(cfg ClientConfig, proxyURL *url.URL) (*http.Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:       nil,
		DialContext: dialer.DialContext,

		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if proxyURL != nil {
		switch strings.ToLower(proxyURL.Scheme) {
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxyURL)

		case "socks5", "socks5h":
			d, err := proxy.FromURL(proxyURL, proxy.Direct)
			if err != nil {
				return nil, errors.Wrap(err, "create socks5 dialer")
			}
			if cd, ok := d.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
					return d.Dial(network, addr)
				}
			}

		default:
			return nil, errors.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
		}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}, nil
}

// Pool keeps one client per egress endpoint so connections are reused
// across probes routed through the same proxy.
type Pool struct {
	cfg ClientConfig

	mu      sync.Mutex
	clients map[string]*http.Client
}

func NewPool(cfg ClientConfig) *Pool {
	return &Pool{cfg: cfg, clients: make(map[string]*http.Client)}
}

func (p *Pool) For(proxyURL *url.URL) (Doer, error) {
	key := ""
	if proxyURL != nil {
		key = proxyURL.String()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := NewClient(p.cfg, proxyURL)
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	return c, nil
}

func NewRequest(ctx context.Context, method, rawURL string, body io.Reader, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}

// ReadBody reads at most limit bytes.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

// RetryAfter parses a Retry-After header given in seconds, integer or
// fractional, truncated to whole seconds with a floor of one. Anything else,
// including HTTP dates, yields fallback.
func RetryAfter(h http.Header, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(max(int(secs), 1)) * time.Second
}
