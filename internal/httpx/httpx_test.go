package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestRetryAfter(t *testing.T) {
	cases := []struct {
		header string
		want   time.Duration
	}{
		{"", 60 * time.Second},
		{"10", 10 * time.Second},
		{"2.75", 2 * time.Second},
		{"0.2", time.Second},
		{"soon", 60 * time.Second},
		{"-4", 60 * time.Second},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 60 * time.Second},
	}
	for _, tc := range cases {
		h := http.Header{}
		if tc.header != "" {
			h.Set("Retry-After", tc.header)
		}
		if got := RetryAfter(h, 60*time.Second); got != tc.want {
			t.Errorf("Retry-After %q: got %v, want %v", tc.header, got, tc.want)
		}
	}
}

func TestNewClient_Schemes(t *testing.T) {
	for _, raw := range []string{"http://p:8080", "https://p:8443", "socks5://u:p@p:1080"} {
		u, _ := url.Parse(raw)
		c, err := NewClient(ClientConfig{}, u)
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if c.Timeout != 60*time.Second {
			t.Fatalf("%s: default timeout not applied", raw)
		}
	}

	u, _ := url.Parse("ftp://p:21")
	if _, err := NewClient(ClientConfig{}, u); err == nil {
		t.Fatal("ftp proxy accepted")
	}
}

func TestNewClient_HTTPProxyIsUsed(t *testing.T) {
	var hits int
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Host != "registry.example" {
			t.Errorf("proxy got host %q", r.URL.Host)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer proxySrv.Close()

	u, _ := url.Parse(proxySrv.URL)
	c, err := NewClient(ClientConfig{Timeout: 5 * time.Second}, u)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Get("http://registry.example/check")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if hits != 1 || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("hits=%d status=%d", hits, resp.StatusCode)
	}
}

func TestPool_ReusesClients(t *testing.T) {
	p := NewPool(ClientConfig{})
	a, _ := url.Parse("http://a:1")
	b, _ := url.Parse("http://b:2")

	ca1, _ := p.For(a)
	ca2, _ := p.For(a)
	cb, _ := p.For(b)
	d1, _ := p.For(nil)
	d2, _ := p.For(nil)

	if ca1 != ca2 || d1 != d2 {
		t.Fatal("client not reused for the same endpoint")
	}
	if ca1 == cb || ca1 == d1 {
		t.Fatal("distinct endpoints share a client")
	}
}
