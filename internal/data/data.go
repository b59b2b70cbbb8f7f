package data

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const maxListBytes = 16 << 20

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ReadLines returns the trimmed, non-blank lines of r. Lines starting with
// "#" are comments.
func ReadLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// Load reads a list from a local file, or fetches it when source is an
// http(s) URL. "-" reads stdin, or os.Stdin when stdin is nil.
func Load(ctx context.Context, client Doer, stdin io.Reader, userAgent, source string) ([]string, error) {
	switch {
	case source == "-":
		if stdin == nil {
			stdin = os.Stdin
		}
		return ReadLines(stdin)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return Fetch(ctx, client, userAgent, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	lines, err := ReadLines(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", source)
	}
	return lines, nil
}

func Fetch(ctx context.Context, client Doer, userAgent, rawURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a small snippet for diagnostics.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, errors.Errorf("download failed: %s (%s)", resp.Status, string(snippet))
	}
	return ReadLines(io.LimitReader(resp.Body, maxListBytes))
}

// Candidates cleans raw lines with normalize and drops repeats, keeping the
// first occurrence. It also returns the rejected lines.
func Candidates(lines []string, normalize func(string) (string, bool)) (kept, rejected []string) {
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		c, ok := normalize(l)
		if !ok {
			rejected = append(rejected, l)
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		kept = append(kept, c)
	}
	return kept, rejected
}
