package check

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// Verdict is the classification of one candidate.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	Available
	Taken
	Unclear // ambiguous signals, needs human review
	RateLimited
	AuthError
	TransientError
)

var verdictNames = map[Verdict]string{
	VerdictUnknown: "unknown",
	Available:      "available",
	Taken:          "taken",
	Unclear:        "unclear",
	RateLimited:    "rate_limited",
	AuthError:      "auth_error",
	TransientError: "transient_error",
}

func (v Verdict) String() string {
	if s, ok := verdictNames[v]; ok {
		return s
	}
	return "unknown"
}

// IsError reports whether v counts toward the consecutive-error streak.
func (v Verdict) IsError() bool {
	return v == TransientError || v == AuthError
}

// Tracer receives debug trace lines from an adapter.
type Tracer func(format string, args ...any)

// NopTracer discards everything.
func NopTracer(string, ...any) {}

// Outcome is what an adapter reports for one probe.
type Outcome struct {
	Verdict Verdict
	// Detail is appended to the display line, e.g. "404 status".
	Detail string
	// RetryAfter is the platform-requested pause for RateLimited.
	RetryAfter time.Duration
	// Timeout marks a TransientError caused by a deadline.
	Timeout bool
}

// Adapter probes one platform for one candidate.
type Adapter interface {
	Name() string
	Probe(ctx context.Context, candidate string, proxy *url.URL, trace Tracer) (Outcome, error)
}

// FromError converts an unclassified probe failure into an Outcome.
func FromError(err error) Outcome {
	return Outcome{
		Verdict: TransientError,
		Detail:  truncate(err.Error(), 80),
		Timeout: IsTimeout(err),
	}
}

// IsTimeout reports whether err was caused by a deadline or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
