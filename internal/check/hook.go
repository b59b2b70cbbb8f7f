package check

import (
	"context"
	"time"
)

// Hit describes a candidate that was classified Available.
type Hit struct {
	RunID     string
	Platform  string
	Candidate string
	Time      time.Time
}

// Hook is a best-effort side effect run after an Available verdict has been
// emitted, e.g. a notification. It runs in its own goroutine, outside the
// run's cancellation, and its error is only logged.
type Hook func(ctx context.Context, hit Hit) error

const hookTimeout = 15 * time.Second
