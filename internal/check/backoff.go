package check

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	DefaultErrorThreshold = 3
	DefaultCooldown       = 15 * time.Second
)

// Pause is a cooldown requested by Backoff.Observe.
type Pause struct {
	Duration time.Duration
	Reason   string
}

// Seconds is the number of countdown ticks the pause takes.
func (p Pause) Seconds() int {
	s := int(math.Ceil(p.Duration.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// Backoff tracks the consecutive-error streak of a run and decides when to
// pause. It has two states: normal, and cooling while a Pause is counted
// down. Only one cooldown runs at a time.
type Backoff struct {
	threshold int
	cooldown  time.Duration
	tick      time.Duration

	mu      sync.Mutex
	errors  int
	cooling chan struct{} // non-nil while cooling, closed when it ends
}

// NewBackoff returns a controller that pauses for cooldown after threshold
// consecutive error verdicts. tick is the length of one countdown second.
func NewBackoff(threshold int, cooldown, tick time.Duration) *Backoff {
	if threshold < 1 {
		threshold = DefaultErrorThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Backoff{threshold: threshold, cooldown: cooldown, tick: tick}
}

// Observe feeds one verdict into the controller. When it returns true the
// controller has entered the cooling state and the caller owns the pause:
// it must run Cool exactly once.
func (b *Backoff) Observe(v Verdict, retryAfter time.Duration) (Pause, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case v == RateLimited:
		if b.cooling != nil {
			return Pause{}, false
		}
		d := retryAfter
		if d <= 0 {
			d = b.cooldown
		}
		b.cooling = make(chan struct{})
		return Pause{Duration: d, Reason: "Rate limit hit"}, true

	case v.IsError():
		b.errors++
		if b.errors >= b.threshold && b.cooling == nil {
			b.cooling = make(chan struct{})
			return Pause{Duration: b.cooldown, Reason: fmt.Sprintf("%d errors in a row", b.errors)}, true
		}

	default:
		b.errors = 0
	}
	return Pause{}, false
}

// Cool counts p down one tick per second, calling emit for the start line,
// each remaining second and the completion line. Cancellation stops the
// countdown at once and skips the completion line. The streak is reset and
// the controller returns to normal however Cool exits.
func (b *Backoff) Cool(ctx context.Context, p Pause, emit func(msg string, remaining int)) error {
	defer b.finish()
	if err := ctx.Err(); err != nil {
		return err
	}

	secs := p.Seconds()
	emit(fmt.Sprintf("COOLDOWN: %s!", p.Reason), secs)
	emit(fmt.Sprintf("Pausing for %d seconds...", secs), secs)

	for remaining := secs; remaining > 0; remaining-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(fmt.Sprintf("Resuming in %d seconds...", remaining), remaining)
		if err := sleep(ctx, b.tick); err != nil {
			return err
		}
	}

	emit("Cooldown complete! Continuing...", 0)
	return nil
}

func (b *Backoff) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = 0
	if b.cooling != nil {
		close(b.cooling)
		b.cooling = nil
	}
}

// Wait blocks while a cooldown is running.
func (b *Backoff) Wait(ctx context.Context) error {
	b.mu.Lock()
	ch := b.cooling
	b.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Errors is the current consecutive-error count.
func (b *Backoff) Errors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errors
}

// Cooling reports whether a cooldown is running.
func (b *Backoff) Cooling() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cooling != nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
