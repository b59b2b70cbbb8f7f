package check

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of probes in flight.
type Gate struct {
	sem      *semaphore.Weighted
	cap      int
	inFlight atomic.Int64
}

// NewGate returns a gate admitting at most n holders. n < 1 is treated as 1.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n)), cap: n}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.inFlight.Add(1)
	return nil
}

// Release frees one slot taken by Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

func (g *Gate) Cap() int { return g.cap }

// InFlight is the number of currently held slots.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }
