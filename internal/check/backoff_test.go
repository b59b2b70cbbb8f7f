package check

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBackoff_ThresholdTriggersDefaultCooldown(t *testing.T) {
	b := NewBackoff(3, 15*time.Second, time.Millisecond)

	for i := 1; i <= 2; i++ {
		if _, ok := b.Observe(TransientError, 0); ok {
			t.Fatalf("cooldown after %d errors", i)
		}
	}
	p, ok := b.Observe(TransientError, 0)
	if !ok {
		t.Fatal("no cooldown after third error")
	}
	if p.Duration != 15*time.Second {
		t.Fatalf("duration = %v, want 15s", p.Duration)
	}
	if p.Reason != "3 errors in a row" {
		t.Fatalf("reason = %q", p.Reason)
	}
	if !b.Cooling() {
		t.Fatal("not cooling after trigger")
	}

	if err := b.Cool(context.Background(), p, func(string, int) {}); err != nil {
		t.Fatalf("cool: %v", err)
	}
	if b.Errors() != 0 {
		t.Fatalf("errors = %d after cooldown, want 0", b.Errors())
	}
	if b.Cooling() {
		t.Fatal("still cooling after countdown")
	}
}

func TestBackoff_NonErrorResetsStreak(t *testing.T) {
	b := NewBackoff(3, 0, time.Millisecond)
	b.Observe(TransientError, 0)
	b.Observe(AuthError, 0)
	if b.Errors() != 2 {
		t.Fatalf("errors = %d, want 2", b.Errors())
	}
	for _, v := range []Verdict{Available, Taken, Unclear} {
		b.Observe(TransientError, 0)
		if _, ok := b.Observe(v, 0); ok {
			t.Fatalf("%v started a cooldown", v)
		}
		if b.Errors() != 0 {
			t.Fatalf("%v did not reset the streak", v)
		}
	}
}

func TestBackoff_RateLimitIgnoresStreak(t *testing.T) {
	b := NewBackoff(3, 15*time.Second, time.Millisecond)

	p, ok := b.Observe(RateLimited, 10*time.Second)
	if !ok || p.Duration != 10*time.Second {
		t.Fatalf("got %v %v, want immediate 10s pause", p, ok)
	}
	// A second signal while cooling does not stack.
	if _, ok := b.Observe(RateLimited, 10*time.Second); ok {
		t.Fatal("second cooldown started while cooling")
	}
	_ = b.Cool(context.Background(), p, func(string, int) {})

	p, ok = b.Observe(RateLimited, 0)
	if !ok || p.Duration != 15*time.Second {
		t.Fatalf("got %v %v, want default pause when no delay given", p, ok)
	}
}

func TestBackoff_CoolCountsDown(t *testing.T) {
	b := NewBackoff(3, 0, time.Millisecond)
	p, _ := b.Observe(RateLimited, 4*time.Second)

	var lines []string
	var ticks []int
	err := b.Cool(context.Background(), p, func(msg string, remaining int) {
		lines = append(lines, msg)
		if strings.HasPrefix(msg, "Resuming in") {
			ticks = append(ticks, remaining)
		}
	})
	if err != nil {
		t.Fatalf("cool: %v", err)
	}

	want := []int{4, 3, 2, 1}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("ticks = %v, want %v", ticks, want)
		}
	}
	if lines[0] != "COOLDOWN: Rate limit hit!" {
		t.Fatalf("first line = %q", lines[0])
	}
	if last := lines[len(lines)-1]; last != "Cooldown complete! Continuing..." {
		t.Fatalf("last line = %q", last)
	}
}

func TestBackoff_CancelSkipsCompletion(t *testing.T) {
	b := NewBackoff(3, 0, 20*time.Millisecond)
	p, _ := b.Observe(RateLimited, 60*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	var lines []string
	err := b.Cool(ctx, p, func(msg string, _ int) {
		lines = append(lines, msg)
		if strings.HasPrefix(msg, "Resuming in 59") {
			cancel()
		}
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	for _, l := range lines {
		if strings.HasPrefix(l, "Cooldown complete") {
			t.Fatal("completion line emitted after cancellation")
		}
	}
	if b.Cooling() {
		t.Fatal("still cooling after cancellation")
	}
}

func TestBackoff_CoolAfterStopIsSilent(t *testing.T) {
	b := NewBackoff(3, 0, time.Millisecond)
	p, ok := b.Observe(RateLimited, 5*time.Second)
	if !ok {
		t.Fatal("rate limit should start a cooldown")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var lines []string
	if err := b.Cool(ctx, p, func(msg string, _ int) { lines = append(lines, msg) }); err == nil {
		t.Fatal("expected cancellation error")
	}
	if len(lines) != 0 {
		t.Fatalf("lines emitted after stop: %q", lines)
	}
	if b.Cooling() {
		t.Fatal("still cooling after cancellation")
	}
}

func TestBackoff_WaitBlocksWhileCooling(t *testing.T) {
	b := NewBackoff(1, 0, 5*time.Millisecond)
	p, ok := b.Observe(TransientError, 0)
	if !ok {
		t.Fatal("threshold 1 should trigger on first error")
	}

	released := make(chan struct{})
	go func() {
		_ = b.Wait(context.Background())
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("Wait returned before the cooldown ran")
	case <-time.After(10 * time.Millisecond):
	}

	_ = b.Cool(context.Background(), Pause{Duration: time.Second, Reason: p.Reason}, func(string, int) {})
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Wait still blocked after cooldown")
	}
}

func TestPauseSeconds(t *testing.T) {
	cases := map[time.Duration]int{
		0:                       1,
		500 * time.Millisecond:  1,
		time.Second:             1,
		1500 * time.Millisecond: 2,
		60 * time.Second:        60,
	}
	for d, want := range cases {
		if got := (Pause{Duration: d}).Seconds(); got != want {
			t.Errorf("Pause{%v}.Seconds() = %d, want %d", d, got, want)
		}
	}
}
