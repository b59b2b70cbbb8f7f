package check

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/handlescout/internal/proxypool"
)

const defaultProbeTimeout = 30 * time.Second

// Profile holds a platform's pacing defaults.
type Profile struct {
	// Concurrency is the absolute cap on probes in flight.
	Concurrency int
	// DirectConcurrency caps probes in flight when no proxies are set.
	// Zero means 1.
	DirectConcurrency int
	// Delay is slept after each dispatch; DirectDelay replaces it when no
	// proxies are set.
	Delay       time.Duration
	DirectDelay time.Duration
	// ProbeTimeout bounds one adapter call.
	ProbeTimeout time.Duration
	// Serialize waits for each probe to finish before the next dispatch.
	Serialize bool
}

// Config is fixed for the duration of a run.
type Config struct {
	Profile

	Proxies []*url.URL
	Debug   bool

	// RetryRateLimited re-probes a rate-limited candidate once after its
	// cooldown; only the second verdict is reported.
	RetryRateLimited bool

	ErrorThreshold int
	Cooldown       time.Duration

	// Hooks run after Available verdicts, keyed by a name used in logs.
	Hooks map[string]Hook
}

func (c Config) gateCap() int {
	limit := max(c.Concurrency, 1)
	if len(c.Proxies) > 0 {
		return min(len(c.Proxies), limit)
	}
	return min(max(c.DirectConcurrency, 1), limit)
}

func (c Config) delay() time.Duration {
	if len(c.Proxies) == 0 && c.DirectDelay > 0 {
		return c.DirectDelay
	}
	return c.Delay
}

// Summary is returned once a run ends.
type Summary struct {
	RunID     string
	Total     int
	Processed int
	Counts    map[Verdict]int
	Stop      StopReason
	Elapsed   time.Duration
}

// Engine drives candidates through one platform adapter.
type Engine struct {
	adapter Adapter
	cfg     Config
	tick    time.Duration
	log     *logrus.Entry
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the diagnostics logger.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) { e.log = l }
}

// WithTick sets the length of one cooldown countdown second.
func WithTick(d time.Duration) Option {
	return func(e *Engine) { e.tick = d }
}

func NewEngine(adapter Adapter, cfg Config, opts ...Option) *Engine {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	e := &Engine{
		adapter: adapter,
		cfg:     cfg,
		tick:    time.Second,
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run checks candidates in order and streams events to sink. It only
// returns an error for problems found before the first dispatch; per
// candidate failures become verdicts. Cancelling ctx stops new dispatches
// and any cooldown; probes already in flight finish and are reported.
func (e *Engine) Run(ctx context.Context, candidates []string, sink Sink) (Summary, error) {
	if e.adapter == nil {
		return Summary{}, errors.New("check: nil adapter")
	}
	if sink == nil {
		return Summary{}, errors.New("check: nil sink")
	}
	if len(candidates) == 0 {
		return Summary{}, errors.New("check: no candidates")
	}

	r := &run{
		Engine:  e,
		id:      uuid.NewString(),
		total:   len(candidates),
		rotator: proxypool.NewRotator(e.cfg.Proxies),
		gate:    NewGate(e.cfg.gateCap()),
		backoff: NewBackoff(e.cfg.ErrorThreshold, e.cfg.Cooldown, e.tick),
		sink:    sink,
		counts:  make(map[Verdict]int),
	}
	r.log = e.log.WithFields(logrus.Fields{"platform": e.adapter.Name(), "run_id": r.id})
	start := time.Now()

	if n := r.rotator.Len(); n > 0 {
		r.status(fmt.Sprintf("Using %d proxies with %d concurrent requests", n, r.gate.Cap()))
	} else {
		r.status("No proxies loaded - using direct connection (may hit rate limits)")
	}
	endpoints := r.rotator.Endpoints()
	shown := make([]string, len(endpoints))
	for i, u := range endpoints {
		shown[i] = proxypool.Redact(u)
	}
	r.log.WithFields(logrus.Fields{"candidates": r.total, "concurrency": r.gate.Cap(), "proxies": shown}).Info("run started")

	stop := StopExhausted
	for i, c := range candidates {
		if !r.dispatch(ctx, c, i == len(candidates)-1) {
			stop = StopCancelled
			break
		}
	}
	r.tasks.Wait()
	r.hooks.Wait()

	r.mu.Lock()
	sum := Summary{
		RunID:     r.id,
		Total:     r.total,
		Processed: r.progress,
		Counts:    r.counts,
		Stop:      stop,
		Elapsed:   time.Since(start),
	}
	r.mu.Unlock()

	r.emit(Event{Kind: EventDone, Category: CategoryInfo, Stop: stop,
		Message: fmt.Sprintf("Run %s: %d/%d checked", stop, sum.Processed, sum.Total)})
	r.log.WithFields(logrus.Fields{"processed": sum.Processed, "stop": stop.String(), "elapsed": sum.Elapsed}).Info("run finished")
	return sum, nil
}

type run struct {
	*Engine
	id  string
	log *logrus.Entry

	total   int
	rotator *proxypool.Rotator
	gate    *Gate
	backoff *Backoff

	// mu serializes sink calls and guards progress and counts.
	mu       sync.Mutex
	sink     Sink
	progress int
	counts   map[Verdict]int

	tasks sync.WaitGroup
	hooks sync.WaitGroup
}

// dispatch starts one candidate. It returns false once ctx is cancelled.
func (r *run) dispatch(ctx context.Context, candidate string, last bool) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		if err := r.backoff.Wait(ctx); err != nil {
			return false
		}
		if err := r.gate.Acquire(ctx); err != nil {
			return false
		}
		if ctx.Err() != nil {
			r.gate.Release()
			return false
		}
		// A cooldown may have started while we waited for the slot.
		if !r.backoff.Cooling() {
			break
		}
		r.gate.Release()
	}

	proxy := r.rotator.Next()
	done := make(chan struct{})
	r.tasks.Add(1)
	go func() {
		defer r.tasks.Done()
		defer close(done)
		defer r.gate.Release()
		r.check(ctx, candidate, proxy)
	}()

	if r.cfg.Serialize {
		<-done
	}
	if last {
		return true
	}
	return sleep(ctx, r.cfg.delay()) == nil
}

func (r *run) check(ctx context.Context, candidate string, proxy *url.URL) {
	out := r.probe(ctx, candidate, proxy)

	if out.Verdict == RateLimited && r.cfg.RetryRateLimited {
		r.emit(Event{Kind: EventStatus, Category: CategoryRateLimit, Candidate: candidate, Verdict: RateLimited,
			Message: fmt.Sprintf("[RATE LIMIT] %s: retrying once after cooldown", candidate)})
		if p, ok := r.backoff.Observe(RateLimited, out.RetryAfter); ok {
			_ = r.cool(ctx, p)
		} else {
			_ = r.backoff.Wait(ctx)
		}
		if ctx.Err() == nil {
			out = r.probe(ctx, candidate, r.rotator.Next())
		}
	}

	pause, cool := r.backoff.Observe(out.Verdict, out.RetryAfter)
	r.result(candidate, out)

	if out.Verdict == Available {
		r.runHooks(ctx, Hit{RunID: r.id, Platform: r.adapter.Name(), Candidate: candidate, Time: time.Now()})
	}
	if cool {
		if err := r.cool(ctx, pause); err != nil {
			r.log.WithField("candidate", candidate).Debug("cooldown interrupted")
		}
	}
}

func (r *run) probe(ctx context.Context, candidate string, proxy *url.URL) (out Outcome) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ProbeTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			r.log.WithField("candidate", candidate).Errorf("adapter panic: %v", p)
			out = Outcome{Verdict: TransientError, Detail: fmt.Sprintf("adapter panic: %v", p)}
		}
	}()

	trace := r.tracer(candidate)
	if proxy != nil {
		trace("Using proxy: %s", proxypool.Redact(proxy))
	}

	out, err := r.adapter.Probe(pctx, candidate, proxy, trace)
	if err != nil {
		r.log.WithError(err).WithField("candidate", candidate).Debug("probe failed")
		return FromError(err)
	}
	if out.Verdict == VerdictUnknown {
		out = Outcome{Verdict: TransientError, Detail: "unclassified response"}
	}
	return out
}

func (r *run) tracer(candidate string) Tracer {
	if !r.cfg.Debug {
		return NopTracer
	}
	return func(format string, args ...any) {
		r.emit(Event{Kind: EventDebug, Category: CategoryDebug, Candidate: candidate,
			Message: "[DEBUG] " + fmt.Sprintf(format, args...)})
	}
}

func (r *run) cool(ctx context.Context, p Pause) error {
	if ctx.Err() == nil {
		r.log.WithFields(logrus.Fields{"reason": p.Reason, "seconds": p.Seconds()}).Warn("cooldown")
	}
	return r.backoff.Cool(ctx, p, func(msg string, remaining int) {
		r.emit(Event{Kind: EventCooldown, Category: CategoryCooldown, Message: msg, Remaining: remaining})
	})
}

func (r *run) runHooks(ctx context.Context, hit Hit) {
	for name, h := range r.cfg.Hooks {
		if h == nil {
			continue
		}
		r.hooks.Add(1)
		go func() {
			defer r.hooks.Done()
			hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookTimeout)
			defer cancel()
			if err := h(hctx, hit); err != nil {
				r.log.WithError(err).WithFields(logrus.Fields{"hook": name, "candidate": hit.Candidate}).Warn("hook failed")
				if r.cfg.Debug {
					r.emit(Event{Kind: EventDebug, Category: CategoryDebug, Candidate: hit.Candidate,
						Message: fmt.Sprintf("[DEBUG] %s hook failed: %v", name, err)})
				}
			}
		}()
	}
}

// result emits the one terminal line for a candidate and bumps progress in
// the same critical section, so progress values reach the sink in order.
func (r *run) result(candidate string, out Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress++
	r.counts[out.Verdict]++
	r.sink(Event{
		RunID:     r.id,
		Platform:  r.adapter.Name(),
		Kind:      EventResult,
		Category:  CategoryOf(out),
		Candidate: candidate,
		Verdict:   out.Verdict,
		Message:   FormatResult(candidate, out),
		Progress:  r.progress,
		Total:     r.total,
		Time:      time.Now(),
	})
}

func (r *run) status(msg string) {
	r.emit(Event{Kind: EventStatus, Category: CategoryInfo, Message: msg})
}

func (r *run) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.RunID = r.id
	ev.Platform = r.adapter.Name()
	ev.Progress = r.progress
	ev.Total = r.total
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.sink(ev)
}

// FormatResult renders the display line for one verdict.
func FormatResult(candidate string, out Outcome) string {
	cat := CategoryOf(out)
	switch cat {
	case CategoryAvailable, CategoryTaken, CategoryUnclear:
		if out.Detail != "" {
			return fmt.Sprintf("[%s] %s (%s)", cat, candidate, out.Detail)
		}
		return fmt.Sprintf("[%s] %s", cat, candidate)
	case CategoryRateLimit:
		if out.RetryAfter > 0 {
			return fmt.Sprintf("[%s] %s: Waiting %ds...", cat, candidate, Pause{Duration: out.RetryAfter}.Seconds())
		}
		return fmt.Sprintf("[%s] %s: Slow down!", cat, candidate)
	case CategoryTimeout:
		return fmt.Sprintf("[%s] %s", cat, candidate)
	default:
		if out.Detail != "" {
			return fmt.Sprintf("[%s] %s: %s", cat, candidate, out.Detail)
		}
		return fmt.Sprintf("[%s] %s", cat, candidate)
	}
}
