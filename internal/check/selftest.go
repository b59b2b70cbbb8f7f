package check

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
)

// KnownPair is a handle known to be registered and one known to be free.
type KnownPair struct {
	Taken string
	Free  string
}

// SelfTestFailure reports a pair the adapter no longer classifies correctly.
type SelfTestFailure struct {
	Pair  KnownPair
	Taken Outcome // expected Taken
	Free  Outcome // expected Available
	Err   error
}

// SelfTest probes every pair sequentially and calls onFailure for each pair
// whose verdicts are not Taken and Available. It returns the failure count.
func SelfTest(ctx context.Context, a Adapter, pairs []KnownPair, proxy *url.URL, onFailure func(SelfTestFailure)) (int, error) {
	if onFailure == nil {
		return 0, errors.New("onFailure callback is nil")
	}

	count := 0
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if p.Taken == "" || p.Free == "" {
			count++
			onFailure(SelfTestFailure{Pair: p, Err: errors.New("incomplete known pair")})
			continue
		}

		taken := selfProbe(ctx, a, p.Taken, proxy)
		free := selfProbe(ctx, a, p.Free, proxy)
		if taken.Verdict == Taken && free.Verdict == Available {
			continue
		}
		count++
		onFailure(SelfTestFailure{Pair: p, Taken: taken, Free: free})
	}
	return count, ctx.Err()
}

func selfProbe(ctx context.Context, a Adapter, candidate string, proxy *url.URL) Outcome {
	pctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()
	out, err := a.Probe(pctx, candidate, proxy, NopTracer)
	if err != nil {
		return FromError(err)
	}
	return out
}
