package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sourceGate enforces politeness towards one source: at most n pages in
// flight and a minimum spacing between request starts
type sourceGate struct {
	sem     chan struct{}
	limiter *rate.Limiter
	jitter  time.Duration
}

func newSourceGate(concurrency int, delay, jitter time.Duration) *sourceGate {
	if concurrency < 1 {
		concurrency = 1
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &sourceGate{
		sem:     make(chan struct{}, concurrency),
		limiter: rate.NewLimiter(limit, 1),
		jitter:  jitter,
	}
}

// acquire blocks until the source may be requested again. The returned
// release func must be called once the page is done.
func (g *sourceGate) acquire(ctx context.Context) (func(), error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-g.sem }

	if err := g.limiter.Wait(ctx); err != nil {
		release()
		return nil, err
	}

	if g.jitter > 0 {
		t := time.NewTimer(time.Duration(rand.Int63n(int64(g.jitter))))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			release()
			return nil, ctx.Err()
		}
	}

	return release, nil
}

// gates hands out one sourceGate per source id
type gates struct {
	mu      sync.Mutex
	byID    map[string]*sourceGate
	factory func(sourceID string) *sourceGate
}

func (g *gates) get(sourceID string) *sourceGate {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gate, ok := g.byID[sourceID]; ok {
		return gate
	}
	gate := g.factory(sourceID)
	g.byID[sourceID] = gate
	return gate
}
