// Package budget paces and bounds expensive outbound calls within a cycle.
//
// A Budgeter grants at most a fixed number of calls and enforces a minimum
// spacing between consecutive grants. The first grant is never delayed.
// Exhaustion is reported as a false grant, not an error.
package budget

import (
	"context"
	"sync"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customizes a Budgeter or Pacer.
type Option func(*pacing)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(p *pacing) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithSleeper overrides how delays are awaited. Tests pass a sleeper that
// records durations and returns immediately.
func WithSleeper(sleeper Sleeper) Option {
	return func(p *pacing) {
		if sleeper != nil {
			p.sleep = sleeper
		}
	}
}

// SleepContext waits for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type pacing struct {
	minDelay time.Duration
	now      Clock
	sleep    Sleeper
	last     time.Time
}

func newPacing(minDelay time.Duration, opts []Option) pacing {
	p := pacing{minDelay: max(minDelay, 0), now: time.Now, sleep: SleepContext}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// wait blocks until minDelay has elapsed since the previous grant.
func (p *pacing) wait(ctx context.Context) error {
	if !p.last.IsZero() && p.minDelay > 0 {
		if remaining := p.minDelay - p.now().Sub(p.last); remaining > 0 {
			if err := p.sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}
	p.last = p.now()
	return nil
}

// Budgeter bounds the number of calls granted per cycle.
type Budgeter struct {
	mu       sync.Mutex
	maxCalls int
	granted  int
	pacing   pacing
}

// New returns a Budgeter granting up to maxCalls calls spaced by minDelay.
func New(maxCalls int, minDelay time.Duration, opts ...Option) *Budgeter {
	return &Budgeter{maxCalls: max(maxCalls, 0), pacing: newPacing(minDelay, opts)}
}

// Acquire waits for the pacing delay and reports whether a call may proceed.
// It returns false without waiting once the budget is spent.
func (b *Budgeter) Acquire(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.granted >= b.maxCalls {
		return false, nil
	}
	if err := b.pacing.wait(ctx); err != nil {
		return false, err
	}
	b.granted++
	return true, nil
}

// Used returns the number of calls granted so far.
func (b *Budgeter) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.granted
}

// Remaining returns the number of calls still available.
func (b *Budgeter) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxCalls - b.granted
}

// Exhausted reports whether no further calls will be granted.
func (b *Budgeter) Exhausted() bool {
	return b.Remaining() <= 0
}

// Pacer enforces spacing without a call limit.
type Pacer struct {
	mu     sync.Mutex
	pacing pacing
}

// NewPacer returns a Pacer spacing calls by minDelay.
func NewPacer(minDelay time.Duration, opts ...Option) *Pacer {
	return &Pacer{pacing: newPacing(minDelay, opts)}
}

// Wait blocks until the next call may proceed.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pacing.wait(ctx)
}
